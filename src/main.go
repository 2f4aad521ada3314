package main

import (
	"fmt"
	"os"

	"github.com/contre95/csvinserter/src/features/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "csvinserter: %v\n", err)
		os.Exit(1)
	}
}
