//go:build !unix

package files

import "os"

func writable(_ string, info os.FileInfo) bool {
	return info.Mode().Perm()&0o222 != 0
}
