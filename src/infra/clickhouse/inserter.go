package clickhouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	FormatCSV           = "CSV"
	FormatCSVWithNames  = "CSVWithNames"
	maxErrorBody        = 4096
	exceptionCodeHeader = "X-ClickHouse-Exception-Code"
	userHeader          = "X-ClickHouse-User"
	passwordHeader      = "X-ClickHouse-Key"
	defaultUser         = "default"
)

// LoadError is returned when ClickHouse rejects a load request.
type LoadError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *LoadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("clickhouse error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clickhouse error (status %d): %s", e.StatusCode, e.Message)
}

// Options holds everything the inserter needs to reach the target table.
type Options struct {
	URL         string
	Database    string
	User        string
	Password    string
	Table       string
	Fields      []string
	HasHeader   bool
	AsyncInsert bool
	Timeout     time.Duration
}

// Inserter submits whole CSV files to the ClickHouse HTTP interface.
// It implements ingesting.Inserter.
type Inserter struct {
	client    *http.Client
	endpoint  *url.URL
	database  string
	user      string
	password  string
	table     string
	statement string
	async     bool
}

// NewInserter creates an inserter. The statement is built once.
func NewInserter(opts Options) (*Inserter, error) {
	endpoint, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid clickhouse url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid clickhouse url %q: scheme must be http or https", opts.URL)
	}
	if opts.Table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	user := opts.User
	if user == "" {
		user = defaultUser
	}
	return &Inserter{
		client:    &http.Client{Timeout: opts.Timeout},
		endpoint:  endpoint,
		database:  opts.Database,
		user:      user,
		password:  opts.Password,
		table:     opts.Table,
		statement: BuildStatement(opts.Table, opts.Fields, opts.HasHeader),
		async:     opts.AsyncInsert,
	}, nil
}

// Format returns the input format matching the header setting.
func Format(hasHeader bool) string {
	if hasHeader {
		return FormatCSVWithNames
	}
	return FormatCSV
}

// BuildStatement returns the INSERT statement for table. The column list is
// only present when fields is not empty.
func BuildStatement(table string, fields []string, hasHeader bool) string {
	if len(fields) > 0 {
		return fmt.Sprintf("INSERT INTO %s (%s) FORMAT %s", table, strings.Join(fields, ", "), Format(hasHeader))
	}
	return fmt.Sprintf("INSERT INTO %s FORMAT %s", table, Format(hasHeader))
}

// Statement returns the INSERT statement sent with every load.
func (i *Inserter) Statement() string { return i.statement }

// Insert posts content as the body of a single INSERT. Errors are never retried.
func (i *Inserter) Insert(ctx context.Context, loadID string, content []byte) error {
	slog.Info("Inserting into table", "table", i.table, "bytes", len(content), "query_id", loadID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.loadURL(loadID), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	i.authenticate(req)

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send insert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &LoadError{
			StatusCode: resp.StatusCode,
			Code:       resp.Header.Get(exceptionCodeHeader),
			Message:    strings.TrimSpace(string(body)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Ping checks that the server answers on its /ping endpoint.
func (i *Inserter) Ping(ctx context.Context) error {
	pingURL := i.endpoint.JoinPath("ping")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach clickhouse: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("clickhouse ping returned status %d", resp.StatusCode)
	}
	return nil
}

func (i *Inserter) loadURL(loadID string) string {
	u := *i.endpoint
	q := u.Query()
	q.Set("query", i.statement)
	if i.database != "" {
		q.Set("database", i.database)
	}
	if loadID != "" {
		q.Set("query_id", loadID)
	}
	if i.async {
		q.Set("async_insert", "1")
		q.Set("wait_for_async_insert", "1")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (i *Inserter) authenticate(req *http.Request) {
	req.Header.Set(userHeader, i.user)
	if i.password != "" {
		req.Header.Set(passwordHeader, i.password)
	}
}
