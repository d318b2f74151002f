package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/chronicai/chronicai/agent/contract"
)

// Config comes from the environment with the DATASTORE prefix.
type Config struct {
	DSN          string        `envconfig:"DSN" required:"true"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"4"`
}

// Client is the tenant datastore RPC surface. Every remote procedure is
// a fixed Postgres function invoked with bind parameters; guarded SQL
// text is only ever an argument to exec_sql_readonly_v2, never
// interpolated into a different call.
type Client struct {
	db      *bun.DB
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: datastore dsn is required", contractx.ErrConfig)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		db:      bun.NewDB(sqldb, pgdialect.New()),
		timeout: timeout,
	}, nil
}

var _ contractx.Datastore = (*Client)(nil)

// SchemaSnapshot returns column/type metadata for the given tables.
func (c *Client) SchemaSnapshot(ctx context.Context, tables []string) ([]map[string]any, error) {
	return c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM schema_snapshot_v1(?) AS t",
		pgdialect.Array(tables),
	)
}

// ExecReadOnly runs an already-guarded statement through the read-only
// execution procedure.
func (c *Client) ExecReadOnly(ctx context.Context, query string) ([]map[string]any, error) {
	return c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM exec_sql_readonly_v2(?) AS t",
		query,
	)
}

func (c *Client) ProfileDetails(ctx context.Context, userID string) (map[string]any, error) {
	rows, err := c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM profile_details(?) AS t",
		userID,
	)
	if err != nil {
		return nil, err
	}
	return firstRow(rows), nil
}

func (c *Client) LatestHealthIndicators(ctx context.Context, userID string) (map[string]any, error) {
	rows, err := c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM medical_tests_latest(?) AS t",
		userID,
	)
	if err != nil {
		return nil, err
	}
	return firstRow(rows), nil
}

func (c *Client) WeeklyMetrics(ctx context.Context, userID string) ([]map[string]any, error) {
	return c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM dashboard_weekly_all_v1(?) AS t",
		userID,
	)
}

// MatchDocuments runs the similarity procedure backing knowledge
// retrieval.
func (c *Client) MatchDocuments(ctx context.Context, embedding []float64, k int) ([]map[string]any, error) {
	return c.rpcRows(ctx,
		"SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM match_documents(?::vector, ?) AS t",
		vectorLiteral(embedding), k,
	)
}

func (c *Client) rpcRows(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw []byte
	if err := c.db.NewRaw(query, args...).Scan(ctx, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrBackendUnavailable, err)
	}

	var rows []any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode rpc rows: %v", contractx.ErrBackendUnavailable, err)
	}
	return NormalizeRows(rows), nil
}

// NormalizeRows unwraps the single-key to_jsonb/row wrappers the
// read-only execution procedure produces and boxes scalar rows under a
// "value" key so callers always see plain objects.
func NormalizeRows(rows []any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			out = append(out, map[string]any{"value": r})
			continue
		}
		if len(obj) == 1 {
			for _, key := range []string{"to_jsonb", "row"} {
				if inner, present := obj[key]; present {
					if innerObj, isObj := inner.(map[string]any); isObj {
						obj = innerObj
					} else {
						obj = map[string]any{"value": inner}
					}
					break
				}
			}
		}
		out = append(out, obj)
	}
	return out
}

func firstRow(rows []map[string]any) map[string]any {
	if len(rows) == 0 {
		return map[string]any{}
	}
	return rows[0]
}

func vectorLiteral(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
