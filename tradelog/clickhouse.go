package tradelog

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED, overwrite"`
	DSN          string        `yaml:"dsn" env:"DSN, overwrite" default:"clickhouse://default:@127.0.0.1:9000/default"`
	Table        string        `yaml:"table" env:"TABLE, overwrite" default:"trades"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"4" validate:"gte=1"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	CreateTable  bool          `yaml:"create_table" default:"true"`
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// execer is the part of *sql.DB the sink uses.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseSink inserts one row per record.
type ClickHouseSink struct {
	db     execer
	closer func() error
	insert string
}

// NewClickHouseSink opens the pool, checks the server and, when asked,
// creates the table.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse: invalid table name %q", cfg.Table)
	}
	db, err := sql.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	s := newClickHouseSink(db, cfg.Table)
	s.closer = db.Close
	if cfg.CreateTable {
		if _, err := db.ExecContext(ctx, createTable(cfg.Table)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("clickhouse init schema: %w", err)
		}
	}
	return s, nil
}

func newClickHouseSink(db execer, table string) *ClickHouseSink {
	return &ClickHouseSink{
		db: db,
		insert: fmt.Sprintf("INSERT INTO %s (ts, event, ticket, strategy, symbol, side, lot, price, sl, tp, profit) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", table),
	}
}

func createTable(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts       DateTime64(3, 'UTC'),
	event    LowCardinality(String),
	ticket   Int64,
	strategy LowCardinality(String),
	symbol   LowCardinality(String),
	side     LowCardinality(String),
	lot      Float64,
	price    Float64,
	sl       Float64,
	tp       Float64,
	profit   Float64
) ENGINE = MergeTree ORDER BY (symbol, ts)`, table)
}

func (s *ClickHouseSink) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		r.Time, string(r.Event), r.Ticket, r.Strategy, r.Symbol, string(r.Side),
		r.Lot, r.Price, r.StopLoss, r.TakeProfit, r.Profit,
	)
	if err != nil {
		return fmt.Errorf("clickhouse insert: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
