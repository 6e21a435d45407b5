package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/kjstillabower/weather-ingest-service/internal/config"
	"github.com/kjstillabower/weather-ingest-service/internal/models"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresStore inserts observations into a Postgres table through lib/pq.
type PostgresStore struct {
	db         *sql.DB
	table      string
	insertStmt string
}

// NewPostgresStore opens a pool for dsn. The connection is established lazily;
// call Ping to verify it.
func NewPostgresStore(dsn, table string, maxOpenConns int) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return newPostgresStoreWithDB(db, table), nil
}

func newPostgresStoreWithDB(db *sql.DB, table string) *PostgresStore {
	quoted := quoteTable(table)
	return &PostgresStore{
		db:    db,
		table: table,
		insertStmt: "INSERT INTO " + quoted +
			" (location, temperature, humidity, precipitation, wind_speed, conditions, date, created_at)" +
			" VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
	}
}

func quoteTable(table string) string {
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			return pq.QuoteIdentifier(table[:i]) + "." + pq.QuoteIdentifier(table[i+1:])
		}
	}
	return pq.QuoteIdentifier(table)
}

// Migrate creates the table when it does not exist. Column types follow the
// weather_data table the front-end reads.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + quoteTable(s.table) + ` (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	location text NOT NULL,
	temperature numeric,
	humidity numeric,
	precipitation numeric,
	wind_speed numeric,
	conditions text,
	date date NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: migrate %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, obs models.Observation) error {
	_, err := s.db.ExecContext(ctx, s.insertStmt,
		obs.Location,
		obs.Temperature,
		obs.Humidity,
		obs.Precipitation,
		obs.WindSpeed,
		obs.Conditions,
		obs.Date,
		obs.CreatedAt.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("postgres: insert into %s: %s (%s): %w", s.table, pqErr.Message, pqErr.Code, err)
		}
		return fmt.Errorf("postgres: insert into %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Backend() string { return config.BackendPostgres }
