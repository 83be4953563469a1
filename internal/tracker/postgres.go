package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const positionsSchema = `
CREATE TABLE IF NOT EXISTS positions (
	ticker       TEXT             NOT NULL,
	entry_date   DATE             NOT NULL,
	entry_price  DOUBLE PRECISION NOT NULL,
	strategy     TEXT             NOT NULL,
	stop_price   DOUBLE PRECISION NOT NULL,
	target_price DOUBLE PRECISION NOT NULL,
	exit_date    DATE,
	PRIMARY KEY (ticker, entry_date)
)`

type positionRow struct {
	Ticker      string       `db:"ticker"`
	EntryDate   time.Time    `db:"entry_date"`
	EntryPrice  float64      `db:"entry_price"`
	Strategy    string       `db:"strategy"`
	StopPrice   float64      `db:"stop_price"`
	TargetPrice float64      `db:"target_price"`
	ExitDate    sql.NullTime `db:"exit_date"`
}

// PostgresStore persists positions in a positions table.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// OpenPostgres connects with lib/pq and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := NewPostgresStore(db, timeout)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

// EnsureSchema creates the positions table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, positionsSchema); err != nil {
		return fmt.Errorf("create positions table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) ([]Position, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []positionRow
	query := `
		SELECT ticker, entry_date, entry_price, strategy, stop_price, target_price, exit_date
		FROM positions
		ORDER BY entry_date, ticker`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	out := make([]Position, 0, len(rows))
	for _, r := range rows {
		p := Position{
			Ticker:      r.Ticker,
			Strategy:    r.Strategy,
			EntryDate:   r.EntryDate,
			EntryPrice:  r.EntryPrice,
			StopPrice:   r.StopPrice,
			TargetPrice: r.TargetPrice,
		}
		if r.ExitDate.Valid {
			p.ExitDate = r.ExitDate.Time
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, p Position) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var exit sql.NullTime
	if p.Closed() {
		exit = sql.NullTime{Time: p.ExitDate, Valid: true}
	}
	query := `
		INSERT INTO positions (ticker, entry_date, entry_price, strategy, stop_price, target_price, exit_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, entry_date) DO UPDATE SET
			stop_price = EXCLUDED.stop_price,
			target_price = EXCLUDED.target_price,
			exit_date = EXCLUDED.exit_date`
	if _, err := s.db.ExecContext(ctx, query,
		p.Ticker, p.EntryDate, p.EntryPrice, p.Strategy, p.StopPrice, p.TargetPrice, exit); err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Ticker, err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error { return s.db.Close() }
