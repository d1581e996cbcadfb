package writer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ehutt/rent-radar/models"
)

// PostgresStore persists violations to PostgreSQL. The primary key mirrors
// the natural key, so repeated runs over the same accessed date are no-ops
// for already-recorded violations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, runs schema migrations and returns
// a ready-to-use store.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS violations (
			listing_id      TEXT          NOT NULL,
			violation_type  VARCHAR(32)   NOT NULL,
			reference_price NUMERIC(10,2) NOT NULL,
			observed_price  NUMERIC(10,2) NOT NULL,
			accessed_date   DATE          NOT NULL,
			created_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			PRIMARY KEY (listing_id, violation_type, accessed_date)
		);

		CREATE INDEX IF NOT EXISTS idx_violations_accessed ON violations(accessed_date);
		CREATE INDEX IF NOT EXISTS idx_violations_type     ON violations(violation_type);
	`)
	return err
}

func (ps *PostgresStore) InsertIfAbsent(ctx context.Context, v models.Violation) (bool, error) {
	res, err := ps.db.ExecContext(ctx, `
		INSERT INTO violations (listing_id, violation_type, reference_price, observed_price, accessed_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (listing_id, violation_type, accessed_date) DO NOTHING
	`, v.ListingID, string(v.Type), v.ReferencePrice.String(), v.ObservedPrice.String(), v.AccessedDate.Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("postgres: insert violation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// CountByDate returns how many violations are recorded for one accessed
// date, used by operational checks after a run.
func (ps *PostgresStore) CountByDate(ctx context.Context, accessed time.Time) (int, error) {
	var count int
	err := ps.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM violations WHERE accessed_date = $1
	`, accessed.Format("2006-01-02")).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count by date: %w", err)
	}
	return count, nil
}
