package shift_stats

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/errors"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS shift_stats (
    nucleus    TEXT    NOT NULL,
    env_key    TEXT    NOT NULL,
    mean_shift REAL    NOT NULL,
    std_dev    REAL    NOT NULL DEFAULT 0,
    samples    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (nucleus, env_key)
);
`

// sqlOpen is swapped in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// Store persists a Dataset in a SQLite file.
type Store struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

// OpenStore opens (creating if needed) the SQLite database at path and
// applies the schema.
func OpenStore(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	db, err := sqlOpen("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open shift database")
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to apply shift database schema").
			WithDetail(path)
	}
	return &Store{db: db, path: path, logger: logging.OrNop(log)}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WriteDataset replaces the stored records with d in one transaction.
func (s *Store) WriteDataset(ctx context.Context, d *Dataset) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM shift_stats`); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "clear shift_stats")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO shift_stats(nucleus, env_key, mean_shift, std_dev, samples) VALUES(?,?,?,?,?)`)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "prepare insert")
	}
	defer stmt.Close()

	n := 0
	for _, r := range d.Records() {
		if _, err := stmt.ExecContext(ctx, string(r.Nucleus), r.Env, r.Mean, r.StdDev, r.Samples); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "insert shift record").
				WithDetail(fmt.Sprintf("%s %s", r.Nucleus, r.Env))
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "commit transaction")
	}
	s.logger.Info("shift dataset written", logging.String("path", s.path), logging.Int("records", n))
	return n, nil
}

// LoadDataset reads every stored record into a Dataset.
func (s *Store) LoadDataset(ctx context.Context) (*Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT nucleus, env_key, mean_shift, std_dev, samples FROM shift_stats`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "query shift_stats")
	}
	defer rows.Close()

	d := NewDataset()
	skipped := 0
	for rows.Next() {
		var (
			r       Record
			nucleus string
		)
		if err := rows.Scan(&nucleus, &r.Env, &r.Mean, &r.StdDev, &r.Samples); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "scan shift record")
		}
		r.Nucleus = types.NucleusKey(nucleus)
		if err := d.Add(r); err != nil {
			skipped++
			continue
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "iterate shift records")
	}
	if skipped > 0 {
		s.logger.Warn("skipped unusable shift records", logging.String("path", s.path), logging.Int("skipped", skipped))
	}
	return d, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shift_stats`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "count shift records")
	}
	return n, nil
}
