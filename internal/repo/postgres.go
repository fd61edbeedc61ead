package repo

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tinoosan/tubeconv/internal/data"
)

// PostgresRepo implements ConversionRepo backed by PostgreSQL.
// It expects a table `conversions` keyed by token.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo constructs a repository using the provided DSN.
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &PostgresRepo{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// DSN builds a connection URL from components. Credentials and db name are
// URL-encoded to handle special characters safely.
func DSN(host, port, db, user, pass, sslmode string) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + db,
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *PostgresRepo) Close() error { return r.db.Close() }

// Ping reports whether the database is reachable.
func (r *PostgresRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *PostgresRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS conversions (
    token TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    format TEXT NOT NULL,
    quality TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS conversions_fingerprint_idx ON conversions (fingerprint);
`)
	return err
}

const selectColumns = `SELECT token,source,format,quality,state,progress,error,fingerprint,created_at,finished_at FROM conversions`

// List implements ConversionReader.List
func (r *PostgresRepo) List(ctx context.Context) (data.Conversions, error) {
	return r.query(ctx, selectColumns+` ORDER BY created_at ASC`)
}

// ListByFingerprint implements ConversionReader.ListByFingerprint
func (r *PostgresRepo) ListByFingerprint(ctx context.Context, fprint string) (data.Conversions, error) {
	return r.query(ctx, selectColumns+` WHERE fingerprint=$1 ORDER BY created_at ASC`, fprint)
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) (data.Conversions, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(data.Conversions, 0)
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get implements ConversionReader.Get
func (r *PostgresRepo) Get(ctx context.Context, token string) (*data.Conversion, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE token=$1`, token)
	c, err := scanConversion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Add implements ConversionWriter.Add
func (r *PostgresRepo) Add(ctx context.Context, c *data.Conversion) (*data.Conversion, error) {
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversions (token,source,format,quality,state,progress,error,fingerprint,created_at,finished_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.Token, c.Source, string(c.Format), c.Quality, string(c.State), c.Progress, c.Error, c.Fingerprint, c.CreatedAt, nullTime(c.FinishedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, data.ErrConflict
		}
		return nil, err
	}
	return r.Get(ctx, c.Token)
}

// Update implements ConversionWriter.Update by fetching, mutating, and writing back under a row lock.
func (r *PostgresRepo) Update(ctx context.Context, token string, mutate func(*data.Conversion) error) (*data.Conversion, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, selectColumns+` WHERE token=$1 FOR UPDATE`, token)
	cur, err := scanConversion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, data.ErrNotFound
		}
		return nil, err
	}

	next := cur.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	if equalConversions(cur, next) {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return cur, nil
	}

	// Token, fingerprint and creation time are immutable.
	if _, err := tx.ExecContext(ctx, `UPDATE conversions SET source=$1, format=$2, quality=$3, state=$4, progress=$5, error=$6, finished_at=$7 WHERE token=$8`,
		next.Source, string(next.Format), next.Quality, string(next.State), next.Progress, next.Error, nullTime(next.FinishedAt), token); err != nil {
		return nil, err
	}

	row2 := tx.QueryRowContext(ctx, selectColumns+` WHERE token=$1`, token)
	updated, err := scanConversion(row2)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Helpers

type rowScanner interface{ Scan(dest ...any) error }

func scanConversion(rs rowScanner) (*data.Conversion, error) {
	var (
		token, source, format, quality, state, msg, fprint string
		progress                                           float64
		created                                            time.Time
		finished                                           sql.NullTime
	)
	if err := rs.Scan(&token, &source, &format, &quality, &state, &progress, &msg, &fprint, &created, &finished); err != nil {
		return nil, err
	}
	c := &data.Conversion{
		Token:       token,
		Source:      source,
		Format:      data.Format(format),
		Quality:     quality,
		State:       data.State(state),
		Progress:    progress,
		Error:       msg,
		Fingerprint: fprint,
		CreatedAt:   created,
	}
	if finished.Valid {
		t := finished.Time
		c.FinishedAt = &t
	}
	return c, nil
}

func equalConversions(a, b *data.Conversion) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Source != b.Source || a.Format != b.Format || a.Quality != b.Quality || a.State != b.State ||
		a.Progress != b.Progress || a.Error != b.Error {
		return false
	}
	switch {
	case a.FinishedAt == nil && b.FinishedAt == nil:
		return true
	case a.FinishedAt == nil || b.FinishedAt == nil:
		return false
	}
	return a.FinishedAt.Equal(*b.FinishedAt)
}

func isUniqueViolation(err error) bool {
	// pgx stdlib returns error strings containing "duplicate key value violates unique constraint"
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
