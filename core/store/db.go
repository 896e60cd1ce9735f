package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"oblik/config"
	"oblik/core/utils"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)

// DB carries the dialect next to the pool so stores can write queries with
// `?` placeholders for both sqlite and postgres.
type DB struct {
	*sql.DB
	postgres bool
}

func NewDB(cfg *config.AppConfig, logger *utils.Logger) (*DB, error) {
	driver := "pgx"
	if cfg.IsSQLite() {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	out := &DB{DB: db, postgres: driver == "pgx"}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	if !out.postgres {
		// one writer at a time keeps sqlite from returning SQLITE_BUSY under tests
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, err
		}
	}
	if logger != nil {
		logger.Printf("database opened (driver=%s)", cfg.DBDriver)
	}
	return out, nil
}

func (d *DB) IsPostgres() bool {
	return d != nil && d.postgres
}

// Rebind rewrites `?` placeholders into `$n` for postgres.
func (d *DB) Rebind(query string) string {
	if d == nil || !d.postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullableStringPtr(val *string) any {
	if val == nil {
		return nil
	}
	return nullableString(*val)
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func datePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	y, m, d := t.Time.Date()
	v := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	v := s.String
	return &v
}
