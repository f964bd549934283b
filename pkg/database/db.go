package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// Connect opens a Postgres pool and verifies connectivity with a ping
func Connect(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// Apply session-level settings if provided
	if cfg.TimeZone != "" {
		if _, err := db.ExecContext(ctx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	if cfg.ClientEncoding != "" {
		if _, err := db.ExecContext(ctx, "SET client_encoding = "+quoteLiteral(cfg.ClientEncoding)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set client_encoding: %w", err)
		}
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation (23505),
// optionally restricted to one constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
