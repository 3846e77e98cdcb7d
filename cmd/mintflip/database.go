package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

const (
	dbPingTimeout = 5 * time.Second
	dbMaxWait     = 30 * time.Second
	dbMaxBackoff  = 5 * time.Second
)

// openDatabase opens a pgx-backed pool tagged with the service name and waits
// for Postgres to accept connections.
func openDatabase(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = "mintflip"
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/4))
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := waitForDatabase(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("host", connCfg.Host).Str("database", connCfg.Database).Msg("database connected")
	return db, nil
}

// waitForDatabase pings with exponential backoff until dbMaxWait elapses.
func waitForDatabase(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, dbMaxWait)
	defer cancel()

	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, dbPingTimeout)
		err := db.PingContext(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("database not ready")
		select {
		case <-ctx.Done():
			return fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, dbMaxBackoff)
	}
}
