// Package database provides connection setup for MariaDB and Redis plus the
// schema migration runner. Connections are created once at startup and shared
// via dependency injection; this package owns their lifecycle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/sitewalk/sitewalk/internal/config"
)

// maxPingAttempts bounds the startup wait for MariaDB.
const maxPingAttempts = 10

// NewMariaDB opens a MariaDB pool, applies the pool limits from cfg and waits
// for the server to answer a ping. MariaDB is often still starting when the
// app container launches, so pings are retried with exponential backoff until
// ctx is done or the attempts run out.
func NewMariaDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := pingWithBackoff(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func pingWithBackoff(ctx context.Context, db *sql.DB) error {
	backoff := time.Second
	var pingErr error

	for attempt := 1; attempt <= maxPingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if attempt == maxPingAttempts {
			break
		}

		slog.Warn("mariadb not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxPingAttempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for mariadb: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}

	return fmt.Errorf("pinging mariadb after %d attempts: %w", maxPingAttempts, pingErr)
}
