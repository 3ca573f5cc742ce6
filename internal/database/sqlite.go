package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/bruteguard/internal/config"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the embedded ledger database.
// A single connection serializes writers so transactions never see SQLITE_BUSY.
func OpenSQLite(path string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("%s: %w (also: close: %v)", p, err, cerr)
			}
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	logger.Info("database connection established",
		slog.String("driver", config.DriverSQLite),
		slog.String("path", path),
	)
	return db, nil
}

// MigrateSQLite applies the embedded SQLite migrations.
func MigrateSQLite(ctx context.Context, db *sql.DB, command string) error {
	return RunMigrations(ctx, db, config.DriverSQLite, command)
}
