// Package db keeps the managed controller entries in sqlite. Entries are
// seeded from the service config and can be enabled, disabled or flagged for
// a config rescrape from the CLI without editing the config file.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/config"
)

const schema = `CREATE TABLE IF NOT EXISTS controllers (
	id TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	password TEXT NOT NULL,
	config_file TEXT NOT NULL,
	refresh_config BOOLEAN NOT NULL DEFAULT FALSE,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TEXT
)`

// Open opens the database and creates the schema if needed.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create controllers table: %w", err)
	}
	return nil
}

// SeedDatabase upserts the controllers listed in the config. The enabled flag
// of existing rows is kept, and a pending refresh is never cleared by a seed.
func SeedDatabase(db *sql.DB, controllers []config.Controller) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	defer RollbackTransaction(tx)

	for _, c := range controllers {
		_, err = tx.Exec(`INSERT INTO controllers (id, host, password, config_file, refresh_config, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				host = excluded.host,
				password = excluded.password,
				config_file = excluded.config_file,
				refresh_config = refresh_config OR excluded.refresh_config,
				updated_at = excluded.updated_at`,
			c.ID, c.Host, c.Password, c.ConfigFile, c.RefreshConfig, now())
		if err != nil {
			return fmt.Errorf("failed to insert controller %s: %w", c.ID, err)
		}
	}

	if err := CommitTransaction(tx); err != nil {
		return err
	}
	log.Info().Int("controllers", len(controllers)).Msg("Controller database seeded from config")
	return nil
}
