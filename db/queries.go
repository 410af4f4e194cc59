package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/thatsimonsguy/megad-hub/internal/config"
)

var ErrNotFound = errors.New("controller not found")

// Entry is one persisted controller.
type Entry struct {
	config.Controller
	Enabled bool
}

const selectEntries = `SELECT id, host, password, config_file, refresh_config, enabled FROM controllers`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Host, &e.Password, &e.ConfigFile, &e.RefreshConfig, &e.Enabled)
	return e, err
}

// GetControllers returns every entry ordered by id.
func GetControllers(db *sql.DB) ([]Entry, error) {
	return queryEntries(db, selectEntries+` ORDER BY id`)
}

// GetEnabledControllers returns the entries the service should run.
func GetEnabledControllers(db *sql.DB) ([]Entry, error) {
	return queryEntries(db, selectEntries+` WHERE enabled ORDER BY id`)
}

func queryEntries(db *sql.DB, query string) ([]Entry, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query controllers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan controller: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func GetController(db *sql.DB, id string) (Entry, error) {
	e, err := scanEntry(db.QueryRow(selectEntries+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get controller %s: %w", id, err)
	}
	return e, nil
}
