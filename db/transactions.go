package db

import (
	"database/sql"
	"fmt"
	"time"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

func updateOne(tx *sql.Tx, id, query string, args ...any) error {
	res, err := tx.Exec(query, append(args, now(), id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func SetControllerEnabledWithTx(tx *sql.Tx, id string, enabled bool) error {
	if err := updateOne(tx, id, `UPDATE controllers SET enabled = ?, updated_at = ? WHERE id = ?`, enabled); err != nil {
		return fmt.Errorf("update controller enabled: %w", err)
	}
	return nil
}

func SetRefreshConfigWithTx(tx *sql.Tx, id string, refresh bool) error {
	if err := updateOne(tx, id, `UPDATE controllers SET refresh_config = ?, updated_at = ? WHERE id = ?`, refresh); err != nil {
		return fmt.Errorf("update controller refresh_config: %w", err)
	}
	return nil
}

func SetControllerEnabled(db *sql.DB, id string, enabled bool) error {
	return withTx(db, func(tx *sql.Tx) error { return SetControllerEnabledWithTx(tx, id, enabled) })
}

// SetRefreshConfig flags or clears a pending config rescrape.
func SetRefreshConfig(db *sql.DB, id string, refresh bool) error {
	return withTx(db, func(tx *sql.Tx) error { return SetRefreshConfigWithTx(tx, id, refresh) })
}

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}
