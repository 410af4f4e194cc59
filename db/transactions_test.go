package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/config"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ApplySchema(db))
	return db
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	require.NoError(t, SeedDatabase(db, []config.Controller{
		{ID: "hall", Host: "192.168.0.14", Password: "sec", ConfigFile: "data/hall.cfg"},
		{ID: "cellar", Host: "192.168.0.15", Password: "sec", ConfigFile: "data/cellar.cfg", RefreshConfig: true},
	}))
}

func TestSeedDatabase(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	entries, err := GetControllers(db)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "cellar", entries[0].ID)
	assert.True(t, entries[0].RefreshConfig)
	assert.True(t, entries[0].Enabled)
	assert.Equal(t, Entry{
		Controller: config.Controller{ID: "hall", Host: "192.168.0.14", Password: "sec", ConfigFile: "data/hall.cfg"},
		Enabled:    true,
	}, entries[1])
}

func TestSeedKeepsOperatorChanges(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	require.NoError(t, SetControllerEnabled(db, "hall", false))
	require.NoError(t, SetRefreshConfig(db, "hall", true))

	require.NoError(t, SeedDatabase(db, []config.Controller{
		{ID: "hall", Host: "192.168.0.20", Password: "new", ConfigFile: "data/hall.cfg"},
	}))

	e, err := GetController(db, "hall")
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.20", e.Host)
	assert.Equal(t, "new", e.Password)
	assert.False(t, e.Enabled)
	assert.True(t, e.RefreshConfig)
}

func TestEnableDisable(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	require.NoError(t, SetControllerEnabled(db, "cellar", false))
	enabled, err := GetEnabledControllers(db)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "hall", enabled[0].ID)

	require.NoError(t, SetControllerEnabled(db, "cellar", true))
	enabled, err = GetEnabledControllers(db)
	require.NoError(t, err)
	assert.Len(t, enabled, 2)
}

func TestRefreshConfigCleared(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	require.NoError(t, SetRefreshConfig(db, "cellar", false))
	e, err := GetController(db, "cellar")
	require.NoError(t, err)
	assert.False(t, e.RefreshConfig)
}

func TestUnknownController(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	_, err := GetController(db, "attic")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, SetControllerEnabled(db, "attic", false), ErrNotFound)
}
