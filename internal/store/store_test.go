package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumps", "hall.cfg")
	s := New(path)
	assert.False(t, s.Exists())

	lines := []string{
		"cf=1&eip=192.168.0.14&pwd=sec",
		"pn=3&pty=1&m=0&emt=" + protocol.EscapeTitle("Свет/light") + "&nr=1",
		"pn=4&pty=0&m=1&emt=Дверь",
	}
	require.NoError(t, s.Save(lines))
	assert.True(t, s.Exists())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "emt=\xc4\xe2\xe5\xf0\xfc", "file is written in cp1251")

	records, err := s.Load()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Свет/light", records[1].Value(protocol.KeyTitle))
	assert.Equal(t, "Дверь", records[2].Value(protocol.KeyTitle))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.cfg")).Load()
	assert.Error(t, err)
}
