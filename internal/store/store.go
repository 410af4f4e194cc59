// Package store persists scraped controller configuration as a flat dump
// file: one cp1251 query line per config page.
package store

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a dump has been written.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// Load reads the dump back into records.
func (s *Store) Load() ([]protocol.Record, error) {
	lines, err := s.Lines()
	if err != nil {
		return nil, err
	}
	records := make([]protocol.Record, 0, len(lines))
	for _, line := range lines {
		records = append(records, protocol.ParseRecord(line))
	}
	return records, nil
}

// Lines returns the raw cp1251 lines of the dump, as written to the controller
// when a config is restored.
func (s *Store) Lines() ([][]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if line = bytes.TrimSpace(line); len(line) > 0 {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Save writes the lines in cp1251 through a temp file and a rename.
func (s *Store) Save(lines []string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := w.Write(protocol.EncodeCP1251(line)); err != nil {
			file.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			file.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}
