package model

import "strings"

// Title is the packed "name/class/flag" string stored in a port or PID title.
// The third segment is the inversion flag on ports and the linked sensor id
// on PIDs.
type Title struct {
	Raw   string
	Name  string
	Class string
	Third string
}

// ParseTitle splits a packed title. An empty name falls back to fallback.
func ParseTitle(raw, fallback string) Title {
	t := Title{Raw: raw, Name: fallback}
	parts := strings.Split(raw, "/")
	if name := strings.TrimSpace(parts[0]); name != "" {
		t.Name = name
	}
	if len(parts) > 1 {
		t.Class = strings.ToLower(strings.TrimSpace(parts[1]))
	}
	if len(parts) > 2 {
		t.Third = strings.TrimSpace(parts[2])
	}
	return t
}

// Inverse reports whether the port's logical state is the inverse of the wire state.
func (t Title) Inverse() bool {
	return t.Third == "1"
}
