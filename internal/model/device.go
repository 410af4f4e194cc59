package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// DeviceConfig is the full typed configuration of one controller.
type DeviceConfig struct {
	System     SystemConfig
	Ports      []PortConfig
	PIDs       []PIDConfig
	ExtraPorts []ExtraPortConfig

	// Skipped holds the validation failures of records left out of the config.
	Skipped []error
}

// NewDeviceConfig classifies scraped records and builds the typed config.
// Invalid port, PID and sub-port records are skipped and reported in
// Skipped; an invalid system section fails the whole config.
func NewDeviceConfig(records []protocol.Record) (DeviceConfig, error) {
	var d DeviceConfig
	var system protocol.Record
	seen := map[int]bool{}

	for _, r := range records {
		switch {
		case r.Has(protocol.KeyExt):
			e, err := ParseExtraPort(r)
			if err != nil {
				d.Skipped = append(d.Skipped, fmt.Errorf("extension page: %w", err))
				continue
			}
			d.ExtraPorts = append(d.ExtraPorts, e)
		case r.Has("pty"):
			p, err := ParsePort(r)
			if err != nil {
				d.Skipped = append(d.Skipped, err)
				continue
			}
			if seen[p.ID] {
				d.Skipped = append(d.Skipped, fmt.Errorf("port %d: duplicate record", p.ID))
				continue
			}
			seen[p.ID] = true
			d.Ports = append(d.Ports, p)
		case r.Value(protocol.KeyConfig) == protocol.PagePID && r.Has(protocol.KeyPID):
			p, err := ParsePID(r)
			if err != nil {
				d.Skipped = append(d.Skipped, fmt.Errorf("pid: %w", err))
				continue
			}
			d.PIDs = append(d.PIDs, p)
		case r.Value(protocol.KeyConfig) == protocol.PageMain, r.Value(protocol.KeyConfig) == protocol.PageNetwork:
			for _, f := range r {
				system = system.Set(f.Key, f.Value)
			}
		}
	}

	if system == nil {
		return d, errors.New("no system config pages found")
	}
	var err error
	if d.System, err = ParseSystem(system); err != nil {
		return d, fmt.Errorf("system config: %w", err)
	}

	sort.Slice(d.Ports, func(i, j int) bool { return d.Ports[i].ID < d.Ports[j].ID })
	return d, nil
}

func (d DeviceConfig) Port(id int) (PortConfig, bool) {
	for _, p := range d.Ports {
		if p.ID == id {
			return p, true
		}
	}
	return PortConfig{}, false
}

func (d DeviceConfig) PID(id int) (PIDConfig, bool) {
	for _, p := range d.PIDs {
		if p.ID == id {
			return p, true
		}
	}
	return PIDConfig{}, false
}

// ExtraPortsFor returns the sub-ports of an expander ordered by index.
func (d DeviceConfig) ExtraPortsFor(base int) []ExtraPortConfig {
	var out []ExtraPortConfig
	for _, e := range d.ExtraPorts {
		if e.BasePort == base {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
