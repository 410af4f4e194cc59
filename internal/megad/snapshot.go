package megad

import (
	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
)

// PortView is a read-only copy of one port.
type PortView struct {
	Key        string                  `json:"key"`
	ID         int                     `json:"id"`
	Name       string                  `json:"name"`
	Kind       ports.Kind              `json:"kind"`
	Available  bool                    `json:"available"`
	State      ports.State             `json:"state"`
	Thermostat bool                    `json:"thermostat,omitempty"`
	Conf       model.PortConfig        `json:"-"`
	Extra      []model.ExtraPortConfig `json:"-"`
}

type PIDView struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	State ports.PIDState  `json:"state"`
	Conf  model.PIDConfig `json:"-"`
}

// Board is the controller-level information refreshed by each poll.
type Board struct {
	Software    string  `json:"software"`
	Uptime      int     `json:"uptime"`
	Temperature float64 `json:"temperature"`
}

func (m *MegaD) Board() Board {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Board{Software: m.software, Uptime: m.uptime, Temperature: m.temperature}
}

// Snapshot is a consistent copy of the whole controller state.
type Snapshot struct {
	ID          string     `json:"id"`
	Host        string     `json:"host"`
	Software    string     `json:"software"`
	Uptime      int        `json:"uptime"`
	Temperature float64    `json:"temperature"`
	Flashing    bool       `json:"flashing"`
	Ports       []PortView `json:"ports"`
	PIDs        []PIDView  `json:"pids"`
}

func viewOf(p *ports.Port) PortView {
	return PortView{
		Key:        p.Key,
		ID:         p.ID(),
		Name:       p.Conf.Name(),
		Kind:       p.Kind,
		Available:  p.Available(),
		State:      p.State(),
		Thermostat: p.IsThermostat(),
		Conf:       p.Conf,
		Extra:      p.Extra,
	}
}

func (m *MegaD) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		ID:          m.ID,
		Host:        m.Host,
		Software:    m.software,
		Uptime:      m.uptime,
		Temperature: m.temperature,
		Flashing:    m.IsFlashing(),
		Ports:       make([]PortView, 0, len(m.ports)),
		PIDs:        make([]PIDView, 0, len(m.pids)),
	}
	for _, p := range m.ports {
		s.Ports = append(s.Ports, viewOf(p))
	}
	for _, p := range m.pids {
		s.PIDs = append(s.PIDs, PIDView{ID: p.ID(), Name: p.Conf.Name(), State: p.State(), Conf: p.Conf})
	}
	return s
}

// Port returns a copy of the port with the given key.
func (m *MegaD) Port(key string) (PortView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.ports {
		if p.Key == key {
			return viewOf(p), true
		}
	}
	return PortView{}, false
}
