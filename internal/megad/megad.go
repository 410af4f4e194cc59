// Package megad is the live model of one MegaD-2561 controller: its decoded
// ports and PID regulators, the full poll, and the outbound commands.
package megad

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
)

var (
	ErrBusy           = errors.New("controller busy")
	ErrFirmwareUpdate = errors.New("firmware update in progress")
	ErrUnknownPort    = errors.New("unknown port")
	ErrUnknownPID     = errors.New("unknown pid")
)

// Requester sends one GET to the controller.
type Requester interface {
	Get(ctx context.Context, q protocol.Record) (string, error)
}

type Options struct {
	// RequestGap spaces consecutive requests of one poll.
	RequestGap time.Duration
	// Now is the wall clock used for the nightly clock sync.
	Now func() time.Time
}

// MegaD owns the ports and PIDs of one controller. Every state mutation
// goes through its lock.
type MegaD struct {
	ID     string
	Host   string
	config model.DeviceConfig
	client Requester
	gap    time.Duration
	now    func() time.Time

	mu           sync.RWMutex
	ports        []*ports.Port
	pids         []*ports.PID
	busPorts     []model.PortConfig
	software     string
	uptime       int
	temperature  float64
	missingSlots []int

	flashing atomic.Bool
}

func New(id, host string, cfg model.DeviceConfig, client Requester, opts Options) *MegaD {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &MegaD{
		ID:          id,
		Host:        host,
		config:      cfg,
		client:      client,
		gap:         opts.RequestGap,
		now:         opts.Now,
		uptime:      scraper.UnknownUptime,
		temperature: scraper.UnknownTemperature,
	}
	m.initPorts()
	m.initPIDs()
	log.Debug().Str("controller", id).Int("ports", len(m.ports)).Int("pids", len(m.pids)).Msg("Controller initialized")
	return m
}

func (m *MegaD) initPorts() {
	for _, conf := range m.config.Ports {
		kind, supported := ports.Classify(conf)
		if !supported {
			if conf.Type != model.TypeNotConfigured {
				log.Info().Str("controller", m.ID).Int("port", conf.ID).Str("type", string(conf.Type)).Msg("Port type not supported, skipping")
			}
			continue
		}
		if kind == ports.KindI2CBus {
			m.busPorts = append(m.busPorts, conf)
			continue
		}
		p := ports.New(m.ID, conf, kind)
		if p.IsExpander() {
			p.Extra = m.config.ExtraPortsFor(conf.ID)
		}
		m.ports = append(m.ports, p)
	}
}

func (m *MegaD) initPIDs() {
	for _, conf := range m.config.PIDs {
		if conf.Output == protocol.PortOff || conf.SensorID == model.NoSensor {
			continue
		}
		m.pids = append(m.pids, ports.NewPID(m.ID, conf))
	}
}

func (m *MegaD) Config() model.DeviceConfig {
	return m.config
}

func (m *MegaD) SetFlashing(active bool) {
	m.flashing.Store(active)
	log.Info().Str("controller", m.ID).Bool("flashing", active).Msg("Firmware update state changed")
}

func (m *MegaD) IsFlashing() bool {
	return m.flashing.Load()
}

func (m *MegaD) request(ctx context.Context, q protocol.Record) (string, error) {
	if m.IsFlashing() {
		log.Warn().Str("controller", m.ID).Str("query", q.Query()).Msg("Controller is being flashed, request refused")
		return "", ErrFirmwareUpdate
	}
	body, err := m.client.Get(ctx, q)
	if err != nil {
		return "", err
	}
	log.Debug().Str("controller", m.ID).Str("query", q.Query()).Msg("Request sent")
	return body, nil
}

// command sends a write and maps a "busy" answer to ErrBusy.
func (m *MegaD) command(ctx context.Context, q protocol.Record) error {
	body, err := m.request(ctx, q)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) == protocol.Busy {
		log.Warn().Str("controller", m.ID).Str("query", q.Query()).Msg("Controller busy, command rejected")
		return ErrBusy
	}
	return nil
}

func (m *MegaD) pause(ctx context.Context) error {
	if m.gap <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.gap):
		return nil
	}
}

// GetPort finds a port by id. With ext set, an MCP230xx expander whose
// interrupt line is id takes precedence.
func (m *MegaD) GetPort(id int, ext bool) *ports.Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portLocked(id, ext)
}

func (m *MegaD) portLocked(id int, ext bool) *ports.Port {
	if ext {
		for _, p := range m.ports {
			if p.Kind == ports.KindMCP && p.Conf.I2C.Interrupt == id {
				return p
			}
		}
	}
	for _, p := range m.ports {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

func (m *MegaD) GetPID(id int) *ports.PID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pids {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// Apply decodes a payload into the given port under the lock.
func (m *MegaD) Apply(p *ports.Port, in ports.Payload) ports.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.Update(in)
}

// UpdatePort decodes a payload into the port with the given id.
func (m *MegaD) UpdatePort(id int, in ports.Payload) (ports.Result, error) {
	p := m.GetPort(id, false)
	if p == nil {
		return ports.Result{}, fmt.Errorf("%w: %d", ErrUnknownPort, id)
	}
	return m.Apply(p, in), nil
}

// UpdatePID applies a PID record to the regulator with the given id.
func (m *MegaD) UpdatePID(id int, params map[string]string) (ports.Result, error) {
	p := m.GetPID(id)
	if p == nil {
		return ports.Result{}, fmt.Errorf("%w: %d", ErrUnknownPID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.Update(params), nil
}

// SetThermostatSetPoint records a set-point accepted by the controller.
func (m *MegaD) SetThermostatSetPoint(id int, value float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.portLocked(id, false)
	if p == nil {
		return false
	}
	return p.SetThermostat(func(t *ports.Thermostat) { t.SetPoint = value })
}

// GroupStates computes the state every relay of a group reports after the
// group command. A toggle flips each member from its own last known state.
func (m *MegaD) GroupStates(group int, command string) map[int]ports.Payload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := map[int]ports.Payload{}
	for _, p := range m.ports {
		if p.Kind != ports.KindRelay || p.Conf.Out.Group != group {
			continue
		}
		if command != protocol.SwitchToggle && !strings.EqualFold(command, "toggle") {
			out[p.ID()] = ports.Text(command)
			continue
		}
		s, _ := p.State().(ports.Switch)
		out[p.ID()] = ports.Text(WireSwitch(!s.On, p.Inverse()))
	}
	return out
}

// WireSwitch is the relay command that leaves a port in the logical state on.
func WireSwitch(on, inverse bool) string {
	if on != inverse {
		return protocol.SwitchOn
	}
	return protocol.SwitchOff
}

// MissingSlots lists the ports the last bulk status had no slot for.
func (m *MegaD) MissingSlots() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.missingSlots...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
