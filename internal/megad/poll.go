package megad

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
)

// The controller clock is resynchronised once a night inside this window.
const (
	clockSyncHour   = 2
	clockSyncMinute = 0
)

// UpdateData runs one full poll: clock sync, port states, firmware, board
// info and PID regulators. While the controller is being flashed the poll is
// a no-op.
func (m *MegaD) UpdateData(ctx context.Context) error {
	if m.IsFlashing() {
		log.Debug().Str("controller", m.ID).Msg("Skipping poll during firmware update")
		return nil
	}

	now := m.now()
	if now.Hour() == clockSyncHour && now.Minute() == clockSyncMinute {
		if err := m.SetCurrentTime(ctx); err != nil {
			log.Warn().Err(err).Str("controller", m.ID).Msg("Clock sync failed")
		}
	}

	if err := m.updatePorts(ctx); err != nil {
		return err
	}

	if err := m.pause(ctx); err != nil {
		return err
	}
	firmware, err := m.request(ctx, protocol.Params(protocol.KeyConfig, "0"))
	if err != nil {
		return fmt.Errorf("firmware page: %w", err)
	}

	if err := m.pause(ctx); err != nil {
		return err
	}
	board, err := m.request(ctx, protocol.Params(protocol.KeyConfig, protocol.PageMain))
	if err != nil {
		return fmt.Errorf("main page: %w", err)
	}

	m.mu.Lock()
	m.software = scraper.Firmware(firmware)
	m.uptime = scraper.Uptime(board)
	m.temperature = scraper.BoardTemperature(board)
	m.mu.Unlock()

	return m.updatePIDs(ctx)
}

func (m *MegaD) portList() []*ports.Port {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ports.Port(nil), m.ports...)
}

func (m *MegaD) pidList() []*ports.PID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*ports.PID(nil), m.pids...)
}

// updatePorts reads the bulk status and dispatches each slot to its port.
// Expanders and empty 1-Wire bus slots are re-read individually. Ports
// beyond the end of the status line are logged and skipped.
func (m *MegaD) updatePorts(ctx context.Context) error {
	status, err := m.request(ctx, protocol.Params(protocol.KeyCommand, protocol.CommandAll))
	if err != nil {
		return fmt.Errorf("bulk status: %w", err)
	}
	slots := strings.Split(strings.TrimSpace(status), ";")

	var missing []int
	for _, p := range m.portList() {
		id := p.ID()
		// Bus devices share the slot of their SDA port and only update by push.
		if p.Key != strconv.Itoa(id) {
			continue
		}
		if id >= len(slots) {
			missing = append(missing, id)
			continue
		}
		slot := strings.TrimSpace(slots[id])

		if p.IsThermostat() {
			if err := m.updateThermostat(ctx, p); err != nil {
				return err
			}
		}

		switch {
		case slot == protocol.SlotMCP || slot == protocol.SlotPCA:
			if err := m.refetch(ctx, p, protocol.CommandGet); err != nil {
				return err
			}
		case slot != "":
			m.Apply(p, ports.Text(slot))
		case p.Kind == ports.KindOneWireBus:
			if err := m.refetch(ctx, p, protocol.CommandList); err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	m.missingSlots = missing
	m.mu.Unlock()
	if len(missing) > 0 {
		log.Error().
			Str("controller", m.ID).
			Int("slots", len(slots)).
			Ints("ports", missing).
			Msg("Bulk status is shorter than the configured ports, skipping")
	}
	return nil
}

func (m *MegaD) refetch(ctx context.Context, p *ports.Port, command string) error {
	if err := m.pause(ctx); err != nil {
		return err
	}
	body, err := m.request(ctx, protocol.Params(protocol.KeyPort, strconv.Itoa(p.ID()), protocol.KeyCommand, command))
	if err != nil {
		return fmt.Errorf("port %d: %w", p.ID(), err)
	}
	m.Apply(p, ports.Text(strings.TrimSpace(body)))
	return nil
}

// updateThermostat reads the regulation flag and set-point from the port page.
func (m *MegaD) updateThermostat(ctx context.Context, p *ports.Port) error {
	if err := m.pause(ctx); err != nil {
		return err
	}
	page, err := m.request(ctx, protocol.Params(protocol.KeyPort, strconv.Itoa(p.ID())))
	if err != nil {
		return fmt.Errorf("port %d page: %w", p.ID(), err)
	}

	params := map[string]string{}
	if enabled, err := scraper.ThermostatEnabled(page); err == nil {
		params["status_thermo"] = "0"
		if enabled {
			params["status_thermo"] = "1"
		}
	} else {
		log.Warn().Err(err).Str("controller", m.ID).Int("port", p.ID()).Msg("Thermostat state not found on port page")
	}
	if sp, err := scraper.ThermostatSetPoint(page); err == nil {
		params[protocol.KeyMisc] = formatFloat(sp)
	} else {
		log.Warn().Err(err).Str("controller", m.ID).Int("port", p.ID()).Msg("Thermostat set-point not found on port page")
	}
	if len(params) > 0 {
		m.Apply(p, ports.Params(params))
	}
	return nil
}

func (m *MegaD) updatePIDs(ctx context.Context) error {
	for _, pid := range m.pidList() {
		if err := m.pause(ctx); err != nil {
			return err
		}
		page, err := m.request(ctx, protocol.Params(protocol.KeyConfig, protocol.PagePID, protocol.KeyPID, strconv.Itoa(pid.ID())))
		if err != nil {
			return fmt.Errorf("pid %d page: %w", pid.ID(), err)
		}
		params, err := scraper.PIDParams(page)
		if err != nil {
			log.Warn().Err(err).Str("controller", m.ID).Int("pid", pid.ID()).Msg("Failed to parse PID page")
			continue
		}
		m.mu.Lock()
		pid.Update(params)
		m.mu.Unlock()
	}
	return nil
}

// InitI2CBus scans every unassigned SDA port and adds a sensor port for each
// supported device found on it.
func (m *MegaD) InitI2CBus(ctx context.Context) error {
	for _, conf := range m.busPorts {
		body, err := m.request(ctx, protocol.Params(protocol.KeyCommand, protocol.CommandScan, protocol.KeyPort, strconv.Itoa(conf.ID)))
		if err != nil {
			return fmt.Errorf("scan port %d: %w", conf.ID, err)
		}
		var found []*ports.Port
		for i, d := range scraper.I2CDevices(body) {
			if !ports.BusDeviceSupported(d) {
				log.Info().Str("controller", m.ID).Int("port", conf.ID).Str("device", string(d)).Msg("I2C device not supported, skipping")
				continue
			}
			found = append(found, ports.NewBusDevice(m.ID, conf, d, i))
		}
		m.mu.Lock()
		m.ports = append(m.ports, found...)
		m.mu.Unlock()
		log.Info().Str("controller", m.ID).Int("port", conf.ID).Int("devices", len(found)).Msg("I2C bus scanned")
		if err := m.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetCurrentTime writes the local wall clock to the controller. Weekdays run
// from 1 (Monday) to 7 (Sunday).
func (m *MegaD) SetCurrentTime(ctx context.Context) error {
	now := m.now()
	weekday := int(now.Weekday())
	if now.Weekday() == time.Sunday {
		weekday = 7
	}
	stime := fmt.Sprintf("%s:%d", now.Format("15:04:05"), weekday)
	if err := m.command(ctx, protocol.Params(protocol.KeyConfig, protocol.PageClock, protocol.KeyTime, stime)); err != nil {
		return err
	}
	log.Info().Str("controller", m.ID).Str("time", stime).Msg("Controller clock synchronised")
	return nil
}
