package megad

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// SetPort sends cmd=<port>:<command>. Commands are ON, OFF, TOGGLE or a PWM duty.
func (m *MegaD) SetPort(ctx context.Context, port int, command string) error {
	return m.SendCommand(ctx, fmt.Sprintf("%d:%s", port, command))
}

// SetExtPort drives one sub-port of an expander.
func (m *MegaD) SetExtPort(ctx context.Context, port, ext int, command string) error {
	return m.SendCommand(ctx, fmt.Sprintf("%de%d:%s", port, ext, command))
}

// SetGroup drives every output of a group with one command.
func (m *MegaD) SetGroup(ctx context.Context, group int, command string) error {
	return m.SendCommand(ctx, fmt.Sprintf("g%d:%s", group, command))
}

// SendCommand sends a raw action string such as "7:1;8:0".
func (m *MegaD) SendCommand(ctx context.Context, action string) error {
	if err := m.command(ctx, protocol.Params(protocol.KeyCommand, action)); err != nil {
		return fmt.Errorf("command %q: %w", action, err)
	}
	log.Debug().Str("controller", m.ID).Str("action", action).Msg("Command sent")
	return nil
}

// SetTemperature writes the thermostat set-point of a 1-Wire port.
func (m *MegaD) SetTemperature(ctx context.Context, port int, value float64) error {
	q := protocol.Params(protocol.KeyPort, strconv.Itoa(port), protocol.KeyMisc, formatFloat(value))
	if err := m.command(ctx, q); err != nil {
		return fmt.Errorf("set-point of port %d: %w", port, err)
	}
	return nil
}

// SetPID writes regulator fields (pidsp, pidi, pidp, ...) of one PID.
func (m *MegaD) SetPID(ctx context.Context, id int, fields protocol.Record) error {
	q := protocol.Params(protocol.KeyConfig, protocol.PagePID, protocol.KeyPIDEdit, protocol.PagePIDEdit, protocol.KeyPID, strconv.Itoa(id))
	q = append(q, fields...)
	if err := m.command(ctx, q); err != nil {
		return fmt.Errorf("pid %d: %w", id, err)
	}
	log.Debug().Str("controller", m.ID).Int("pid", id).Str("fields", fields.Query()).Msg("PID updated")
	return nil
}

func (m *MegaD) SetTemperaturePID(ctx context.Context, id int, value float64) error {
	return m.SetPID(ctx, id, protocol.Params("pidsp", formatFloat(value)))
}

// TurnOnPID reconnects the regulator to its configured sensor port.
func (m *MegaD) TurnOnPID(ctx context.Context, id int) error {
	pid := m.GetPID(id)
	if pid == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPID, id)
	}
	return m.SetPID(ctx, id, protocol.Params("pidi", strconv.Itoa(pid.Conf.SensorID)))
}

// TurnOffPID detaches the regulator input, which stops regulation.
func (m *MegaD) TurnOffPID(ctx context.Context, id int) error {
	return m.SetPID(ctx, id, protocol.Params("pidi", strconv.Itoa(protocol.PortOff)))
}
