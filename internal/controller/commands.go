package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/datadog"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

func isToggle(command string) bool {
	return command == protocol.SwitchToggle || strings.EqualFold(command, "toggle")
}

// SwitchPort drives a relay or PWM output and applies the echoed state. A
// relay toggle is resolved locally into an explicit on or off.
func (c *Coordinator) SwitchPort(ctx context.Context, id int, command string) error {
	p := c.device.GetPort(id, false)
	if p == nil || !p.IsSwitchable() {
		return fmt.Errorf("%w: %d", ErrUnknownPort, id)
	}
	if p.Kind == ports.KindRelay && isToggle(command) {
		view, _ := c.device.Port(p.Key)
		current, _ := view.State.(ports.Switch)
		command = megad.WireSwitch(!current.On, p.Inverse())
	}

	if err := c.command(c.device.SetPort(ctx, id, command)); err != nil {
		return err
	}
	if _, err := c.UpdatePortState(id, ports.Text(command), false); err != nil {
		return err
	}
	return nil
}

// SwitchExtPort drives one sub-port of an expander.
func (c *Coordinator) SwitchExtPort(ctx context.Context, id, ext int, command string) error {
	p := c.device.GetPort(id, false)
	if p == nil || !p.IsExpander() {
		return fmt.Errorf("%w: %d", ErrUnknownPort, id)
	}
	if err := c.command(c.device.SetExtPort(ctx, id, ext, command)); err != nil {
		return err
	}
	_, err := c.UpdatePortState(id, ports.Params(map[string]string{fmt.Sprintf(protocol.KeyExtPattern, ext): command}), false)
	return err
}

// SwitchGroup drives every output of a group and applies the resulting
// member states in one notification.
func (c *Coordinator) SwitchGroup(ctx context.Context, group int, command string) error {
	states := c.device.GroupStates(group, command)
	if err := c.command(c.device.SetGroup(ctx, group, command)); err != nil {
		return err
	}
	c.UpdateGroupState(states)
	return nil
}

// SetTemperature writes a thermostat set-point within the climate range of
// the port.
func (c *Coordinator) SetTemperature(ctx context.Context, id int, value float64) error {
	p := c.device.GetPort(id, false)
	if p == nil || !p.IsThermostat() {
		return fmt.Errorf("%w: %d", ErrUnknownPort, id)
	}
	r := p.Conf.Sensor.DeviceClass.Range()
	if !r.Contains(value) {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, value, r.Min, r.Max)
	}
	if err := c.command(c.device.SetTemperature(ctx, id, value)); err != nil {
		return err
	}
	c.UpdateSetTemperature(id, value)
	return nil
}

// SetPID writes regulator fields and applies them locally.
func (c *Coordinator) SetPID(ctx context.Context, id int, fields protocol.Record) error {
	if c.device.GetPID(id) == nil {
		return fmt.Errorf("%w: %d", megad.ErrUnknownPID, id)
	}
	if err := c.command(c.device.SetPID(ctx, id, fields)); err != nil {
		return err
	}
	res, err := c.device.UpdatePID(id, fields.Map())
	if err != nil {
		return err
	}
	if res.Changed {
		for _, v := range c.device.Snapshot().PIDs {
			if v.ID == id {
				c.notify(Event{PIDs: []megad.PIDView{v}})
			}
		}
	}
	return nil
}

// SetFlashing marks a firmware update in progress. Polls and commands are
// refused until it is cleared.
func (c *Coordinator) SetFlashing(active bool) {
	c.device.SetFlashing(active)
}

// RestoreStatusPorts re-sends the last known state of every output and
// re-arms thermostats. Decoded state is not touched. Every port is
// attempted; the failures are returned joined.
func (c *Coordinator) RestoreStatusPorts(ctx context.Context) error {
	var errs []error
	for _, view := range c.device.Snapshot().Ports {
		if err := c.restorePort(ctx, view); err != nil {
			log.Warn().Err(err).Str("controller", c.device.ID).Str("port", view.Key).Msg("Failed to restore port")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) restorePort(ctx context.Context, view megad.PortView) error {
	switch st := view.State.(type) {
	case ports.Switch:
		if view.Kind == ports.KindRelay {
			return c.device.SetPort(ctx, view.ID, megad.WireSwitch(st.On, view.Conf.Inverse()))
		}
	case ports.Level:
		if view.Kind == ports.KindPWM {
			return c.device.SetPort(ctx, view.ID, strconv.Itoa(st.Value))
		}
	case ports.Expander:
		var errs []error
		for _, child := range view.Extra {
			if child.Kind == model.ExtraInput || child.ID >= len(st.Values) {
				continue
			}
			if err := c.device.SetExtPort(ctx, view.ID, child.ID, strconv.Itoa(st.Values[child.ID])); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	case ports.Readings:
		if !view.Thermostat || st.Thermostat == nil {
			return nil
		}
		if err := c.device.SetTemperature(ctx, view.ID, st.Thermostat.SetPoint); err != nil {
			return err
		}
		if st.Thermostat.Enabled {
			return c.device.SetPort(ctx, view.ID, protocol.SwitchOn)
		}
	}
	return nil
}

// HandleReboot restores outputs and the clock after the controller reported
// a restart.
func (c *Coordinator) HandleReboot(ctx context.Context) error {
	log.Info().Str("controller", c.device.ID).Msg("Controller rebooted, restoring outputs")
	datadog.Incr("controller.reboot", c.tags()...)

	restoreErr := c.RestoreStatusPorts(ctx)
	clockErr := c.device.SetCurrentTime(ctx)
	return errors.Join(restoreErr, clockErr)
}
