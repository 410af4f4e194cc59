package model

import (
	"fmt"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// ExtraKind is the personality of an expander sub-port.
type ExtraKind string

const (
	ExtraRelay ExtraKind = "relay"
	ExtraPWM   ExtraKind = "pwm"
	ExtraInput ExtraKind = "input"
)

// ExtraPortConfig is one sub-port of an MCP230xx or PCA9685 expander,
// keyed by (BasePort, ID).
type ExtraPortConfig struct {
	BasePort int
	ID       int
	Title    Title
	Expander DeviceI2C
	Kind     ExtraKind
	Group    int
	Min      int
	Action   string
}

func (e ExtraPortConfig) Name() string  { return e.Title.Name }
func (e ExtraPortConfig) Inverse() bool { return e.Title.Inverse() }

// ParseExtraPort builds a sub-port config from an extension page. A group key
// marks a PCA9685 channel (PWM when a minimum is set), otherwise an action key
// marks an MCP230xx input.
func ParseExtraPort(r protocol.Record) (ExtraPortConfig, error) {
	var e ExtraPortConfig
	var err error

	if e.BasePort, err = requiredInt(r, protocol.KeyPort, 0, 255); err != nil {
		return e, err
	}
	if e.ID, err = requiredInt(r, protocol.KeyExt, 0, 15); err != nil {
		return e, err
	}
	e.Title = ParseTitle(r.Value(protocol.KeyTitle), fmt.Sprintf("port%de%d", e.BasePort, e.ID))
	e.Group = NoGroup

	switch {
	case r.Has("grp"):
		e.Expander = DevicePCA9685
		e.Kind = ExtraRelay
		if e.Group, err = optionalInt(r, "grp", 0, 255, NoGroup); err != nil {
			return e, err
		}
		if r.Has("pwmm") {
			e.Kind = ExtraPWM
			if e.Min, err = optionalInt(r, "pwmm", 0, 4095, 0); err != nil {
				return e, err
			}
		}
	case r.Has("ecmd"):
		e.Expander = DeviceMCP230XX
		e.Kind = ExtraInput
		e.Action = r.Value("ecmd")
	default:
		e.Expander = DeviceMCP230XX
		e.Kind = ExtraRelay
	}
	return e, nil
}
