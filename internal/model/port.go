package model

import (
	"fmt"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// NoGroup marks an output that belongs to no group.
const NoGroup = -1

// NoInterrupt marks an expander without an interrupt line.
const NoInterrupt = -1

// Action is the on-controller reaction attached to a port.
type Action struct {
	Command    string
	Execute    bool
	NetCommand string
	NetAction  NetAction
}

type InputConfig struct {
	Mode        ModeIn
	AlwaysSend  bool
	DeviceClass BinaryClass
}

type OutputConfig struct {
	Mode        ModeOut
	Default     int
	Group       int
	DeviceClass ControlClass
	Smooth      bool
	SmoothLong  int
	Min         int
}

type ThresholdConfig struct {
	Mode       ModeSensor
	SetValue   float64
	Hysteresis float64
}

type SensorConfig struct {
	Type        TypeDSensor
	Threshold   ThresholdConfig
	DeviceClass ClimateClass
	Wiegand     ModeWiegand
	D1          int
}

type I2CConfig struct {
	Mode      ModeI2C
	SCL       int
	Category  string
	Device    DeviceI2C
	Interrupt int
}

// PortConfig is one physical port. Exactly one of In, Out, Sensor, I2C and
// Analog is set, matching Type; a not-configured port has none.
type PortConfig struct {
	ID     int
	Type   TypePort
	Title  Title
	Action Action

	In     *InputConfig
	Out    *OutputConfig
	Sensor *SensorConfig
	I2C    *I2CConfig
	Analog *ThresholdConfig
}

func (p PortConfig) Name() string   { return p.Title.Name }
func (p PortConfig) Inverse() bool  { return p.Title.Inverse() }
func (p PortConfig) String() string { return fmt.Sprintf("port %d (%s)", p.ID, p.Type) }

// ParsePort builds the typed config of one port page.
func ParsePort(r protocol.Record) (PortConfig, error) {
	var p PortConfig
	var err error

	if p.ID, err = requiredInt(r, "pn", 0, 255); err != nil {
		return p, err
	}
	if p.Type, err = decodeEnum("pty", r.Value("pty"), typePortCodes); err != nil {
		return p, err
	}
	p.Title = ParseTitle(r.Value(protocol.KeyTitle), fmt.Sprintf("port%d", p.ID))
	if p.Action, err = parseAction(r); err != nil {
		return p, err
	}

	switch p.Type {
	case TypeIn:
		p.In, err = parseInput(r, p.Title)
	case TypeOut:
		p.Out, err = parseOutput(r, p.Title)
	case TypeDSen:
		p.Sensor, err = parseSensor(r, p.Title)
	case TypeI2C:
		p.I2C, err = parseI2C(r)
	case TypeADC:
		var t ThresholdConfig
		t, err = parseThreshold(r)
		p.Analog = &t
	}
	if err != nil {
		return p, fmt.Errorf("port %d: %w", p.ID, err)
	}
	return p, nil
}

func parseAction(r protocol.Record) (Action, error) {
	a := Action{Command: r.Value("ecmd"), NetCommand: r.Value("eth")}
	var err error
	if a.Execute, err = flag(r, "af"); err != nil {
		return a, err
	}
	a.NetAction, err = decodeEnumDefault("naf", r.Value("naf"), netActionCodes, NetDefault)
	return a, err
}

func parseInput(r protocol.Record, t Title) (*InputConfig, error) {
	in := &InputConfig{DeviceClass: ParseBinaryClass(t.Class)}
	var err error
	if in.Mode, err = decodeEnum("m", r.Value("m"), modeInCodes); err != nil {
		return nil, err
	}
	if in.AlwaysSend, err = flag(r, protocol.KeyMisc); err != nil {
		return nil, err
	}
	return in, nil
}

func parseOutput(r protocol.Record, t Title) (*OutputConfig, error) {
	out := &OutputConfig{}
	var err error
	if out.Mode, err = decodeEnum("m", r.Value("m"), modeOutCodes); err != nil {
		return nil, err
	}
	if out.Group, err = optionalInt(r, "grp", 0, 255, NoGroup); err != nil {
		return nil, err
	}

	switch out.Mode {
	case ModePWM:
		out.DeviceClass = ParseControlClass(t.Class, ControlLight)
		if out.DeviceClass == ControlSwitch {
			out.DeviceClass = ControlLight
		}
		if out.Default, err = optionalInt(r, "d", 0, 255, 0); err != nil {
			return nil, err
		}
		if out.Smooth, err = flag(r, protocol.KeyMisc); err != nil {
			return nil, err
		}
		if out.SmoothLong, err = optionalInt(r, "m2", 0, 255, 0); err != nil {
			return nil, err
		}
		if out.Min, err = optionalInt(r, "pwmm", 0, 255, 0); err != nil {
			return nil, err
		}
	default:
		out.DeviceClass = ParseControlClass(t.Class, ControlSwitch)
		if out.Default, err = optionalInt(r, "d", 0, 1, 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseThreshold(r protocol.Record) (ThresholdConfig, error) {
	var t ThresholdConfig
	var err error
	if t.Mode, err = decodeEnumDefault("m", r.Value("m"), modeSensorCodes, ModeNorm); err != nil {
		return t, err
	}
	if t.SetValue, err = optionalFloat(r, protocol.KeyMisc, 0); err != nil {
		return t, err
	}
	t.Hysteresis, err = optionalFloat(r, "hst", 0)
	return t, err
}

func parseSensor(r protocol.Record, t Title) (*SensorConfig, error) {
	s := &SensorConfig{DeviceClass: ParseClimateClass(t.Class)}
	var err error
	if s.Type, err = decodeEnum("d", r.Value("d"), typeDSensorCodes); err != nil {
		return nil, err
	}

	switch s.Type {
	case SensorOneWire:
		if s.Threshold, err = parseThreshold(r); err != nil {
			return nil, err
		}
	case SensorWiegand26:
		if s.Wiegand, err = decodeEnumDefault("m", r.Value("m"), modeWiegandCodes, WiegandD1); err != nil {
			return nil, err
		}
		if s.Wiegand == WiegandD0 {
			if s.D1, err = optionalInt(r, protocol.KeyMisc, 0, 255, 0); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func parseI2C(r protocol.Record) (*I2CConfig, error) {
	c := &I2CConfig{Device: DeviceNone, Interrupt: NoInterrupt}
	var err error
	if c.Mode, err = decodeEnumDefault("m", r.Value("m"), modeI2CCodes, I2CNotConfigured); err != nil {
		return nil, err
	}
	if c.Mode != I2CSDA {
		return c, nil
	}
	if c.SCL, err = optionalInt(r, protocol.KeyMisc, 0, 255, 0); err != nil {
		return nil, err
	}
	c.Category = r.Value("gr")
	if c.Device, err = decodeEnumDefault("d", r.Value("d"), deviceI2CCodes, DeviceNone); err != nil {
		return nil, err
	}
	if c.Interrupt, err = optionalInt(r, "inta", 0, 255, NoInterrupt); err != nil {
		return nil, err
	}
	return c, nil
}

// IsExpander reports whether the port drives an I2C port expander.
func (p PortConfig) IsExpander() bool {
	return p.I2C != nil && p.I2C.Mode == I2CSDA &&
		(p.I2C.Device == DeviceMCP230XX || p.I2C.Device == DevicePCA9685)
}
