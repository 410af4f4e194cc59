// Package ports decodes controller payloads into typed port and PID state.
//
// Every port has a Kind chosen once from its config. The Kind selects a pure
// decode function that turns a raw payload into a Result; Port.Update applies
// the Result and logs by outcome. Decoders never panic on device input.
package ports

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// Kind is the personality of a port.
type Kind string

const (
	KindBinary     Kind = "binary_sensor"
	KindClick      Kind = "click"
	KindCounter    Kind = "counter"
	KindRelay      Kind = "relay"
	KindPWM        Kind = "pwm"
	KindOneWire    Kind = "one_wire"
	KindDHT        Kind = "dht"
	KindOneWireBus Kind = "one_wire_bus"
	KindReader     Kind = "reader"
	KindI2CSensor  Kind = "i2c_sensor"
	KindMCP        Kind = "mcp230xx"
	KindPCA        Kind = "pca9685"
	KindAnalog     Kind = "analog"

	// KindI2CBus marks an SDA port without a configured device. It is
	// scanned for devices instead of being decoded.
	KindI2CBus Kind = "i2c_bus"
)

// Sensor categories as they appear in "category:value" payloads.
const (
	CatTemperature = "temp"
	CatHumidity    = "hum"
	CatPressure    = "press"
	CatCO2         = "co2"
	CatVoltage     = "v"
	CatCurrent     = "i"
	CatPower       = "p"
	CatIlluminance = "lux"
)

var i2cLayouts = map[model.DeviceI2C][]string{
	model.DeviceHTU21D:   {CatTemperature, CatHumidity},
	model.DeviceHTU31D:   {CatTemperature, CatHumidity},
	model.DeviceSHT31:    {CatTemperature, CatHumidity},
	model.DeviceBMx280:   {CatTemperature, CatPressure, CatHumidity},
	model.DeviceBMP180:   {CatTemperature, CatPressure},
	model.DeviceSCD4x:    {CatCO2, CatTemperature, CatHumidity},
	model.DeviceINA226:   {CatVoltage, CatCurrent, CatPower},
	model.DeviceBH1750:   {CatIlluminance},
	model.DeviceTSL2591:  {CatIlluminance},
	model.DeviceMAX44009: {CatIlluminance},
}

// BusDeviceSupported reports whether a device found on an I2C bus scan can be
// decoded as a sensor port.
func BusDeviceSupported(d model.DeviceI2C) bool {
	_, ok := i2cLayouts[d]
	return ok
}

// Classify picks the personality of a configured port. ok is false for
// ports this service does not model.
func Classify(c model.PortConfig) (Kind, bool) {
	switch {
	case c.In != nil:
		switch {
		case c.In.Mode == model.ModePressRelease || c.In.AlwaysSend:
			return KindBinary, true
		case c.In.Mode == model.ModeClick:
			return KindClick, true
		default:
			return KindCounter, true
		}
	case c.Out != nil:
		switch c.Out.Mode {
		case model.ModeRelay, model.ModeRelayLink:
			return KindRelay, true
		case model.ModePWM:
			return KindPWM, true
		}
	case c.Sensor != nil:
		switch c.Sensor.Type {
		case model.SensorOneWire:
			return KindOneWire, true
		case model.SensorDHT11, model.SensorDHT22:
			return KindDHT, true
		case model.SensorOneWireBus:
			return KindOneWireBus, true
		case model.SensorIButton:
			return KindReader, true
		case model.SensorWiegand26:
			if c.Sensor.Wiegand == model.WiegandD0 {
				return KindReader, true
			}
		}
	case c.I2C != nil && c.I2C.Mode == model.I2CSDA:
		switch c.I2C.Device {
		case model.DeviceNone:
			return KindI2CBus, true
		case model.DeviceMCP230XX:
			return KindMCP, true
		case model.DevicePCA9685:
			return KindPCA, true
		}
		if _, ok := i2cLayouts[c.I2C.Device]; ok {
			return KindI2CSensor, true
		}
	case c.Analog != nil:
		return KindAnalog, true
	}
	return "", false
}

// Port is one decoded port. It is not safe for concurrent use; the owning
// aggregate serialises access.
type Port struct {
	Controller string
	Conf       model.PortConfig
	Kind       Kind
	Key        string
	Device     model.DeviceI2C
	Extra      []model.ExtraPortConfig

	layout    []string
	state     State
	available bool
}

// New builds a port of the given kind with its initial state.
func New(controller string, conf model.PortConfig, kind Kind) *Port {
	p := &Port{Controller: controller, Conf: conf, Kind: kind, Key: strconv.Itoa(conf.ID)}
	if conf.I2C != nil {
		p.Device = conf.I2C.Device
	}
	p.init()
	return p
}

// NewBusDevice builds a sensor port for a device found by scanning an I2C bus.
func NewBusDevice(controller string, conf model.PortConfig, device model.DeviceI2C, index int) *Port {
	p := &Port{
		Controller: controller,
		Conf:       conf,
		Kind:       KindI2CSensor,
		Key:        fmt.Sprintf("%d_%d", conf.ID, index),
		Device:     device,
	}
	p.init()
	return p
}

func (p *Port) init() {
	switch p.Kind {
	case KindBinary, KindRelay:
		p.state = Switch{}
	case KindClick:
		p.state = ClickOff
	case KindCounter:
		p.state = Counter{}
	case KindPWM, KindAnalog:
		p.state = Level{}
	case KindOneWire, KindDHT, KindI2CSensor:
		p.layout = p.sensorLayout()
		r := Readings{Values: map[string]Reading{}}
		for _, c := range p.layout {
			r.Values[c] = Reading{}
		}
		if p.IsThermostat() {
			r.Thermostat = &Thermostat{Enabled: true, SetPoint: p.Conf.Sensor.Threshold.SetValue}
		}
		p.state = r
	case KindOneWireBus:
		p.state = Bus{Values: map[string]Reading{}}
	case KindMCP, KindPCA:
		p.state = Expander{}
	case KindReader:
		p.state = Code{}
	}
}

func (p *Port) sensorLayout() []string {
	switch p.Kind {
	case KindOneWire:
		return []string{CatTemperature}
	case KindDHT:
		return []string{CatTemperature, CatHumidity}
	default:
		return i2cLayouts[p.Device]
	}
}

func (p *Port) ID() int            { return p.Conf.ID }
func (p *Port) State() State       { return p.state }
func (p *Port) Available() bool    { return p.available }
func (p *Port) Layout() []string   { return p.layout }
func (p *Port) IsSensor() bool     { return p.layout != nil || p.Kind == KindOneWireBus }
func (p *Port) Inverse() bool      { return p.Conf.Inverse() }
func (p *Port) IsExpander() bool   { return p.Kind == KindMCP || p.Kind == KindPCA }
func (p *Port) IsSwitchable() bool { return p.Kind == KindRelay || p.Kind == KindPWM }

// IsThermostat reports whether the port runs an on-controller regulation loop:
// a 1-Wire sensor in less-and-more mode with its action enabled.
func (p *Port) IsThermostat() bool {
	return p.Kind == KindOneWire &&
		p.Conf.Sensor.Threshold.Mode == model.ModeLessAndMore &&
		p.Conf.Action.Execute
}

// Momentary reports whether the port only reports the leading edge of a
// gesture and must be reverted to off after a push.
func (p *Port) Momentary() bool {
	return p.Kind == KindClick || (p.Kind == KindBinary && p.Conf.In.Mode == model.ModePress)
}

// RevertPayload is applied to momentary ports once the revert delay elapses.
// It decodes to the logical released state whatever the inversion.
func (p *Port) RevertPayload() Payload {
	if p.Kind == KindClick {
		return Text(string(ClickOff))
	}
	if p.Inverse() {
		return Text(protocol.On)
	}
	return Text(protocol.Off)
}

// Active reports whether a momentary state is in its pressed phase.
func Active(s State) bool {
	switch v := s.(type) {
	case Switch:
		return v.On
	case Click:
		return v != ClickOff
	}
	return false
}

// Update decodes a payload and applies the result.
func (p *Port) Update(in Payload) Result {
	res := p.decode(in)

	switch res.Outcome {
	case Ok:
		res.Changed = !Equal(p.state, res.State)
		p.state = res.State
		p.available = true
		if res.Changed {
			p.log(zerolog.DebugLevel, in).Msg("Port state changed")
		}
	case Unavailable:
		if res.State != nil {
			res.Changed = !Equal(p.state, res.State)
			p.state = res.State
		}
		p.available = false
		p.log(zerolog.DebugLevel, in).Msg("Port reported no data")
	case Busy:
		level := zerolog.WarnLevel
		if p.IsSensor() {
			level = zerolog.InfoLevel
		}
		p.log(level, in).Msg("Controller busy, keeping previous state")
	case Unconfigured:
		p.log(zerolog.WarnLevel, in).Msg("Port reports itself switched off")
	case Retained:
		p.log(zerolog.DebugLevel, in).Msg("Payload carries no state for this port")
	case NotReady:
		p.log(zerolog.WarnLevel, in).Msg("Partial update before initial state, ignoring")
	case Invalid:
		p.log(zerolog.ErrorLevel, in).Err(res.Err).Msg("Failed to decode port payload")
	}
	return res
}

func (p *Port) log(level zerolog.Level, in Payload) *zerolog.Event {
	return log.WithLevel(level).
		Str("controller", p.Controller).
		Str("port", p.Key).
		Str("kind", string(p.Kind)).
		Str("raw", in.String())
}

// SetThermostat updates the regulation loop flags outside of a device payload.
func (p *Port) SetThermostat(set func(t *Thermostat)) bool {
	r, isReadings := p.state.(Readings)
	if !isReadings || r.Thermostat == nil {
		return false
	}
	next := r.clone()
	set(next.Thermostat)
	p.state = next
	return true
}

func (p *Port) decode(in Payload) Result {
	switch s := p.state.(type) {
	case Switch:
		if p.Kind == KindRelay {
			return decodeRelay(s, p.Inverse(), in)
		}
		return decodeBinary(s, p.Inverse(), in)
	case Click:
		return decodeClick(s, in)
	case Counter:
		return decodeCounter(s, in)
	case Level:
		if p.Kind == KindAnalog {
			return decodeAnalog(s, in)
		}
		return decodePWM(s, in)
	case Readings:
		return decodeReadings(p.layout, s, in)
	case Bus:
		return decodeBus(s, in)
	case Expander:
		return decodeExpander(s, in)
	case Code:
		return decodeCode(s, in)
	}
	return invalidResult(fmt.Errorf("no decoder for kind %q", p.Kind))
}
