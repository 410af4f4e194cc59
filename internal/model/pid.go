package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// NoSensor marks a PID title without a linked sensor port.
const NoSensor = -1

// PIDConfig is one on-controller PID regulator (page cf=11).
type PIDConfig struct {
	ID          int
	Title       Title
	DeviceClass ClimateClass
	SensorID    int
	Input       int
	Output      int
	SetPoint    float64
	P, I, D     float64
	Mode        PIDMode
	Cycle       int
	Value       *float64
}

func (p PIDConfig) Name() string { return p.Title.Name }

// Enabled reports whether the regulator has an input assigned.
func (p PIDConfig) Enabled() bool { return p.Input != protocol.PortOff }

func ParsePID(r protocol.Record) (PIDConfig, error) {
	var p PIDConfig
	var err error

	if p.ID, err = requiredInt(r, protocol.KeyPID, 0, 255); err != nil {
		return p, err
	}
	p.Title = ParseTitle(r.Value(protocol.KeyPIDTitle), fmt.Sprintf("pid%d", p.ID))
	p.DeviceClass = ParseClimateClass(p.Title.Class)
	p.SensorID = NoSensor
	if id, err := strconv.Atoi(p.Title.Third); err == nil && id >= 0 {
		p.SensorID = id
	}

	if p.Input, err = optionalInt(r, "pidi", 0, 255, protocol.PortOff); err != nil {
		return p, err
	}
	if p.Output, err = optionalInt(r, "pido", 0, 255, protocol.PortOff); err != nil {
		return p, err
	}
	if p.SetPoint, err = optionalFloat(r, "pidsp", 0); err != nil {
		return p, err
	}
	if p.P, err = optionalFloat(r, "pidpf", 0); err != nil {
		return p, err
	}
	if p.I, err = optionalFloat(r, "pidif", 0); err != nil {
		return p, err
	}
	if p.D, err = optionalFloat(r, "piddf", 0); err != nil {
		return p, err
	}
	if p.Mode, err = decodeEnumDefault("pidm", r.Value("pidm"), pidModeCodes, PIDHeat); err != nil {
		return p, err
	}
	if p.Cycle, err = optionalInt(r, "pidc", 0, 65535, 0); err != nil {
		return p, err
	}

	if v := strings.TrimSpace(r.Value("value")); v != "" && v != protocol.NA {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, invalid("value", v, "not a number")
		}
		p.Value = &f
	}
	return p, nil
}
