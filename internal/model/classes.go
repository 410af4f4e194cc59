package model

import "strings"

// BinaryClass is the presentation hint of a binary input.
type BinaryClass string

const (
	BinaryNone       BinaryClass = ""
	BinaryDoor       BinaryClass = "door"
	BinaryGarageDoor BinaryClass = "garage_door"
	BinaryLock       BinaryClass = "lock"
	BinaryMoisture   BinaryClass = "moisture"
	BinaryMotion     BinaryClass = "motion"
	BinarySmoke      BinaryClass = "smoke"
	BinaryWindow     BinaryClass = "window"
)

func ParseBinaryClass(s string) BinaryClass {
	switch c := BinaryClass(strings.ToLower(s)); c {
	case BinaryDoor, BinaryGarageDoor, BinaryLock, BinaryMoisture, BinaryMotion, BinarySmoke, BinaryWindow:
		return c
	}
	return BinaryNone
}

// ControlClass is the presentation hint of an output.
type ControlClass string

const (
	ControlSwitch ControlClass = "switch"
	ControlLight  ControlClass = "light"
	ControlFan    ControlClass = "fan"
)

func ParseControlClass(s string, def ControlClass) ControlClass {
	switch c := ControlClass(strings.ToLower(s)); c {
	case ControlSwitch, ControlLight, ControlFan:
		return c
	}
	return def
}

// ClimateClass names the space a temperature loop controls. Each class
// bounds the set-points that may be written.
type ClimateClass string

const (
	ClimateRoom    ClimateClass = "room"
	ClimateBoiler  ClimateClass = "boiler"
	ClimateCellar  ClimateClass = "cellar"
	ClimateFloor   ClimateClass = "floor"
	ClimateOutside ClimateClass = "outside"
)

// TemperatureRange is an inclusive set-point bound in °C.
type TemperatureRange struct {
	Min float64
	Max float64
}

var climateRanges = map[ClimateClass]TemperatureRange{
	ClimateRoom:    {Min: 5, Max: 35},
	ClimateBoiler:  {Min: 25, Max: 90},
	ClimateCellar:  {Min: 0, Max: 15},
	ClimateFloor:   {Min: 15, Max: 45},
	ClimateOutside: {Min: -40, Max: 50},
}

func ParseClimateClass(s string) ClimateClass {
	c := ClimateClass(strings.ToLower(s))
	if c == "home" {
		return ClimateRoom
	}
	if _, ok := climateRanges[c]; ok {
		return c
	}
	return ClimateRoom
}

func (c ClimateClass) Range() TemperatureRange {
	if r, ok := climateRanges[c]; ok {
		return r
	}
	return climateRanges[ClimateRoom]
}

func (r TemperatureRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}
