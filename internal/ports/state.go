package ports

import (
	"maps"
	"reflect"
	"slices"
)

// State is the decoded state of one port. The concrete type is fixed by the
// port's Kind; values are never mutated after a decoder returns them.
type State interface {
	state()
}

// Switch is the state of binary inputs and relays.
type Switch struct {
	On    bool `json:"on"`
	Count int  `json:"count,omitempty"`
}

// Click is the last gesture seen on a click-mode input.
type Click string

const (
	ClickOff    Click = "off"
	ClickSingle Click = "single"
	ClickDouble Click = "double"
	ClickLong   Click = "long"
)

type Counter struct {
	Count int `json:"count"`
}

// Level is a PWM duty or a raw ADC value.
type Level struct {
	Value int `json:"value"`
}

// Reading is one sensor measurement. An invalid reading keeps its last value.
type Reading struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Thermostat holds the on-controller regulation loop of a 1-Wire port.
type Thermostat struct {
	Enabled  bool    `json:"enabled"`
	Heating  bool    `json:"heating"`
	SetPoint float64 `json:"set_point"`
}

// Readings is the state of single- and multi-value sensors, keyed by category.
type Readings struct {
	Values     map[string]Reading `json:"values"`
	Thermostat *Thermostat        `json:"thermostat,omitempty"`
}

// Bus is the state of a 1-Wire bus, keyed by sensor id.
type Bus struct {
	Values map[string]Reading `json:"values"`
}

// Expander holds one value per sub-port. Values is nil until the first full read.
type Expander struct {
	Values []int `json:"values"`
}

// Code is the last key presented to an iButton or Wiegand reader.
type Code struct {
	Value string `json:"value"`
}

func (Switch) state()   {}
func (Click) state()    {}
func (Counter) state()  {}
func (Level) state()    {}
func (Readings) state() {}
func (Bus) state()      {}
func (Expander) state() {}
func (Code) state()     {}

// Get returns the reading of a category.
func (r Readings) Get(category string) (Reading, bool) {
	v, ok := r.Values[category]
	return v, ok
}

func (r Readings) clone() Readings {
	out := Readings{Values: maps.Clone(r.Values)}
	if out.Values == nil {
		out.Values = map[string]Reading{}
	}
	if r.Thermostat != nil {
		t := *r.Thermostat
		out.Thermostat = &t
	}
	return out
}

func (b Bus) clone() Bus {
	out := Bus{Values: maps.Clone(b.Values)}
	if out.Values == nil {
		out.Values = map[string]Reading{}
	}
	return out
}

func (e Expander) clone() Expander {
	return Expander{Values: slices.Clone(e.Values)}
}

// Equal reports whether two states carry the same observable values.
func Equal(a, b State) bool {
	return reflect.DeepEqual(a, b)
}
