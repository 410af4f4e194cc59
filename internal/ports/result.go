package ports

import (
	"maps"
	"slices"
	"strings"
)

// Outcome classifies a decode attempt.
type Outcome int

const (
	// Ok carries a new state.
	Ok Outcome = iota
	// Unavailable means the device reported NA for the whole payload.
	Unavailable
	// Busy means the controller was mid-operation; the state is kept.
	Busy
	// Unconfigured means the port reported itself switched off.
	Unconfigured
	// Retained means the payload carries nothing this personality understands.
	Retained
	// NotReady means a partial update arrived before any full state.
	NotReady
	// Invalid means the payload was malformed.
	Invalid
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case Unavailable:
		return "unavailable"
	case Busy:
		return "busy"
	case Unconfigured:
		return "unconfigured"
	case Retained:
		return "retained"
	case NotReady:
		return "not_ready"
	default:
		return "invalid"
	}
}

// Result is what a decoder produced for one payload.
type Result struct {
	State   State
	Outcome Outcome
	Err     error
	Changed bool
}

func ok(s State) Result              { return Result{State: s, Outcome: Ok} }
func outcome(o Outcome) Result       { return Result{Outcome: o} }
func invalidResult(err error) Result { return Result{Outcome: Invalid, Err: err} }

// Payload is a raw port update. Bulk status slots and command echoes arrive
// as Text ("ON/3", "temp:24/hum:40"); pushes arrive as Params.
type Payload struct {
	Text   string
	Params map[string]string
}

func Text(s string) Payload {
	return Payload{Text: s}
}

func Params(m map[string]string) Payload {
	if m == nil {
		m = map[string]string{}
	}
	return Payload{Params: maps.Clone(m)}
}

func (p Payload) IsParams() bool {
	return p.Params != nil
}

func (p Payload) String() string {
	if !p.IsParams() {
		return p.Text
	}
	parts := make([]string, 0, len(p.Params))
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+p.Params[k])
	}
	return strings.Join(parts, "&")
}

func (p Payload) param(key string) (string, bool) {
	v, ok := p.Params[key]
	return strings.TrimSpace(v), ok
}
