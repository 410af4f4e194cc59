package ports

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// PIDState is the live state of an on-controller PID regulator.
type PIDState struct {
	SetPoint float64 `json:"set_point"`
	Value    Reading `json:"value"`
	Input    int     `json:"input"`
}

// Enabled reports whether the regulator has an input port assigned.
func (s PIDState) Enabled() bool {
	return s.Input != protocol.PortOff
}

// PID is one decoded regulator.
type PID struct {
	Controller string
	Conf       model.PIDConfig

	state PIDState
}

func NewPID(controller string, conf model.PIDConfig) *PID {
	p := &PID{Controller: controller, Conf: conf}
	p.state = PIDState{SetPoint: conf.SetPoint, Input: conf.Input}
	if conf.Value != nil {
		p.state.Value = Reading{Value: *conf.Value, Valid: true}
	}
	return p
}

func (p *PID) ID() int         { return p.Conf.ID }
func (p *PID) State() PIDState { return p.state }

// Update applies a PID record (pidsp, pidi, value) as scraped from the
// regulator page or pushed. Unparseable fields leave the state unchanged.
func (p *PID) Update(params map[string]string) Result {
	next := p.state
	touched := false

	if v, has := params["pidsp"]; has {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return p.fail(params, fmt.Errorf("invalid set-point %q", v))
		}
		next.SetPoint = f
		touched = true
	}
	if v, has := params["pidi"]; has {
		v = strings.TrimSpace(v)
		if v == "" {
			next.Input = protocol.PortOff
		} else {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > protocol.PortOff {
				return p.fail(params, fmt.Errorf("invalid input port %q", v))
			}
			next.Input = n
		}
		touched = true
	}
	if v, has := params["value"]; has {
		r, err := parseReading(strings.TrimSpace(v))
		if err != nil {
			return p.fail(params, err)
		}
		if !r.Valid {
			r.Value = next.Value.Value
		}
		next.Value = r
		touched = true
	}

	if !touched {
		return outcome(Retained)
	}
	changed := next != p.state
	p.state = next
	if changed {
		log.Debug().Str("controller", p.Controller).Int("pid", p.Conf.ID).Msg("PID state changed")
	}
	return Result{Outcome: Ok, Changed: changed}
}

func (p *PID) fail(params map[string]string, err error) Result {
	log.Error().
		Err(err).
		Str("controller", p.Controller).
		Int("pid", p.Conf.ID).
		Str("raw", Params(params).String()).
		Msg("Failed to decode PID payload")
	return invalidResult(err)
}
