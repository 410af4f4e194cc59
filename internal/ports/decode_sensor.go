package ports

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// sensorSentinel maps whole-payload sentinels shared by every sensor.
func sensorSentinel(s string) (Outcome, bool) {
	switch {
	case isBusy(s):
		return Busy, true
	case strings.EqualFold(s, protocol.Off):
		return Unconfigured, true
	case strings.EqualFold(s, protocol.NA):
		return Unavailable, true
	}
	return Ok, false
}

func parseReading(s string) (Reading, error) {
	if strings.EqualFold(s, protocol.NA) {
		return Reading{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid reading %q", s)
	}
	return Reading{Value: f, Valid: true}, nil
}

// setReading stores r, keeping the previous value when r is not valid.
func setReading(values map[string]Reading, category string, r Reading) {
	if !r.Valid {
		r.Value = values[category].Value
	}
	values[category] = r
}

func invalidateAll(prev Readings) Readings {
	next := prev.clone()
	for c, r := range next.Values {
		r.Valid = false
		next.Values[c] = r
	}
	return next
}

// decodeReadings handles "temp:24.5/hum:40" category lists, the legacy bare
// positional form "24.5/40" and a single bare number, which fills the first
// field of the layout. Fields not present keep their previous reading.
func decodeReadings(layout []string, prev Readings, in Payload) Result {
	if in.IsParams() {
		return decodeReadingParams(layout, prev, in)
	}

	text := strings.TrimSpace(in.Text)
	if o, isSentinel := sensorSentinel(text); isSentinel {
		if o == Unavailable {
			return Result{State: invalidateAll(prev), Outcome: Unavailable}
		}
		return outcome(o)
	}
	if text == "" {
		return invalidResult(fmt.Errorf("empty sensor payload"))
	}

	next := prev.clone()
	parts := strings.Split(text, "/")
	if strings.Contains(text, ":") {
		for _, part := range parts {
			category, value, found := strings.Cut(part, ":")
			if !found {
				return invalidResult(fmt.Errorf("mixed sensor payload %q", text))
			}
			category = strings.ToLower(strings.TrimSpace(category))
			if !slices.Contains(layout, category) {
				continue
			}
			r, err := parseReading(strings.TrimSpace(value))
			if err != nil {
				return invalidResult(err)
			}
			setReading(next.Values, category, r)
		}
		return ok(next)
	}

	if len(parts) > len(layout) {
		return invalidResult(fmt.Errorf("%d values for %d fields", len(parts), len(layout)))
	}
	for i, part := range parts {
		r, err := parseReading(strings.TrimSpace(part))
		if err != nil {
			return invalidResult(err)
		}
		setReading(next.Values, layout[i], r)
	}
	return ok(next)
}

// decodeReadingParams handles pushes: category keys, v for the first field,
// and on thermostats dir, status_thermo and misc.
func decodeReadingParams(layout []string, prev Readings, in Payload) Result {
	next := prev.clone()
	touched := false

	for key, raw := range in.Params {
		raw = strings.TrimSpace(raw)
		category := key
		if key == "v" && len(layout) > 0 {
			category = layout[0]
		}
		if slices.Contains(layout, category) {
			r, err := parseReading(raw)
			if err != nil {
				return invalidResult(err)
			}
			setReading(next.Values, category, r)
			touched = true
			continue
		}
		if next.Thermostat == nil {
			continue
		}
		switch key {
		case "dir":
			next.Thermostat.Heating = raw == "0"
			touched = true
		case "status_thermo":
			next.Thermostat.Enabled = isOn(raw) || strings.EqualFold(raw, "true")
			touched = true
		case protocol.KeyMisc:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return invalidResult(fmt.Errorf("invalid set-point %q", raw))
			}
			next.Thermostat.SetPoint = f
			touched = true
		}
	}

	if !touched {
		return outcome(Retained)
	}
	return ok(next)
}

// decodeBus handles "id:value;id:value" listings of a 1-Wire bus.
func decodeBus(prev Bus, in Payload) Result {
	if in.IsParams() {
		return outcome(Retained)
	}
	text := strings.TrimSpace(in.Text)
	if o, isSentinel := sensorSentinel(text); isSentinel {
		return outcome(o)
	}

	next := prev.clone()
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, value, found := strings.Cut(part, ":")
		if !found || id == "" {
			return invalidResult(fmt.Errorf("invalid bus entry %q", part))
		}
		r, err := parseReading(strings.TrimSpace(value))
		if err != nil {
			return invalidResult(err)
		}
		setReading(next.Values, id, r)
	}
	return ok(next)
}

// decodeAnalog accepts a bare integer.
func decodeAnalog(prev Level, in Payload) Result {
	token := ""
	if in.IsParams() {
		v, has := in.param("v")
		if !has {
			return outcome(Retained)
		}
		token = v
	} else {
		token = strings.TrimSpace(in.Text)
	}

	if o, isSentinel := sensorSentinel(token); isSentinel {
		return outcome(o)
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return invalidResult(fmt.Errorf("invalid analog value %q", token))
	}
	return ok(Level{Value: n})
}

func decodeCode(prev Code, in Payload) Result {
	token := ""
	if in.IsParams() {
		token, _ = in.param("v")
	} else {
		token = strings.TrimSpace(in.Text)
	}

	switch {
	case isBusy(token):
		return outcome(Busy)
	case token == "", strings.EqualFold(token, protocol.Off):
		return outcome(Retained)
	}
	return ok(Code{Value: token})
}
