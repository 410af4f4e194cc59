package ports

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

// splitCount separates "ON/3" into its state token and counter.
func splitCount(s string) (token, count string, hasCount bool) {
	token, count, hasCount = strings.Cut(strings.TrimSpace(s), "/")
	return strings.TrimSpace(token), strings.TrimSpace(count), hasCount
}

func isBusy(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), protocol.Busy)
}

func isOn(s string) bool {
	return strings.EqualFold(s, protocol.On) || s == "1"
}

func isOff(s string) bool {
	return strings.EqualFold(s, protocol.Off) || s == "0"
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid counter %q", s)
	}
	return n, nil
}

// decodeBinary handles inputs reporting press and release. Text is "ON",
// "OFF/12" or "1"; a push carries m=1 for release and m=2 for a long hold,
// which leaves the current state alone.
func decodeBinary(prev Switch, inverse bool, in Payload) Result {
	next := prev
	if in.IsParams() {
		m, hasM := in.param("m")
		switch {
		case hasM && m == "2":
			return outcome(Retained)
		case hasM && m == "1":
			next.On = inverse
		default:
			next.On = !inverse
		}
		if cnt, has := in.param("cnt"); has {
			n, err := parseCount(cnt)
			if err != nil {
				return invalidResult(err)
			}
			next.Count = n
		}
		return ok(next)
	}

	token, count, hasCount := splitCount(in.Text)
	// busy is the only token that is not read as off: the input was not
	// sampled, so the previous state stands.
	if isBusy(token) {
		return outcome(Busy)
	}
	next.On = isOn(token) != inverse
	if hasCount {
		n, err := parseCount(count)
		if err != nil {
			return invalidResult(err)
		}
		next.Count = n
	}
	return ok(next)
}

// decodeClick maps a gesture. Text carries the gesture name; a push carries
// click=1|2 or m=2 for a long press.
func decodeClick(prev Click, in Payload) Result {
	if in.IsParams() {
		if c, has := in.param("click"); has {
			switch c {
			case "1":
				return ok(ClickSingle)
			case "2":
				return ok(ClickDouble)
			}
			return outcome(Retained)
		}
		if m, _ := in.param("m"); m == "2" {
			return ok(ClickLong)
		}
		return outcome(Retained)
	}

	token, _, _ := splitCount(in.Text)
	if isBusy(token) {
		return outcome(Busy)
	}
	switch c := Click(strings.ToLower(token)); c {
	case ClickOff, ClickSingle, ClickDouble, ClickLong:
		return ok(c)
	}
	return outcome(Retained)
}

func decodeCounter(prev Counter, in Payload) Result {
	raw, has := "", false
	if in.IsParams() {
		raw, has = in.param("cnt")
	} else {
		token, count, hasCount := splitCount(in.Text)
		if isBusy(token) {
			return outcome(Busy)
		}
		switch {
		case hasCount:
			raw, has = count, true
		default:
			if _, err := strconv.Atoi(token); err == nil {
				raw, has = token, true
			}
		}
	}
	if !has {
		return outcome(Retained)
	}
	n, err := parseCount(raw)
	if err != nil {
		return invalidResult(err)
	}
	return ok(Counter{Count: n})
}

// decodeRelay accepts ON/OFF or 1/0, as a bulk slot, a command echo or v=.
func decodeRelay(prev Switch, inverse bool, in Payload) Result {
	token := ""
	if in.IsParams() {
		v, has := in.param("v")
		if !has {
			return outcome(Retained)
		}
		token = v
	} else {
		token, _, _ = splitCount(in.Text)
	}

	switch {
	case isBusy(token):
		return outcome(Busy)
	case isOn(token):
		return ok(Switch{On: !inverse, Count: prev.Count})
	case isOff(token):
		return ok(Switch{On: inverse, Count: prev.Count})
	}
	return invalidResult(fmt.Errorf("invalid relay state %q", token))
}

// decodePWM accepts a duty value 0..255.
func decodePWM(prev Level, in Payload) Result {
	token := ""
	if in.IsParams() {
		v, has := in.param("v")
		if !has {
			return outcome(Retained)
		}
		token = v
	} else {
		token, _, _ = splitCount(in.Text)
	}

	if isBusy(token) {
		return outcome(Busy)
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 || n > 255 {
		return invalidResult(fmt.Errorf("invalid pwm value %q", token))
	}
	return ok(Level{Value: n})
}
