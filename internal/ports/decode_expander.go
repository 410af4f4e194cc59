package ports

import (
	"fmt"
	"strconv"
	"strings"
)

// decodeExpander accepts the full "v;v;...;v" listing of 8 or 16 sub-ports
// or, as a push, extN=value patches. Patches need a full listing first.
func decodeExpander(prev Expander, in Payload) Result {
	if in.IsParams() {
		return patchExpander(prev, in)
	}

	text := strings.TrimSpace(in.Text)
	if isBusy(text) {
		return outcome(Busy)
	}
	tokens := strings.Split(strings.TrimSuffix(text, ";"), ";")
	if len(tokens) != 8 && len(tokens) != 16 {
		return invalidResult(fmt.Errorf("expander listing has %d entries", len(tokens)))
	}

	next := Expander{Values: make([]int, len(tokens))}
	for i, tok := range tokens {
		v, err := parseExtValue(tok)
		if err != nil {
			return invalidResult(err)
		}
		next.Values[i] = v
	}
	return ok(next)
}

func patchExpander(prev Expander, in Payload) Result {
	next := prev.clone()
	touched := false

	for key, raw := range in.Params {
		idx, isExt := extIndex(key)
		if !isExt {
			continue
		}
		if next.Values == nil {
			return outcome(NotReady)
		}
		if idx >= len(next.Values) {
			return invalidResult(fmt.Errorf("sub-port %d out of range", idx))
		}
		v, err := parseExtValue(raw)
		if err != nil {
			return invalidResult(err)
		}
		next.Values[idx] = v
		touched = true
	}

	if !touched {
		return outcome(Retained)
	}
	return ok(next)
}

// extIndex parses keys of the form ext<N>.
func extIndex(key string) (int, bool) {
	rest, found := strings.CutPrefix(key, "ext")
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HasExtKeys reports whether a push addresses expander sub-ports, which
// means the sender port is an expander interrupt line.
func HasExtKeys(params map[string]string) bool {
	for k := range params {
		if _, ok := extIndex(k); ok {
			return true
		}
	}
	return false
}

func parseExtValue(s string) (int, error) {
	s = strings.TrimSpace(s)
	switch {
	case isOn(s):
		return 1, nil
	case isOff(s):
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid sub-port value %q", s)
	}
	return n, nil
}
