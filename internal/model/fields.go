package model

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

func requiredInt(r protocol.Record, key string, min, max int) (int, error) {
	v, ok := r.Get(key)
	if !ok || v == "" {
		return 0, invalid(key, v, "required")
	}
	return boundedInt(key, v, min, max)
}

func optionalInt(r protocol.Record, key string, min, max, def int) (int, error) {
	v := strings.TrimSpace(r.Value(key))
	if v == "" {
		return def, nil
	}
	return boundedInt(key, v, min, max)
}

func boundedInt(key, v string, min, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, invalid(key, v, "not an integer")
	}
	if n < min || n > max {
		return 0, invalid(key, v, fmt.Sprintf("out of range %d..%d", min, max))
	}
	return n, nil
}

func optionalFloat(r protocol.Record, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.Value(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, invalid(key, v, "not a number")
	}
	return f, nil
}

// flag decodes checkbox style fields: "on" or "1" is set, empty or "0" is clear.
func flag(r protocol.Record, key string) (bool, error) {
	switch v := strings.ToLower(strings.TrimSpace(r.Value(key))); v {
	case "on", "1":
		return true, nil
	case "", "0", "off":
		return false, nil
	default:
		return false, invalid(key, v, "not a flag")
	}
}

func optionalIPv4(r protocol.Record, key string) (netip.Addr, error) {
	v := strings.TrimSpace(r.Value(key))
	if v == "" {
		return netip.Addr{}, nil
	}
	return parseIPv4(key, v)
}

func parseIPv4(key, v string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(v)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, invalid(key, v, "not an IPv4 address")
	}
	return addr, nil
}
