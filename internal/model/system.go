package model

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

const (
	maxPasswordLen = 3
	maxDeviceIDLen = 5
)

// SystemConfig is the controller-wide part of the configuration (pages cf=1 and cf=2).
type SystemConfig struct {
	Address    netip.Addr
	Netmask    netip.Addr
	Gateway    netip.Addr
	Password   string
	ServerAddr netip.Addr
	ServerPort int
	ServerType ServerType
	Script     string
	UART       UART
	DeviceID   string
}

func ParseSystem(r protocol.Record) (SystemConfig, error) {
	var s SystemConfig
	var err error

	eip := strings.TrimSpace(r.Value("eip"))
	if eip == "" {
		return s, invalid("eip", eip, "required")
	}
	if s.Address, err = parseIPv4("eip", eip); err != nil {
		return s, err
	}
	if s.Netmask, err = optionalIPv4(r, "emsk"); err != nil {
		return s, err
	}
	if s.Gateway, err = optionalIPv4(r, "gw"); err != nil {
		return s, err
	}

	pwd, ok := r.Get("pwd")
	if !ok || pwd == "" {
		return s, invalid("pwd", pwd, "required")
	}
	if len(pwd) > maxPasswordLen {
		return s, invalid("pwd", pwd, "longer than 3 characters")
	}
	s.Password = pwd

	if sip := strings.TrimSpace(r.Value("sip")); sip != "" {
		host, port, hasPort := strings.Cut(sip, ":")
		if s.ServerAddr, err = parseIPv4("sip", host); err != nil {
			return s, err
		}
		if hasPort {
			if s.ServerPort, err = boundedInt("sip", port, 1, 65535); err != nil {
				return s, err
			}
		} else {
			s.ServerPort = 80
		}
	}

	if s.ServerType, err = decodeEnumDefault("srvt", r.Value("srvt"), serverTypeCodes, ServerHTTP); err != nil {
		return s, err
	}
	if s.UART, err = decodeEnumDefault("gsm", r.Value("gsm"), uartCodes, UARTDisabled); err != nil {
		return s, err
	}

	s.Script = r.Value("sct")

	s.DeviceID = r.Value(protocol.KeyDeviceID)
	if len(s.DeviceID) > maxDeviceIDLen {
		return s, invalid(protocol.KeyDeviceID, s.DeviceID, "longer than 5 characters")
	}

	return s, nil
}

// ServerHost renders the push target as host:port.
func (s SystemConfig) ServerHost() string {
	if !s.ServerAddr.IsValid() {
		return ""
	}
	return s.ServerAddr.String() + ":" + strconv.Itoa(s.ServerPort)
}
