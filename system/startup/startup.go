// Package startup installs the systemd unit of the service.
package startup

import (
	"fmt"
	"os"
	"strings"
)

type Unit struct {
	User       string
	WorkDir    string
	Binary     string
	ConfigFile string
	LogLevel   string
}

// ServiceUnit renders the unit file for the service.
func ServiceUnit(u Unit) string {
	args := []string{u.Binary, "-config-file", u.ConfigFile}
	if u.LogLevel != "" {
		args = append(args, "-log-level", u.LogLevel)
	}

	user := ""
	if u.User != "" {
		user = "User=" + u.User + "\n"
	}

	return fmt.Sprintf(`[Unit]
Description=MegaD controller hub
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
%sWorkingDirectory=%s
ExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, user, u.WorkDir, strings.Join(args, " "))
}

// InstallService writes the unit to path.
func InstallService(path string, u Unit) error {
	if u.Binary == "" || u.ConfigFile == "" {
		return fmt.Errorf("binary and config file are required")
	}
	if err := os.WriteFile(path, []byte(ServiceUnit(u)), 0644); err != nil {
		return fmt.Errorf("failed to write unit %s: %w", path, err)
	}
	return nil
}
