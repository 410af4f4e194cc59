package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/thatsimonsguy/megad-hub/db"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
	"github.com/thatsimonsguy/megad-hub/internal/store"
	"github.com/thatsimonsguy/megad-hub/system/startup"
)

type options struct {
	dbPath, command, id      string
	host, password, file     string
	action                   string
	port                     int
	unit, binary, configFile string
	user, workDir            string
	timeout                  time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.dbPath, "db", "data/megad.db", "Path to the SQLite database file")
	flag.StringVar(&o.command, "cmd", "", "Command to run: dump, parse, restore, status, set-port, send, list, enable, disable, refresh, install-service")
	flag.StringVar(&o.id, "id", "", "Controller id for database commands")
	flag.StringVar(&o.host, "host", "", "Controller address")
	flag.StringVar(&o.password, "password", "sec", "Controller password")
	flag.StringVar(&o.file, "file", "", "Config dump file")
	flag.IntVar(&o.port, "port", -1, "Port for set-port")
	flag.StringVar(&o.action, "value", "", "Value for set-port, or the raw action for send")
	flag.StringVar(&o.unit, "unit", "/etc/systemd/system/megad-hub.service", "Unit path for install-service")
	flag.StringVar(&o.binary, "binary", "/usr/local/bin/megad-hub", "Service binary for install-service")
	flag.StringVar(&o.configFile, "config-file", "/etc/megad-hub/config.json", "Service config for install-service")
	flag.StringVar(&o.user, "user", "", "Service user for install-service")
	flag.StringVar(&o.workDir, "workdir", "/var/lib/megad-hub", "Working directory for install-service")
	flag.DurationVar(&o.timeout, "timeout", 5*time.Second, "Request timeout")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || o.command == "" {
		fmt.Println("\nUsage of megad-cli:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if err := run(context.Background(), o); err != nil {
		fmt.Printf("Command %s failed: %v\n", o.command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", o.command)
}

func run(ctx context.Context, o options) error {
	switch o.command {
	case "dump":
		if err := require(o.host, "host", o.file, "file"); err != nil {
			return err
		}
		lines, err := acquirer(o).Scrape(ctx)
		if err != nil {
			return err
		}
		return store.New(o.file).Save(lines)
	case "parse":
		if err := require(o.file, "file"); err != nil {
			return err
		}
		cfg, err := acquirer(o).Load()
		if err != nil {
			return err
		}
		return printJSON(megad.New("dump", o.host, cfg, nil, megad.Options{}).Snapshot())
	case "restore":
		if err := require(o.host, "host", o.file, "file"); err != nil {
			return err
		}
		return acquirer(o).Restore(ctx)
	case "status":
		if err := require(o.host, "host"); err != nil {
			return err
		}
		body, err := client(o).Get(ctx, protocol.Params(protocol.KeyCommand, protocol.CommandAll))
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	case "set-port":
		if err := require(o.host, "host", o.action, "value"); err != nil {
			return err
		}
		if o.port < 0 {
			return fmt.Errorf("port is required")
		}
		return device(o).SetPort(ctx, o.port, o.action)
	case "send":
		if err := require(o.host, "host", o.action, "value"); err != nil {
			return err
		}
		return device(o).SendCommand(ctx, o.action)
	case "list":
		entries, err := db.ListControllersCLI(o.dbPath)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%-12s %-21s enabled=%t refresh=%t %s\n", e.ID, e.Host, e.Enabled, e.RefreshConfig, e.ConfigFile)
		}
		return nil
	case "enable", "disable":
		if err := require(o.id, "id"); err != nil {
			return err
		}
		return db.SetControllerEnabledCLI(o.dbPath, o.id, o.command == "enable")
	case "refresh":
		if err := require(o.id, "id"); err != nil {
			return err
		}
		return db.SetRefreshConfigCLI(o.dbPath, o.id)
	case "install-service":
		return startup.InstallService(o.unit, startup.Unit{
			User:       o.user,
			WorkDir:    o.workDir,
			Binary:     o.binary,
			ConfigFile: o.configFile,
		})
	}
	return fmt.Errorf("invalid command %q", o.command)
}

// require checks value/name pairs for empty values.
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i] == "" {
			return fmt.Errorf("%s is required", pairs[i+1])
		}
	}
	return nil
}

func client(o options) *protocol.Client {
	return protocol.NewClient(o.host, o.password, o.timeout)
}

func acquirer(o options) *scraper.Acquirer {
	return scraper.NewAcquirer(o.host, client(o), store.New(o.file), 100*time.Millisecond)
}

func device(o options) *megad.MegaD {
	return megad.New(o.host, o.host, model.DeviceConfig{}, client(o), megad.Options{})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
