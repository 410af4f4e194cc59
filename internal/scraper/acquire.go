package scraper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/model"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
	"github.com/thatsimonsguy/megad-hub/internal/store"
)

const extensionPorts = 16

// Getter fetches one controller page.
type Getter interface {
	Get(ctx context.Context, q protocol.Record) (string, error)
	GetRaw(ctx context.Context, query string) (string, error)
}

// BasePages lists every page of a full configuration scrape, given the
// controller's index page.
func BasePages(index string) []protocol.Record {
	pages := []protocol.Record{
		protocol.Params(protocol.KeyConfig, protocol.PageMain),
		protocol.Params(protocol.KeyConfig, protocol.PageNetwork),
		protocol.Params(protocol.KeyConfig, protocol.PageClock),
		protocol.Params(protocol.KeyConfig, protocol.PageCron),
	}
	for i := 0; i <= PortCount(index); i++ {
		pages = append(pages, protocol.Params(protocol.KeyPort, strconv.Itoa(i)))
	}
	for i := 0; i < 10; i++ {
		pages = append(pages, protocol.Params(protocol.KeyConfig, protocol.PagePrograms, protocol.KeyProgram, strconv.Itoa(i)))
	}
	for i := 0; i < 5; i++ {
		pages = append(pages, protocol.Params(protocol.KeyConfig, protocol.PagePID, protocol.KeyPID, strconv.Itoa(i)))
	}
	for i := 0; i < 5; i++ {
		pages = append(pages, protocol.Params(protocol.KeyConfig, protocol.PageServices, protocol.KeyScenario, strconv.Itoa(i)))
	}
	for i := 0; i < 16; i++ {
		pages = append(pages, protocol.Params(protocol.KeyConfig, protocol.PageServices, protocol.KeyElement, strconv.Itoa(i)))
	}
	return pages
}

// ExtensionPages lists the sub-port pages of an I2C expander.
func ExtensionPages(port int) []protocol.Record {
	pages := make([]protocol.Record, 0, extensionPorts)
	for i := 0; i < extensionPorts; i++ {
		pages = append(pages, protocol.Params(protocol.KeyPort, strconv.Itoa(port), protocol.KeyExt, strconv.Itoa(i)))
	}
	return pages
}

// Line renders a scraped record as a dump line. Every line except the main
// page and the final page is marked no-reboot and gets its title escaped, so
// a restore reboots the controller exactly once at the end.
func Line(r protocol.Record, final bool) string {
	if len(r) == 0 {
		return ""
	}
	raw := r.Encode()
	if strings.HasPrefix(raw, "cf=<br") {
		return ""
	}
	if final || strings.Contains(raw, "cf=1&") {
		return raw
	}

	out := slices.Clone(r)
	for _, key := range []string{protocol.KeyTitle, protocol.KeyPIDTitle} {
		if v, ok := out.Get(key); ok {
			out = out.Set(key, protocol.EscapeTitle(v))
			break
		}
	}
	out = append(out, protocol.Field{Key: protocol.KeyNoReboot, Value: "1"})
	return out.Encode()
}

// Acquirer produces the typed config of one controller, either from a live
// scrape or from its saved dump.
type Acquirer struct {
	ID     string
	client Getter
	store  *store.Store
	gap    time.Duration
}

func NewAcquirer(id string, client Getter, st *store.Store, gap time.Duration) *Acquirer {
	return &Acquirer{ID: id, client: client, store: st, gap: gap}
}

// Scrape reads every config page and returns the dump lines. Pages that
// fail to load are logged and skipped; a wrong password aborts.
func (a *Acquirer) Scrape(ctx context.Context) ([]string, error) {
	index, err := a.client.Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read index page: %w", err)
	}

	var lines []string
	var expanders []int
	pages := BasePages(index)
	for i, q := range pages {
		rec, err := a.fetch(ctx, q)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			continue
		}
		if line := Line(rec, i == len(pages)-1); line != "" {
			lines = append(lines, line)
		}
		if conf, err := model.ParsePort(rec); err == nil && conf.IsExpander() {
			expanders = append(expanders, conf.ID)
		}
	}

	for i, port := range expanders {
		for j, q := range ExtensionPages(port) {
			rec, err := a.fetch(ctx, q)
			if err != nil {
				if fatal(ctx, err) {
					return nil, err
				}
				continue
			}
			final := i == len(expanders)-1 && j == extensionPorts-1
			if line := Line(rec, final); line != "" {
				lines = append(lines, line)
			}
		}
	}

	log.Info().Str("controller", a.ID).Int("lines", len(lines)).Ints("expanders", expanders).Msg("Controller config scraped")
	return lines, nil
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, protocol.ErrInvalidPassword) || ctx.Err() != nil
}

func (a *Acquirer) fetch(ctx context.Context, q protocol.Record) (protocol.Record, error) {
	if err := a.pause(ctx); err != nil {
		return nil, err
	}
	page, err := a.client.Get(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("controller", a.ID).Str("page", q.Query()).Msg("Skipping config page")
		return nil, err
	}
	rec, err := FormRecord(page)
	if err != nil {
		log.Warn().Err(err).Str("controller", a.ID).Str("page", q.Query()).Msg("Failed to parse config page")
		return nil, err
	}
	return rec, nil
}

func (a *Acquirer) pause(ctx context.Context) error {
	if a.gap <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.gap):
		return nil
	}
}

// Acquire returns the controller config. The saved dump is used unless
// refresh is set or no dump exists yet, in which case the controller is
// scraped and the dump rewritten.
func (a *Acquirer) Acquire(ctx context.Context, refresh bool) (model.DeviceConfig, error) {
	if refresh || !a.store.Exists() {
		lines, err := a.Scrape(ctx)
		if err != nil {
			return model.DeviceConfig{}, err
		}
		if err := a.store.Save(lines); err != nil {
			return model.DeviceConfig{}, fmt.Errorf("failed to save config dump: %w", err)
		}
	}
	return a.Load()
}

// Load builds the config from the saved dump.
func (a *Acquirer) Load() (model.DeviceConfig, error) {
	records, err := a.store.Load()
	if err != nil {
		return model.DeviceConfig{}, fmt.Errorf("failed to read config dump: %w", err)
	}
	cfg, err := model.NewDeviceConfig(records)
	if err != nil {
		return cfg, fmt.Errorf("controller %s: %w", a.ID, err)
	}
	for _, skipped := range cfg.Skipped {
		log.Warn().Err(skipped).Str("controller", a.ID).Msg("Skipping invalid config record")
	}
	log.Info().
		Str("controller", a.ID).
		Int("ports", len(cfg.Ports)).
		Int("pids", len(cfg.PIDs)).
		Int("extra_ports", len(cfg.ExtraPorts)).
		Msg("Controller config loaded")
	return cfg, nil
}

// Restore replays the saved dump to the controller, line by line.
func (a *Acquirer) Restore(ctx context.Context) error {
	lines, err := a.store.Lines()
	if err != nil {
		return fmt.Errorf("failed to read config dump: %w", err)
	}
	for i, line := range lines {
		if err := a.pause(ctx); err != nil {
			return err
		}
		if _, err := a.client.GetRaw(ctx, protocol.EscapeRawQuery(line)); err != nil {
			return fmt.Errorf("failed to write config line %d: %w", i+1, err)
		}
	}
	log.Info().Str("controller", a.ID).Int("lines", len(lines)).Msg("Controller config restored")
	return nil
}
