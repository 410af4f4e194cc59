// Package controller keeps every managed MegaD in sync: it polls on an
// interval within a retry budget, applies pushes, drives outputs and fans
// state changes out to subscribers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/datadog"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
)

var (
	ErrUpdateFailed = errors.New("controller update failed")
	ErrUnknownPort  = megad.ErrUnknownPort
	ErrOutOfRange   = errors.New("value out of range")
)

// Notifier delivers operator alerts.
type Notifier interface {
	Send(title, message string) error
}

type Options struct {
	Interval    time.Duration
	Timeout     time.Duration
	RetryBudget int
	RevertDelay time.Duration
	Notifier    Notifier
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 5
	}
	if o.RevertDelay <= 0 {
		o.RevertDelay = 500 * time.Millisecond
	}
}

// Event tells subscribers which ports and PIDs changed. A poll reports all
// of them.
type Event struct {
	Controller string
	Available  bool
	Board      megad.Board
	Ports      []megad.PortView
	PIDs       []megad.PIDView
}

type revert struct {
	timer *time.Timer
	gen   uint64
}

type Coordinator struct {
	device *megad.MegaD
	opts   Options

	mu          sync.Mutex
	failures    int
	available   bool
	lastErr     error
	lastSuccess time.Time
	listeners   map[uuid.UUID]func(Event)
	reverts     map[string]revert
	revertGen   uint64
}

func New(device *megad.MegaD, opts Options) *Coordinator {
	opts.defaults()
	return &Coordinator{
		device:    device,
		opts:      opts,
		listeners: map[uuid.UUID]func(Event){},
		reverts:   map[string]revert{},
	}
}

func (c *Coordinator) ID() string            { return c.device.ID }
func (c *Coordinator) Device() *megad.MegaD  { return c.device }
func (c *Coordinator) State() megad.Snapshot { return c.device.Snapshot() }

func (c *Coordinator) tags() []string {
	return []string{"controller:" + c.device.ID}
}

// Available is false once the retry budget is exhausted and until the next
// successful poll.
func (c *Coordinator) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers fn for state changes. fn runs on the goroutine that
// applied the change and must not block.
func (c *Coordinator) Subscribe(fn func(Event)) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	c.listeners[id] = fn
	c.mu.Unlock()
	return id
}

func (c *Coordinator) Unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	delete(c.listeners, id)
	c.mu.Unlock()
}

func (c *Coordinator) notify(ev Event) {
	ev.Board = c.device.Board()
	c.mu.Lock()
	ev.Controller = c.device.ID
	ev.Available = c.available
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Coordinator) notifyKeys(keys ...string) {
	views := make([]megad.PortView, 0, len(keys))
	for _, k := range keys {
		if v, found := c.device.Port(k); found {
			views = append(views, v)
		}
	}
	if len(views) > 0 {
		c.notify(Event{Ports: views})
	}
}

// FirstRefresh scans I2C buses and runs the initial poll. Unlike Refresh it
// fails on the first error.
func (c *Coordinator) FirstRefresh(ctx context.Context) error {
	if err := c.device.InitI2CBus(ctx); err != nil {
		log.Warn().Err(err).Str("controller", c.device.ID).Msg("I2C bus scan failed")
	}
	if err := c.poll(ctx); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	c.succeed()
	return nil
}

// Run polls until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	log.Info().Str("controller", c.device.ID).Dur("interval", c.opts.Interval).Msg("Starting coordinator")
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			log.Info().Str("controller", c.device.ID).Msg("Coordinator stopped")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Error().Err(err).Str("controller", c.device.ID).Msg("Poll failed")
			}
		}
	}
}

// Refresh runs one bounded poll. Failures within the retry budget are logged
// and the last known state keeps being served; past the budget the
// controller is marked unavailable and ErrUpdateFailed is returned.
func (c *Coordinator) Refresh(ctx context.Context) error {
	err := c.poll(ctx)
	if err == nil {
		c.succeed()
		return nil
	}
	return c.fail(err)
}

func (c *Coordinator) poll(ctx context.Context) error {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	err := c.device.UpdateData(pctx)
	datadog.Timing("poll.duration", time.Since(start), c.tags()...)
	if missing := len(c.device.MissingSlots()); missing > 0 {
		datadog.Gauge("poll.missing_slots", float64(missing), c.tags()...)
	}
	return err
}

func (c *Coordinator) succeed() {
	c.mu.Lock()
	recovered := !c.available && !c.lastSuccess.IsZero()
	c.failures = 0
	c.available = true
	c.lastErr = nil
	c.lastSuccess = time.Now()
	c.mu.Unlock()

	snap := c.device.Snapshot()
	datadog.Gauge("controller.uptime", float64(snap.Uptime), c.tags()...)
	datadog.Gauge("controller.temperature", snap.Temperature, c.tags()...)
	datadog.Gauge("controller.available", 1, c.tags()...)

	if recovered {
		log.Info().Str("controller", c.device.ID).Msg("Controller recovered")
		c.alert("Controller recovered", fmt.Sprintf("%s is reachable again", c.device.ID))
	}
	c.notify(Event{Ports: snap.Ports, PIDs: snap.PIDs})
}

func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	c.lastErr = err
	exhausted := failures >= c.opts.RetryBudget
	transition := exhausted && c.available
	if exhausted {
		c.available = false
	}
	c.mu.Unlock()

	datadog.Incr("poll.failure", c.tags()...)

	if !exhausted {
		log.Warn().
			Err(err).
			Str("controller", c.device.ID).
			Int("attempt", failures).
			Int("budget", c.opts.RetryBudget).
			Msg("Poll failed, keeping last known state")
		return nil
	}

	if transition {
		datadog.Gauge("controller.available", 0, c.tags()...)
		c.alert("Controller unavailable", fmt.Sprintf("%s: %v", c.device.ID, err))
		c.notify(Event{})
	}
	return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
}

func (c *Coordinator) alert(title, message string) {
	if c.opts.Notifier == nil {
		return
	}
	if err := c.opts.Notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Str("controller", c.device.ID).Msg("Failed to send notification")
	}
}

// UpdatePortState applies a pushed payload. With ext set, the port id may
// name the interrupt line of an expander. Momentary inputs are reverted to
// released after the revert delay; a newer update cancels a pending revert.
func (c *Coordinator) UpdatePortState(id int, in ports.Payload, ext bool) (ports.Result, error) {
	p := c.device.GetPort(id, ext)
	if p == nil {
		datadog.Incr("push.unknown_port", c.tags()...)
		return ports.Result{}, fmt.Errorf("%w: %d", ErrUnknownPort, id)
	}

	c.cancelRevert(p.Key)
	res := c.device.Apply(p, in)
	datadog.Incr("push.received", append(c.tags(), "outcome:"+res.Outcome.String())...)

	if res.Changed {
		c.notifyKeys(p.Key)
	}
	if p.Momentary() && res.Outcome == ports.Ok && ports.Active(res.State) {
		c.scheduleRevert(p)
	}
	return res, nil
}

func (c *Coordinator) cancelRevert(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, pending := c.reverts[key]; pending {
		r.timer.Stop()
		delete(c.reverts, key)
	}
}

func (c *Coordinator) scheduleRevert(p *ports.Port) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertGen++
	gen := c.revertGen
	c.reverts[p.Key] = revert{
		gen:   gen,
		timer: time.AfterFunc(c.opts.RevertDelay, func() { c.applyRevert(p, gen) }),
	}
}

func (c *Coordinator) applyRevert(p *ports.Port, gen uint64) {
	c.mu.Lock()
	r, pending := c.reverts[p.Key]
	if !pending || r.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.reverts, p.Key)
	c.mu.Unlock()

	if res := c.device.Apply(p, p.RevertPayload()); res.Changed {
		c.notifyKeys(p.Key)
	}
}

// Close stops pending reverts.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, r := range c.reverts {
		r.timer.Stop()
		delete(c.reverts, key)
	}
}

// UpdateGroupState applies one payload per port and notifies once.
func (c *Coordinator) UpdateGroupState(states map[int]ports.Payload) {
	var keys []string
	for id, in := range states {
		p := c.device.GetPort(id, false)
		if p == nil {
			log.Warn().Str("controller", c.device.ID).Int("port", id).Msg("Group member not found")
			continue
		}
		if res := c.device.Apply(p, in); res.Changed {
			keys = append(keys, p.Key)
		}
	}
	c.notifyKeys(keys...)
}

// UpdateSetTemperature records a thermostat set-point the controller accepted.
func (c *Coordinator) UpdateSetTemperature(id int, value float64) {
	if c.device.SetThermostatSetPoint(id, value) {
		if p := c.device.GetPort(id, false); p != nil {
			c.notifyKeys(p.Key)
		}
	}
}

func (c *Coordinator) command(err error) error {
	if errors.Is(err, megad.ErrBusy) {
		datadog.Incr("command.busy", c.tags()...)
	} else if err != nil {
		datadog.Incr("command.failure", c.tags()...)
	}
	return err
}
