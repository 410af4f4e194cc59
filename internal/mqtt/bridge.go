package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
)

const (
	DefaultPrefix = "megad"

	online  = "online"
	offline = "offline"
)

// Bridge publishes coordinator events as retained topics:
//
//	<prefix>/<controller>/availability
//	<prefix>/<controller>/<port key>/state
//	<prefix>/<controller>/pid/<id>/state
//
// and routes <prefix>/<controller>/<port>/set and .../setpoint messages back
// to the coordinator.
type Bridge struct {
	client   ClientAPI
	prefix   string
	registry *controller.Registry
	timeout  time.Duration
}

func NewBridge(client ClientAPI, prefix string, registry *controller.Registry) *Bridge {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{
		client:   client,
		prefix:   strings.TrimSuffix(prefix, "/"),
		registry: registry,
		timeout:  10 * time.Second,
	}
}

// Watch subscribes the bridge to a coordinator's events.
func (b *Bridge) Watch(c *controller.Coordinator) {
	c.Subscribe(b.Publish)
}

// Publish sends every port and PID carried by ev. Failures are logged; the
// next event publishes the state again.
func (b *Bridge) Publish(ev controller.Event) {
	availability := offline
	if ev.Available {
		availability = online
	}
	b.send(b.topic(ev.Controller, "availability"), []byte(availability))

	for _, p := range ev.Ports {
		payload, err := json.Marshal(p)
		if err != nil {
			log.Error().Err(err).Str("port", p.Key).Msg("Failed to encode port state")
			continue
		}
		b.send(b.topic(ev.Controller, p.Key, "state"), payload)
	}
	for _, p := range ev.PIDs {
		payload, err := json.Marshal(p)
		if err != nil {
			log.Error().Err(err).Int("pid", p.ID).Msg("Failed to encode PID state")
			continue
		}
		b.send(b.topic(ev.Controller, "pid", strconv.Itoa(p.ID), "state"), payload)
	}
}

func (b *Bridge) send(topic string, payload []byte) {
	if err := b.client.PublishWith(topic, payload, true); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

func (b *Bridge) topic(parts ...string) string {
	return b.prefix + "/" + strings.Join(parts, "/")
}

// Listen subscribes to the command topics until ctx is done.
func (b *Bridge) Listen(ctx context.Context) error {
	topics := []string{b.topic("+", "+", "set"), b.topic("+", "+", "setpoint")}
	for _, t := range topics {
		if err := b.client.Subscribe(t, b.handler(ctx)); err != nil {
			return err
		}
	}
	go func() {
		<-ctx.Done()
		for _, t := range topics {
			_ = b.client.Unsubscribe(t)
		}
	}()
	return nil
}

func (b *Bridge) handler(ctx context.Context) Handler {
	return func(_ mqtt.Client, msg Message) {
		if err := b.handle(ctx, msg.Topic(), string(msg.Payload())); err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("MQTT command failed")
		}
	}
}

func (b *Bridge) handle(ctx context.Context, topic, payload string) error {
	parts := strings.Split(strings.TrimPrefix(topic, b.prefix+"/"), "/")
	if len(parts) != 3 {
		return fmt.Errorf("unexpected topic %q", topic)
	}
	c, found := b.registry.Get(parts[0])
	if !found {
		return fmt.Errorf("unknown controller %q", parts[0])
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	payload = strings.TrimSpace(payload)
	switch parts[2] {
	case "set":
		if port, ext, isExt := strings.Cut(parts[1], "e"); isExt {
			id, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port %q", parts[1])
			}
			n, err := strconv.Atoi(ext)
			if err != nil {
				return fmt.Errorf("invalid port %q", parts[1])
			}
			return c.SwitchExtPort(ctx, id, n, payload)
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", parts[1])
		}
		return c.SwitchPort(ctx, id, payload)
	case "setpoint":
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", parts[1])
		}
		v, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return fmt.Errorf("invalid set-point %q", payload)
		}
		return c.SetTemperature(ctx, id, v)
	}
	return fmt.Errorf("unexpected topic %q", topic)
}
