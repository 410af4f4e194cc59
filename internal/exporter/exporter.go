// Package exporter publishes controller state as Prometheus gauges.
package exporter

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/scraper"
)

type Exporter struct {
	registry *prometheus.Registry

	available   *prometheus.GaugeVec
	uptime      *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	portUp      *prometheus.GaugeVec
	portValue   *prometheus.GaugeVec
	pidValue    *prometheus.GaugeVec
}

func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_controller_available",
				Help: "Whether the last polls of the controller succeeded",
			},
			[]string{"controller"},
		),
		uptime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_controller_uptime_minutes",
				Help: "Controller uptime as reported by its status page",
			},
			[]string{"controller"},
		),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_controller_temperature_celsius",
				Help: "On-board temperature of the controller",
			},
			[]string{"controller"},
		),
		portUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_port_available",
				Help: "Whether the port reported data on the last update",
			},
			[]string{"controller", "port", "name", "kind"},
		),
		portValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_port_value",
				Help: "Decoded port values, one series per field",
			},
			[]string{"controller", "port", "name", "kind", "field"},
		),
		pidValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "megad_pid_value",
				Help: "PID regulator values, one series per field",
			},
			[]string{"controller", "pid", "name", "field"},
		),
	}
	e.registry.MustRegister(e.available, e.uptime, e.temperature, e.portUp, e.portValue, e.pidValue)
	return e
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Watch subscribes the exporter to a coordinator's events.
func (e *Exporter) Watch(c *controller.Coordinator) {
	c.Subscribe(e.Observe)
}

// Observe records the controller and every port and PID carried by ev.
func (e *Exporter) Observe(ev controller.Event) {
	e.available.WithLabelValues(ev.Controller).Set(boolValue(ev.Available))
	if ev.Board.Uptime != scraper.UnknownUptime {
		e.uptime.WithLabelValues(ev.Controller).Set(float64(ev.Board.Uptime))
	}
	if ev.Board.Temperature != scraper.UnknownTemperature {
		e.temperature.WithLabelValues(ev.Controller).Set(ev.Board.Temperature)
	}

	for _, p := range ev.Ports {
		e.observePort(ev.Controller, p)
	}
	for _, p := range ev.PIDs {
		e.observePID(ev.Controller, p)
	}
}

func (e *Exporter) observePort(id string, p megad.PortView) {
	kind := string(p.Kind)
	e.portUp.WithLabelValues(id, p.Key, p.Name, kind).Set(boolValue(p.Available))
	for field, v := range Fields(p.State) {
		e.portValue.WithLabelValues(id, p.Key, p.Name, kind, field).Set(v)
	}
}

func (e *Exporter) observePID(id string, p megad.PIDView) {
	pid := strconv.Itoa(p.ID)
	set := func(field string, v float64) {
		e.pidValue.WithLabelValues(id, pid, p.Name, field).Set(v)
	}
	set("set_point", p.State.SetPoint)
	set("enabled", boolValue(p.State.Enabled()))
	if p.State.Value.Valid {
		set("value", p.State.Value.Value)
	}
}

// Fields flattens a port state into numeric series. Codes have none and
// invalid readings are left out.
func Fields(s ports.State) map[string]float64 {
	out := map[string]float64{}
	switch v := s.(type) {
	case ports.Switch:
		out["state"] = boolValue(v.On)
		out["count"] = float64(v.Count)
	case ports.Click:
		out["state"] = boolValue(v != ports.ClickOff)
	case ports.Counter:
		out["count"] = float64(v.Count)
	case ports.Level:
		out["value"] = float64(v.Value)
	case ports.Readings:
		readings(out, v.Values)
		if t := v.Thermostat; t != nil {
			out["set_point"] = t.SetPoint
			out["thermostat_enabled"] = boolValue(t.Enabled)
			out["heating"] = boolValue(t.Heating)
		}
	case ports.Bus:
		readings(out, v.Values)
	case ports.Expander:
		for i, n := range v.Values {
			out["ext"+strconv.Itoa(i)] = float64(n)
		}
	}
	return out
}

func readings(out map[string]float64, values map[string]ports.Reading) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if r := values[k]; r.Valid {
			out[k] = r.Value
		}
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
