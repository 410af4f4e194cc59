// Package api serves the push endpoint the controllers call and a small REST
// surface over the managed controllers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/megad-hub/internal/controller"
	"github.com/thatsimonsguy/megad-hub/internal/datadog"
	"github.com/thatsimonsguy/megad-hub/internal/megad"
	"github.com/thatsimonsguy/megad-hub/internal/ports"
	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

const rebootTimeout = 60 * time.Second

type Server struct {
	registry *controller.Registry
	metrics  http.Handler
	// base bounds background work started by requests, such as reboot restores.
	base context.Context
}

type ControllerResponse struct {
	megad.Snapshot
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type PortCommandRequest struct {
	Command string `json:"command"`
	Ext     *int   `json:"ext,omitempty"`
}

type SetpointRequest struct {
	Setpoint float64 `json:"setpoint"`
}

type PIDRequest struct {
	Fields map[string]string `json:"fields"`
}

type FlashingRequest struct {
	Active bool `json:"active"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Controllers int    `json:"controllers"`
	Available   int    `json:"available"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(ctx context.Context, registry *controller.Registry, metrics http.Handler) *Server {
	return &Server{registry: registry, metrics: metrics, base: ctx}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/megad", s.handlePush)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/controllers", func(r chi.Router) {
		r.Get("/", s.getControllers)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getController)
			r.Put("/ports/{port}", s.setPort)
			r.Put("/ports/{port}/setpoint", s.setSetpoint)
			r.Put("/groups/{group}", s.setGroup)
			r.Put("/pids/{pid}", s.setPID)
			r.Put("/flashing", s.setFlashing)
		})
	})
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("query", r.URL.RawQuery).
			Str("remote", r.RemoteAddr).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// handlePush receives the controller's own event callbacks. The sending
// controller is identified by its address; st=1 reports a reboot and pt
// names the port the remaining parameters belong to.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	c, ok := s.registry.ByHost(host)
	if !ok {
		log.Warn().Str("remote", host).Str("query", r.URL.RawQuery).Msg("Push from unknown controller")
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if q.Get(protocol.KeyStatus) == "1" {
		go s.restore(c)
	}

	pt := q.Get(protocol.KeyPort)
	if pt == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	id, err := strconv.Atoi(pt)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid port")
		return
	}

	params := map[string]string{}
	for k, v := range q {
		switch k {
		case protocol.KeyPort, protocol.KeyDeviceID, protocol.KeyStatus:
			continue
		}
		params[k] = v[len(v)-1]
	}

	if _, err := c.UpdatePortState(id, ports.Params(params), ports.HasExtKeys(params)); err != nil {
		log.Warn().Err(err).Str("controller", c.ID()).Int("port", id).Msg("Push for unknown port")
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) restore(c *controller.Coordinator) {
	ctx, cancel := context.WithTimeout(s.base, rebootTimeout)
	defer cancel()
	if err := c.HandleReboot(ctx); err != nil {
		log.Error().Err(err).Str("controller", c.ID()).Msg("Restore after reboot failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	for _, c := range s.registry.All() {
		resp.Controllers++
		if c.Available() {
			resp.Available++
		}
	}
	if resp.Controllers > 0 && resp.Available == 0 {
		resp.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func respond(c *controller.Coordinator) ControllerResponse {
	resp := ControllerResponse{Snapshot: c.State(), Available: c.Available()}
	if err := c.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func (s *Server) getControllers(w http.ResponseWriter, r *http.Request) {
	response := []ControllerResponse{}
	for _, c := range s.registry.All() {
		response = append(response, respond(c))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) coordinator(w http.ResponseWriter, r *http.Request) (*controller.Coordinator, bool) {
	c, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "Controller not found")
	}
	return c, ok
}

func (s *Server) getController(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.coordinator(w, r); ok {
		s.writeJSON(w, http.StatusOK, respond(c))
	}
}

func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) setPort(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := s.intParam(w, r, "port")
	if !ok {
		return
	}
	var req PortCommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		s.writeError(w, http.StatusBadRequest, "Command required")
		return
	}

	var err error
	if req.Ext != nil {
		err = c.SwitchExtPort(r.Context(), id, *req.Ext, req.Command)
	} else {
		err = c.SwitchPort(r.Context(), id, req.Command)
	}
	s.finish(w, c, err, "Port command sent via API")
}

func (s *Server) setSetpoint(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := s.intParam(w, r, "port")
	if !ok {
		return
	}
	var req SetpointRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.finish(w, c, c.SetTemperature(r.Context(), id, req.Setpoint), "Set-point updated via API")
}

func (s *Server) setGroup(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	group, ok := s.intParam(w, r, "group")
	if !ok {
		return
	}
	var req PortCommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.finish(w, c, c.SwitchGroup(r.Context(), group, req.Command), "Group command sent via API")
}

func (s *Server) setPID(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	id, ok := s.intParam(w, r, "pid")
	if !ok {
		return
	}
	var req PIDRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Fields) == 0 {
		s.writeError(w, http.StatusBadRequest, "Fields required")
		return
	}

	keys := make([]string, 0, len(req.Fields))
	for k := range req.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var fields protocol.Record
	for _, k := range keys {
		fields = append(fields, protocol.Field{Key: k, Value: req.Fields[k]})
	}
	s.finish(w, c, c.SetPID(r.Context(), id, fields), "PID updated via API")
}

func (s *Server) setFlashing(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	var req FlashingRequest
	if !s.decode(w, r, &req) {
		return
	}
	c.SetFlashing(req.Active)
	w.WriteHeader(http.StatusOK)
}

// finish maps a command error to a status code.
func (s *Server) finish(w http.ResponseWriter, c *controller.Coordinator, err error, msg string) {
	switch {
	case err == nil:
		log.Info().Str("controller", c.ID()).Msg(msg)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, controller.ErrUnknownPort), errors.Is(err, megad.ErrUnknownPID):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, controller.ErrOutOfRange):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, megad.ErrBusy):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, megad.ErrFirmwareUpdate):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Str("controller", c.ID()).Msg("Command failed")
		datadog.Incr("api.command_failure", "controller:"+c.ID())
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
