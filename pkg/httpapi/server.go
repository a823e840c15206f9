// Package httpapi serves the device API over HTTP.
//
// Routes:
//
//	GET    /api/devices
//	POST   /api/devices
//	GET    /api/devices/connections/active
//	GET    /api/devices/{id}
//	PUT    /api/devices/{id}
//	DELETE /api/devices/{id}
//	POST   /api/devices/{id}/connect
//	POST   /api/devices/{id}/disconnect
//	GET    /api/llm/providers
//	POST   /api/llm/stream/{deviceId}
//	POST   /api/llm/stream-multiple
//	GET    /ws/admin
//	GET    /metrics
//	GET    /healthz
//
// Failures are answered with {"error": message, "reason": reason}.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/t140cast/pkg/assist"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/metrics"
)

// Server is the HTTP handler set.
type Server struct {
	svc      *assist.Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCheckOrigin sets the origin check for /ws/admin. The default accepts
// any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// New creates a Server over svc.
func New(svc *assist.Service, opts ...Option) *Server {
	s := &Server{
		svc: svc,
		log: slog.Default(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /api/devices", s.listDevices)
	s.handle("POST /api/devices", s.createDevice)
	s.handle("GET /api/devices/connections/active", s.activeConnections)
	s.handle("GET /api/devices/{id}", s.getDevice)
	s.handle("PUT /api/devices/{id}", s.updateDevice)
	s.handle("DELETE /api/devices/{id}", s.deleteDevice)
	s.handle("POST /api/devices/{id}/connect", s.connect)
	s.handle("POST /api/devices/{id}/disconnect", s.disconnect)
	s.handle("GET /api/llm/providers", s.providers)
	s.handle("POST /api/llm/stream/{deviceId}", s.streamToDevice)
	s.handle("POST /api/llm/stream-multiple", s.streamToDevices)
	s.mux.HandleFunc("GET /ws/admin", s.admin)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// handle registers fn under pattern with request metrics.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.instrument(pattern, fn))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		d := time.Since(start)
		s.metrics.ObserveHTTP(route, rec.code, d)
		s.log.Debug("http: request", "route", route, "code", rec.code, "duration", d)
	})
}

// errorBody is the JSON shape of every failure.
type errorBody struct {
	Error  string        `json:"error"`
	Reason device.Reason `json:"reason,omitempty"`
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch device.ReasonOf(err) {
	case device.ReasonNotFound:
		return http.StatusNotFound
	case device.ReasonValidationFailed, device.ReasonUnsupportedProtocol:
		return http.StatusBadRequest
	case device.ReasonNotConnected:
		return http.StatusConflict
	case device.ReasonTransportConstructionFailed, device.ReasonAttachFailed:
		return http.StatusBadGateway
	case device.ReasonProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusOf(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		s.log.Error("http: request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.log.Warn("http: request rejected", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Reason: device.ReasonOf(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("http: encode response", "err", err)
	}
}
