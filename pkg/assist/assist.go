// Package assist exposes the device operations used by the HTTP API and the
// CLI: record CRUD, connection lifecycle and LLM streaming to devices.
//
// Every failure carries a device.Reason, available through
// device.ReasonOf.
package assist

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/fanout"
	"github.com/haivivi/t140cast/pkg/llm"
	"github.com/haivivi/t140cast/pkg/metrics"
	"github.com/haivivi/t140cast/pkg/textstream"
)

// Service ties the connection manager, the fan-out engine and the provider
// registry together.
type Service struct {
	mgr       *connmgr.Manager
	engine    *fanout.Engine
	providers *llm.Registry
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics records provider failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(mgr *connmgr.Manager, engine *fanout.Engine, providers *llm.Registry, opts ...Option) *Service {
	s := &Service{
		mgr:       mgr,
		engine:    engine,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Manager returns the connection manager.
func (s *Service) Manager() *connmgr.Manager {
	return s.mgr
}

// ListDevices returns every device record.
func (s *Service) ListDevices(ctx context.Context) ([]*device.Record, error) {
	return s.mgr.List(ctx)
}

// GetDevice returns the record for id.
func (s *Service) GetDevice(ctx context.Context, id string) (*device.Record, error) {
	return s.mgr.Get(ctx, id)
}

// CreateDevice validates spec and stores a new offline device.
func (s *Service) CreateDevice(ctx context.Context, spec device.Spec) (*device.Record, error) {
	return s.mgr.Create(ctx, spec)
}

// UpdateDevice applies patch. id, createdAt and status cannot change.
func (s *Service) UpdateDevice(ctx context.Context, id string, patch device.Patch) (*device.Record, error) {
	return s.mgr.Update(ctx, id, patch)
}

// DeleteDevice disconnects the device if needed and removes it.
func (s *Service) DeleteDevice(ctx context.Context, id string) error {
	return s.mgr.Delete(ctx, id)
}

// Connect connects the device. Connecting an online device returns its
// existing connection.
func (s *Service) Connect(ctx context.Context, id string) (*connmgr.Connection, error) {
	return s.mgr.Connect(ctx, id)
}

// Disconnect reports false when the device was not connected.
func (s *Service) Disconnect(ctx context.Context, id string) (bool, error) {
	return s.mgr.Disconnect(ctx, id)
}

// ListActiveConnections returns a snapshot of the live connections.
func (s *Service) ListActiveConnections() []*connmgr.Connection {
	return s.mgr.ActiveConnections()
}

// Providers is the provider listing.
type Providers struct {
	Providers []llm.Status `json:"providers"`
	Default   string       `json:"defaultProvider"`
}

// ListProviders reports every registered provider and the default one.
func (s *Service) ListProviders() Providers {
	return Providers{Providers: s.providers.Status(), Default: s.providers.Default()}
}

// StreamToDevice streams the completion of prompt to one connected device.
// An empty provider selects the default. Streaming failures never change
// the device's connection state.
func (s *Service) StreamToDevice(ctx context.Context, id, prompt, provider string) error {
	if err := checkPrompt(prompt); err != nil {
		return err
	}
	if _, ok := s.mgr.Connection(id); !ok {
		if _, err := s.mgr.Get(ctx, id); err != nil {
			return err
		}
		return device.Errorf(device.ReasonNotConnected, id, "device is not connected")
	}
	stream, err := s.open(ctx, provider, prompt)
	if err != nil {
		return err
	}
	res := s.engine.Deliver(ctx, stream, []string{id})[0]
	if !res.Success {
		return res.Err
	}
	return nil
}

// StreamToDevices streams one completion to every target and returns the
// per-target results in input order. The provider is opened before any
// target is touched; if that fails no results are returned.
func (s *Service) StreamToDevices(ctx context.Context, ids []string, prompt, provider string) ([]fanout.Result, error) {
	if err := checkPrompt(prompt); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, device.Errorf(device.ReasonValidationFailed, "", "deviceIds must not be empty")
	}
	stream, err := s.open(ctx, provider, prompt)
	if err != nil {
		return nil, err
	}
	results := s.engine.Deliver(ctx, stream, ids)
	s.log.Info("assist: fan-out started",
		"targets", len(ids), "attached", countSuccess(results), "mode", s.engine.Mode().String())
	return results, nil
}

// open starts the provider stream detached from ctx's cancellation so
// delivery outlives the request that started it.
func (s *Service) open(ctx context.Context, provider, prompt string) (textstream.Stream, error) {
	if provider == "" {
		provider = s.providers.Default()
	}
	stream, err := s.providers.Open(context.WithoutCancel(ctx), provider, prompt)
	if err != nil {
		s.metrics.ProviderError(provider)
		s.log.Warn("assist: provider unavailable", "provider", provider, "err", err)
		if errors.Is(err, llm.ErrUnavailable) {
			return nil, device.Wrap(device.ReasonProviderUnavailable, "", err)
		}
		return nil, err
	}
	return stream, nil
}

func checkPrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return device.Errorf(device.ReasonValidationFailed, "", "prompt is required")
	}
	return nil
}

func countSuccess(results []fanout.Result) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}
