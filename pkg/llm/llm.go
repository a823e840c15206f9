// Package llm opens token streams from generative text providers.
//
// Providers are registered by name in a Registry. A provider without a
// configured credential stays registered but reports itself unavailable, and
// opening it fails with ErrUnavailable.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// ErrUnavailable is returned when no stream can be obtained from a provider.
var ErrUnavailable = errors.New("llm: provider unavailable")

// Provider streams a completion for a single user prompt.
type Provider interface {
	// Name is the registry key, such as "openai".
	Name() string

	// Available reports whether the provider has a usable credential.
	Available() bool

	// Stream starts generating and returns the token stream. Generation
	// continues in the background until the stream ends or is closed.
	Stream(ctx context.Context, prompt string) (textstream.Stream, error)
}

// Status is the availability of one provider.
type Status struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
}

// Registry holds the configured providers.
type Registry struct {
	log *slog.Logger

	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	def       string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry whose default provider is def.
func NewRegistry(def string, opts ...Option) *Registry {
	r := &Registry{
		log:       slog.Default(),
		providers: make(map[string]Provider),
		def:       def,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
	if p.Available() {
		r.log.Info("llm: provider registered", "provider", p.Name())
	} else {
		r.log.Warn("llm: provider has no credential", "provider", p.Name())
	}
}

// Default returns the default provider name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Status lists every provider in registration order.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Status{Provider: name, Available: r.providers[name].Available()})
	}
	return out
}

// Open starts a stream from the named provider, or the default when name is
// empty. All failures wrap ErrUnavailable.
func (r *Registry) Open(ctx context.Context, name, prompt string) (textstream.Stream, error) {
	r.mu.RLock()
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, name)
	}
	if !p.Available() {
		return nil, fmt.Errorf("%w: %s has no credential configured", ErrUnavailable, name)
	}
	s, err := p.Stream(ctx, prompt)
	if err != nil {
		r.log.Error("llm: open stream", "provider", name, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, name, err)
	}
	return s, nil
}
