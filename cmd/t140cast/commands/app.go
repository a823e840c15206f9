package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/haivivi/t140cast/cmd/t140cast/internal/config"
	"github.com/haivivi/t140cast/pkg/assist"
	"github.com/haivivi/t140cast/pkg/connmgr"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/fanout"
	"github.com/haivivi/t140cast/pkg/httpapi"
	"github.com/haivivi/t140cast/pkg/llm"
	"github.com/haivivi/t140cast/pkg/metrics"
	"github.com/haivivi/t140cast/pkg/storage"
	"github.com/haivivi/t140cast/pkg/t140"
)

// app is a fully wired server.
type app struct {
	store   device.Store
	mgr     *connmgr.Manager
	svc     *assist.Service
	handler http.Handler
}

// newLogger builds the process logger. The returned closer releases the
// log file, if any.
func newLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	var w io.Writer = stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), closer, nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), closer, nil
}

// openStore opens the record store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (device.Store, error) {
	switch cfg.Driver {
	case "memory":
		return device.NewMemory(), nil
	case "badger":
		return device.OpenBadger(device.BadgerOptions{Dir: cfg.Path, Logger: log})
	case "file":
		blobs, err := storage.NewLocal(cfg.Path)
		if err != nil {
			return nil, err
		}
		return device.OpenDocument(ctx, blobs, cfg.Name)
	case "s3":
		client := storage.NewS3Client(storage.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PathStyle: cfg.S3.PathStyle,
		})
		return device.OpenDocument(ctx, storage.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix), cfg.Name)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newProviders registers every provider. Providers without an API key stay
// listed as unavailable.
func newProviders(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*llm.Registry, error) {
	reg := llm.NewRegistry(cfg.DefaultProvider, llm.WithLogger(log))
	reg.Register(llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	}))
	reg.Register(llm.NewAnthropic(llm.OpenAIConfig{
		APIKey:    cfg.Anthropic.APIKey,
		BaseURL:   cfg.Anthropic.BaseURL,
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
	}))
	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model})
	if err != nil {
		return nil, err
	}
	reg.Register(gemini)
	if cfg.Dev {
		reg.Register(llm.Echo{})
	}
	return reg, nil
}

// newApp wires the server from cfg. factory may be nil to dial real
// transports.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, factory t140.Factory) (*app, error) {
	mode, ok := fanout.ParseMode(cfg.Fanout.Mode)
	if !ok {
		return nil, fmt.Errorf("unknown fanout mode %q", cfg.Fanout.Mode)
	}
	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	providers, err := newProviders(ctx, cfg.LLM, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	if factory == nil {
		factory = &t140.Dialer{Logger: log}
	}

	m := metrics.New()
	mgr := connmgr.New(store, factory,
		connmgr.WithLogger(log),
		connmgr.WithMetrics(m),
		connmgr.WithDefaults(connmgr.Defaults{
			CharRateLimit:       cfg.T140.CharRateLimit,
			BackspaceProcessing: cfg.T140.Backspaces(),
			HandshakeTimeout:    cfg.T140.HandshakeTimeout,
		}),
	)
	engine := fanout.New(mgr,
		fanout.WithMode(mode),
		fanout.WithMaxConcurrency(cfg.Fanout.MaxConcurrency),
		fanout.WithLogger(log),
		fanout.WithMetrics(m),
	)
	svc := assist.New(mgr, engine, providers, assist.WithLogger(log), assist.WithMetrics(m))
	return &app{
		store:   store,
		mgr:     mgr,
		svc:     svc,
		handler: httpapi.New(svc, httpapi.WithLogger(log), httpapi.WithMetrics(m)),
	}, nil
}

// Close disconnects every device and closes the store.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(a.mgr.Shutdown(ctx), a.store.Close())
}
