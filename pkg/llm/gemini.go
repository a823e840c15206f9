package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini streams completions from the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates the "gemini" provider. Without an API key no client is
// created and the provider is unavailable.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	g := &Gemini{model: cfg.Model}
	if cfg.APIKey == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Name() string    { return "gemini" }
func (g *Gemini) Available() bool { return g.client != nil }

func (g *Gemini) Stream(ctx context.Context, prompt string) (textstream.Stream, error) {
	if g.client == nil {
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithCancel(ctx)
	sb := textstream.NewBuilder()
	go func() {
		defer cancel()
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), nil) {
			if err != nil {
				sb.Abort(err)
				return
			}
			if s := resp.Text(); s != "" {
				if err := sb.Add(s); err != nil {
					return
				}
			}
		}
		sb.Done()
	}()
	return sb.Stream(), nil
}

var _ Provider = (*Gemini)(nil)
