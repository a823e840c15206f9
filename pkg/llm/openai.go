package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// AnthropicBaseURL is Anthropic's OpenAI-compatible endpoint.
const AnthropicBaseURL = "https://api.anthropic.com/v1/"

// OpenAIConfig configures an OpenAI-compatible chat completions provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// RequestOptions are appended to the client options; tests use them to
	// inject an HTTP client.
	RequestOptions []option.RequestOption
}

// OpenAI streams chat completions from any OpenAI-compatible API.
type OpenAI struct {
	name      string
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates the "openai" provider. Without an API key the provider
// is registered but unavailable.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	return newOpenAICompatible("openai", cfg)
}

// NewAnthropic creates the "anthropic" provider on Anthropic's
// OpenAI-compatible endpoint.
func NewAnthropic(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-sonnet-20240229"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4000
	}
	return newOpenAICompatible("anthropic", cfg)
}

func newOpenAICompatible(name string, cfg OpenAIConfig) *OpenAI {
	p := &OpenAI{name: name, model: cfg.Model, maxTokens: cfg.MaxTokens}
	if cfg.APIKey == "" {
		return p
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)
	client := openai.NewClient(opts...)
	p.client = &client
	return p
}

func (p *OpenAI) Name() string    { return p.name }
func (p *OpenAI) Available() bool { return p.client != nil }

// Stream requests a streaming completion. The request lives until the
// stream ends or the returned stream is closed.
func (p *OpenAI) Stream(ctx context.Context, prompt string) (textstream.Stream, error) {
	if p.client == nil {
		return nil, ErrUnavailable
	}
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.maxTokens))
	}
	ctx, cancel := context.WithCancel(ctx)
	sb := textstream.NewBuilder()
	go func() {
		defer cancel()
		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if s := chunk.Choices[0].Delta.Content; s != "" {
				if err := sb.Add(s); err != nil {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			sb.Abort(err)
			return
		}
		sb.Done()
	}()
	return sb.Stream(), nil
}

var _ Provider = (*OpenAI)(nil)
