package llm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haivivi/t140cast/pkg/llm"
	"github.com/haivivi/t140cast/pkg/textstream"
)

func quietRegistry(def string) *llm.Registry {
	return llm.NewRegistry(def, llm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRegistryStatus(t *testing.T) {
	r := quietRegistry("openai")
	r.Register(llm.NewOpenAI(llm.OpenAIConfig{}))
	r.Register(llm.NewAnthropic(llm.OpenAIConfig{APIKey: "sk-ant"}))
	r.Register(llm.Echo{})

	got := r.Status()
	want := []llm.Status{
		{Provider: "openai", Available: false},
		{Provider: "anthropic", Available: true},
		{Provider: "echo", Available: true},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("Status = %v, want %v", got, want)
	}
	if r.Default() != "openai" {
		t.Fatalf("Default = %q", r.Default())
	}
}

func TestRegistryOpenUnavailable(t *testing.T) {
	r := quietRegistry("openai")
	r.Register(llm.NewOpenAI(llm.OpenAIConfig{}))

	for _, name := range []string{"", "openai", "anthropic"} {
		if _, err := r.Open(context.Background(), name, "hello"); !errors.Is(err, llm.ErrUnavailable) {
			t.Fatalf("Open(%q) = %v, want ErrUnavailable", name, err)
		}
	}
}

func TestRegistryOpenEcho(t *testing.T) {
	r := quietRegistry("echo")
	r.Register(llm.Echo{})

	s, err := r.Open(context.Background(), "", "hello assistive world")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := textstream.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got != "hello assistive world" {
		t.Fatalf("echo = %q", got)
	}
}

func sseServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStream(t *testing.T) {
	srv := sseServer(t, "Hel", "lo", "!")
	p := llm.NewOpenAI(llm.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	if !p.Available() {
		t.Fatal("provider with key should be available")
	}
	s, err := p.Stream(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	got, err := textstream.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got != "Hello!" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenAIStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	p := llm.NewAnthropic(llm.OpenAIConfig{APIKey: "bad", BaseURL: srv.URL + "/v1/"})
	s, err := p.Stream(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := textstream.ReadAll(s); err == nil {
		t.Fatal("expected upstream error in stream")
	}
}

func TestGeminiWithoutKey(t *testing.T) {
	g, err := llm.NewGemini(context.Background(), llm.GeminiConfig{})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	if g.Available() {
		t.Fatal("gemini without key must be unavailable")
	}
	if _, err := g.Stream(context.Background(), "hi"); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("Stream = %v", err)
	}
}
