package llm

import (
	"context"
	"strings"
	"time"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// Echo is a credential-free provider that streams the prompt back word by
// word. It is meant for local development and tests.
type Echo struct {
	// Delay is the pause between words.
	Delay time.Duration
}

func (Echo) Name() string    { return "echo" }
func (Echo) Available() bool { return true }

func (e Echo) Stream(ctx context.Context, prompt string) (textstream.Stream, error) {
	words := strings.SplitAfter(prompt, " ")
	sb := textstream.NewBuilder()
	go func() {
		for _, w := range words {
			if e.Delay > 0 {
				select {
				case <-ctx.Done():
					sb.Abort(ctx.Err())
					return
				case <-time.After(e.Delay):
				}
			}
			if err := sb.Add(w); err != nil {
				return
			}
		}
		sb.Done()
	}()
	return sb.Stream(), nil
}

var _ Provider = Echo{}
