package t140

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/haivivi/t140cast/pkg/textstream"
)

type nextCounter struct {
	textstream.Stream
	nexts atomic.Int32
}

func (c *nextCounter) Next() (string, error) {
	c.nexts.Add(1)
	return c.Stream.Next()
}

func TestPumpClosedTransportLeavesStreamUnread(t *testing.T) {
	src := &nextCounter{Stream: textstream.FromChunks("a", "b")}
	done := make(chan struct{})
	close(done)

	err := pump(src, AttachOptions{}, done, func(string) error {
		t.Fatal("send on a closed transport")
		return nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if n := src.nexts.Load(); n != 0 {
		t.Fatalf("Next called %d times after close", n)
	}
	if got, _ := textstream.ReadAll(src.Stream); got != "ab" {
		t.Errorf("remaining = %q, want every chunk left for other readers", got)
	}
}

func TestPumpSendsUntilEOF(t *testing.T) {
	var sent []string
	err := pump(textstream.FromChunks("ab", "c\bd"), AttachOptions{ProcessBackspaces: true}, make(chan struct{}), func(s string) error {
		sent = append(sent, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 2 || sent[0] != "ab" || sent[1] != "d" {
		t.Errorf("sent = %q", sent)
	}
}
