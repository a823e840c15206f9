package textstream_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/haivivi/t140cast/pkg/textstream"
)

func TestTeeEveryBranchSeesEverything(t *testing.T) {
	b := textstream.NewBuilder()
	branches := textstream.Tee(b.Stream(), 3)

	var wg sync.WaitGroup
	results := make([]string, len(branches))
	errs := make([]error, len(branches))
	for i, br := range branches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = textstream.ReadAll(br)
		}()
	}
	for _, c := range []string{"one ", "two ", "three"} {
		b.Add(c)
	}
	b.Done()
	wg.Wait()

	for i := range branches {
		if errs[i] != nil {
			t.Fatalf("branch %d: %v", i, errs[i])
		}
		if results[i] != "one two three" {
			t.Fatalf("branch %d = %q", i, results[i])
		}
	}
}

func TestTeeClosingOneBranchKeepsOthers(t *testing.T) {
	branches := textstream.Tee(textstream.FromChunks("a", "b", "c"), 2)
	if c, _ := branches[0].Next(); c != "a" {
		t.Fatalf("first chunk = %q", c)
	}
	branches[0].Close()
	if _, err := branches[0].Next(); !errors.Is(err, textstream.ErrClosed) {
		t.Fatalf("closed branch Next = %v", err)
	}
	got, err := textstream.ReadAll(branches[1])
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if got != "abc" {
		t.Fatalf("other branch = %q", got)
	}
}

func TestTeeClosesSourceAfterLastBranch(t *testing.T) {
	b := textstream.NewBuilder()
	branches := textstream.Tee(b.Stream(), 2)
	branches[0].Close()
	if b.Closed() {
		t.Fatal("source closed while a branch is still open")
	}
	branches[1].Close()
	if !b.Closed() {
		t.Fatal("source still open after all branches closed")
	}
}

func TestTeePropagatesError(t *testing.T) {
	boom := errors.New("boom")
	b := textstream.NewBuilder()
	b.Add("x")
	branches := textstream.Tee(b.Stream(), 2)
	if c, err := branches[0].Next(); c != "x" || err != nil {
		t.Fatalf("Next = %q, %v", c, err)
	}
	b.Abort(boom)
	for i, br := range branches {
		if i == 1 {
			// Branch 1 has not read "x" yet; the chunk was already pulled
			// into the shared log before the abort.
			if c, err := br.Next(); c != "x" || err != nil {
				t.Fatalf("branch 1 Next = %q, %v", c, err)
			}
		}
		if _, err := br.Next(); !errors.Is(err, boom) {
			t.Fatalf("branch %d Next = %v, want %v", i, err, boom)
		}
	}
}
