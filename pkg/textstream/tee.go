package textstream

import (
	"sync"
)

// Tee splits src into n independent streams. Every branch sees every chunk
// in order, each at its own pace. src is pulled lazily by whichever branch
// runs ahead, and chunks every open branch has consumed are released.
//
// Closing a branch detaches only that branch. src is closed once all
// branches are closed. A terminal error from src (including io.EOF) is
// delivered to every branch after the chunks before it.
func Tee(src Stream, n int) []Stream {
	t := &tee{src: src, changed: make(chan struct{})}
	branches := make([]Stream, n)
	t.branches = make([]*teeBranch, n)
	for i := range n {
		br := &teeBranch{t: t}
		t.branches[i] = br
		branches[i] = br
	}
	t.open = n
	return branches
}

type tee struct {
	src Stream

	mu       sync.Mutex
	base     int // absolute index of log[0]
	log      []string
	err      error
	pulling  bool
	changed  chan struct{}
	branches []*teeBranch
	open     int
}

func (t *tee) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// compactLocked drops chunks that every open branch has read.
func (t *tee) compactLocked() {
	low := t.base + len(t.log)
	for _, br := range t.branches {
		if br.closeErr == nil && br.pos < low {
			low = br.pos
		}
	}
	if drop := low - t.base; drop > 0 {
		clear(t.log[:drop])
		t.log = t.log[drop:]
		t.base = low
	}
}

type teeBranch struct {
	t        *tee
	pos      int
	closeErr error
}

func (br *teeBranch) Next() (string, error) {
	t := br.t
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if br.closeErr != nil {
			return "", br.closeErr
		}
		if i := br.pos - t.base; i < len(t.log) {
			c := t.log[i]
			br.pos++
			t.compactLocked()
			return c, nil
		}
		if t.err != nil {
			return "", t.err
		}
		if !t.pulling {
			t.pulling = true
			t.mu.Unlock()
			c, err := t.src.Next()
			t.mu.Lock()
			t.pulling = false
			if err != nil {
				t.err = err
			} else {
				t.log = append(t.log, c)
			}
			t.notifyLocked()
			continue
		}
		ch := t.changed
		t.mu.Unlock()
		<-ch
		t.mu.Lock()
	}
}

func (br *teeBranch) Close() error {
	return br.CloseWithError(ErrClosed)
}

func (br *teeBranch) CloseWithError(err error) error {
	if err == nil {
		err = ErrClosed
	}
	t := br.t
	t.mu.Lock()
	if br.closeErr != nil {
		t.mu.Unlock()
		return nil
	}
	br.closeErr = err
	t.open--
	last := t.open == 0
	t.compactLocked()
	t.notifyLocked()
	t.mu.Unlock()
	if last {
		return t.src.CloseWithError(err)
	}
	return nil
}
