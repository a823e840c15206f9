package t140

import (
	"errors"
	"io"
	"log/slog"

	"github.com/haivivi/t140cast/pkg/textstream"
)

// pump reads s until it ends or the transport closes, sending each chunk.
// A closed transport stops reading before the next chunk is taken.
func pump(s textstream.Stream, opts AttachOptions, done <-chan struct{}, send func(string) error) error {
	for {
		select {
		case <-done:
			return ErrClosed
		default:
		}
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		select {
		case <-done:
			return ErrClosed
		default:
		}
		if opts.ProcessBackspaces {
			chunk = ProcessBackspaces(chunk)
		}
		if chunk == "" {
			continue
		}
		if err := send(chunk); err != nil {
			return err
		}
	}
}

// startPump runs pump in a goroutine and reports its outcome.
func startPump(log *slog.Logger, h *hub, s textstream.Stream, opts AttachOptions, done <-chan struct{}, send func(string) error) {
	go func() {
		err := pump(s, opts, done, send)
		if err != nil {
			log.Warn("t140: stream delivery stopped", "err", err)
			h.publish(Event{Type: EventError, Err: err})
		} else {
			log.Debug("t140: stream delivered")
		}
		if opts.OnDone != nil {
			opts.OnDone(err)
		}
	}()
}
