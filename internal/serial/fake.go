package serial

import (
	"context"
	"errors"
	"sync"
)

// FakeTransport records sent lines and replays queued host lines.
type FakeTransport struct {
	mu       sync.Mutex
	sent     []string
	incoming []string
	notify   chan struct{}

	// OnSend, if set, is called after each successful SendLine. It may
	// queue a reply with Feed.
	OnSend func(line string)

	// SendError, if set, is returned by SendLine and nothing is recorded.
	SendError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{notify: make(chan struct{}, 1)}
}

// Feed queues lines as if the host had sent them.
func (f *FakeTransport) Feed(lines ...string) {
	f.mu.Lock()
	f.incoming = append(f.incoming, lines...)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// SendLine records text.
func (f *FakeTransport) SendLine(text string) error {
	f.mu.Lock()
	if f.SendError != nil {
		err := f.SendError
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, text)
	hook := f.OnSend
	f.mu.Unlock()

	if hook != nil {
		hook(text)
	}
	return nil
}

// TryReadLine pops the next queued line.
func (f *FakeTransport) TryReadLine() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.incoming) == 0 {
		return "", false
	}
	line := f.incoming[0]
	f.incoming = f.incoming[1:]
	return line, true
}

// ReadLine waits for a queued line or for ctx to end.
func (f *FakeTransport) ReadLine(ctx context.Context) (string, error) {
	for {
		if line, ok := f.TryReadLine(); ok {
			return line, nil
		}
		select {
		case <-f.notify:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		}
	}
}

// Close marks the transport as closed.
func (f *FakeTransport) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Sent returns a copy of every line sent so far.
func (f *FakeTransport) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// Reset clears sent and queued lines.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.incoming = nil
	f.mu.Unlock()
}
