// Package serial carries line-delimited text between the controller and the
// host over a serial port.
package serial

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	bugserial "go.bug.st/serial"
	"go.uber.org/zap"
)

// Transport is the host link.
type Transport interface {
	// SendLine writes text followed by a newline.
	SendLine(text string) error
	// TryReadLine returns the next received line without blocking.
	TryReadLine() (string, bool)
	// ReadLine blocks until a line arrives or ctx is done.
	ReadLine(ctx context.Context) (string, error)
	// Close stops the reader and releases the port.
	Close() error
}

// ErrTimeout is returned by ReadLine when its context deadline passes.
var ErrTimeout = errors.New("serial: read timed out")

const (
	// DefaultBaud matches the host side of the link.
	DefaultBaud = 115200
	// MaxLine bounds a received line; longer input is truncated.
	MaxLine = 256
	// queueLen bounds lines waiting for the loop; extra lines are dropped.
	queueLen = 32

	readTimeout = 100 * time.Millisecond
)

// Port is a Transport over any byte stream, normally a serial device.
type Port struct {
	rw  io.ReadWriteCloser
	log *zap.SugaredLogger

	lines   chan string
	done    chan struct{}
	wg      sync.WaitGroup
	writeMu sync.Mutex
	once    sync.Once
	dropped atomic.Uint64
}

// Open opens the named serial device at baud, 8N1, and starts the reader.
func Open(name string, baud int, log *zap.SugaredLogger) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := bugserial.Open(name, &bugserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", name)
	}
	// A bounded read lets the reader notice Close promptly.
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, pkgerrors.Wrapf(err, "failed to set read timeout on %s", name)
	}
	return NewPort(p, log), nil
}

// NewPort wraps rw and starts the reader goroutine.
func NewPort(rw io.ReadWriteCloser, log *zap.SugaredLogger) *Port {
	p := &Port{
		rw:    rw,
		log:   log,
		lines: make(chan string, queueLen),
		done:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	defer p.wg.Done()
	defer close(p.lines)

	var sp lineSplitter
	buf := make([]byte, 128)
	for {
		n, err := p.rw.Read(buf)
		for _, line := range sp.feed(buf[:n]) {
			select {
			case p.lines <- line:
			default:
				// drop if the loop is not keeping up
				if p.dropped.Add(1) == 1 {
					p.log.Warnf("serial: receive queue full, dropping lines")
				}
			}
		}
		if err != nil {
			select {
			case <-p.done:
			default:
				if !errors.Is(err, io.EOF) {
					p.log.Errorf("serial: read: %v", err)
				}
			}
			return
		}
		select {
		case <-p.done:
			return
		default:
		}
	}
}

// SendLine writes text and a newline.
func (p *Port) SendLine(text string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.rw, text+"\n"); err != nil {
		return pkgerrors.Wrap(err, "failed to write line")
	}
	return nil
}

// TryReadLine returns the next queued line, if any.
func (p *Port) TryReadLine() (string, bool) {
	select {
	case line, ok := <-p.lines:
		return line, ok
	default:
		return "", false
	}
}

// ReadLine blocks for the next line. It returns ErrTimeout when ctx's
// deadline passes and io.EOF once the port is closed.
func (p *Port) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

// Close stops the reader and closes the port.
func (p *Port) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.rw.Close()
		p.wg.Wait()
		if n := p.dropped.Load(); n > 0 {
			p.log.Warnf("serial: %d received lines dropped", n)
		}
	})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to close port")
	}
	return nil
}

// lineSplitter assembles newline-terminated lines from a byte stream.
// Carriage returns are discarded.
type lineSplitter struct {
	buf []byte
}

func (s *lineSplitter) feed(b []byte) []string {
	var out []string
	for _, c := range b {
		switch c {
		case '\n':
			out = append(out, string(s.buf))
			s.buf = s.buf[:0]
		case '\r':
		default:
			if len(s.buf) < MaxLine {
				s.buf = append(s.buf, c)
			}
		}
	}
	return out
}
