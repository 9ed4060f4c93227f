package sink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// DefaultWriteTimeout bounds a single datagram write.
const DefaultWriteTimeout = 50 * time.Millisecond

// UDPSink sends each payload as one datagram. Send is fire-and-forget.
type UDPSink struct {
	ep           Endpoint
	conn         net.PacketConn
	writeTimeout time.Duration
	log          logger.Logger

	sent    atomic.Uint64
	failed  atomic.Uint64
	lastErr atomic.Pointer[errors.EnhancedError]

	closeOnce sync.Once
	closeErr  error
}

// Option configures a UDPSink.
type Option func(*UDPSink)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *UDPSink) { s.writeTimeout = d }
}

// WithLogger sets the logger used for debug-level send failures.
func WithLogger(l logger.Logger) Option {
	return func(s *UDPSink) { s.log = l }
}

// NewUDPSink opens an unconnected UDP socket bound to an ephemeral port.
func NewUDPSink(ctx context.Context, ep Endpoint, opts ...Option) (*UDPSink, error) {
	if ep.Addr == nil {
		return nil, errors.Newf("endpoint %s is not resolved", ep).
			Component("sink").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &UDPSink{ep: ep, writeTimeout: DefaultWriteTimeout}
	for _, opt := range opts {
		opt(s)
	}

	lc := net.ListenConfig{}
	if ep.Broadcast {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setBroadcast(fd)
			}); err != nil {
				return err
			}
			return sockErr
		}
	}

	conn, err := lc.ListenPacket(ctx, ep.network(), ":0")
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open UDP socket: %w", err)).
			Component("sink").
			Category(errors.CategoryInitialization).
			Context("broadcast", ep.Broadcast).
			Build()
	}
	s.conn = conn
	return s, nil
}

// Endpoint returns the destination.
func (s *UDPSink) Endpoint() Endpoint { return s.ep }

// LocalAddr returns the bound local address.
func (s *UDPSink) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Send writes payload as one datagram. Failures are counted and logged at
// debug level, never returned.
func (s *UDPSink) Send(payload []byte) {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.conn.WriteTo(payload, s.ep.Addr); err != nil {
		s.failed.Add(1)
		sendErr := errors.New(err).
			Component("sink").
			Category(errors.CategoryNetwork).
			Context("endpoint", s.ep.String()).
			Build()
		s.lastErr.Store(sendErr)
		if s.log != nil {
			s.log.Debug("datagram send failed",
				logger.Error(sendErr),
				logger.Int("bytes", len(payload)))
		}
		return
	}
	s.sent.Add(1)
}

// Sent returns the number of datagrams written.
func (s *UDPSink) Sent() uint64 { return s.sent.Load() }

// Failed returns the number of datagrams that could not be written.
func (s *UDPSink) Failed() uint64 { return s.failed.Load() }

// LastError returns the most recent send failure, or nil.
func (s *UDPSink) LastError() error {
	if err := s.lastErr.Load(); err != nil {
		return err
	}
	return nil
}

// Close releases the socket. Calling it more than once is safe.
func (s *UDPSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
