// Package tcpsink provides a sink that streams raw frame bytes over a TCP
// connection. The receiving side is expected to know the frame geometry;
// no framing header is written.
package tcpsink

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/pipeline/shared"
)

// TypeName is the registry type of the TCP sink.
const TypeName = "tcp"

// Connection defaults.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 5000
)

// Sink sends each frame's bytes over a TCP connection. With reconnect
// enabled a failed send closes the connection, dials again, and retries
// the frame once.
type Sink struct {
	shared.BaseSink

	mu        sync.Mutex
	host      string
	port      int
	reconnect bool
	conn      net.Conn
}

var _ core.Sink = (*Sink)(nil)

// New creates an unnamed TCP sink targeting 127.0.0.1:5000 with reconnect
// enabled.
func New() *Sink {
	s := &Sink{
		BaseSink:  shared.NewBaseSink("", TypeName),
		host:      DefaultHost,
		port:      DefaultPort,
		reconnect: true,
	}
	s.BindProcessor(s)
	return s
}

// Address returns the configured host:port target.
func (s *Sink) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Initialize applies the queue parameters plus host, port, and reconnect.
func (s *Sink) Initialize(params core.Params) error {
	if err := s.EnsureState("initialize", core.StateUninitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.StoreParams(params)
	if err := s.ApplyParams(params); err != nil {
		return s.Fail(s, err)
	}

	s.mu.Lock()
	if v, ok := params["host"]; ok && v != "" {
		s.host = v
	}
	s.mu.Unlock()

	if v, ok := params["port"]; ok {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 || p > 65535 {
			s.Logger().Warn("invalid port, keeping default",
				slog.String("block", s.Name()),
				slog.String("port", v),
				slog.Int("default", DefaultPort),
			)
		} else {
			s.mu.Lock()
			s.port = p
			s.mu.Unlock()
		}
	}
	if v, ok := params["reconnect"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s.Fail(s, fmt.Errorf("reconnect %q: %w", v, core.ErrInvalidArgument))
		}
		s.mu.Lock()
		s.reconnect = b
		s.mu.Unlock()
	}

	s.SetState(core.StateInitialized)
	return nil
}

// Start connects to the configured target and launches the queue worker.
// A failed connection fails the start.
func (s *Sink) Start() error {
	if s.State() == core.StateRunning {
		return nil
	}
	if err := s.EnsureState("start", core.StateInitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.SetState(core.StateStarting)

	if err := s.connect(); err != nil {
		return s.Fail(s, err)
	}

	s.StartWorker()
	s.SetState(core.StateRunning)
	s.Logger().Info("tcp sink started",
		slog.String("block", s.Name()),
		slog.String("address", s.Address()),
	)
	return nil
}

// Stop drains the queue, joins the worker, and closes the connection.
func (s *Sink) Stop() error {
	if s.State() != core.StateRunning {
		return nil
	}
	s.SetState(core.StateStopping)
	s.StopWorker()
	s.closeConn()
	s.SetState(core.StateStopped)
	s.Logger().Info("tcp sink stopped", slog.String("block", s.Name()))
	return nil
}

// Shutdown stops the sink.
func (s *Sink) Shutdown() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.closeConn()
	s.SetState(core.StateUninitialized)
	return nil
}

// connect dials the target and disables Nagle batching on the new
// connection.
func (s *Sink) connect() error {
	conn, err := net.Dial("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.Address(), err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *Sink) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Process sends the frame bytes. A send failure with reconnect enabled
// redials and retries the frame once; the error is returned if the retry
// also fails, leaving the sink running for later frames.
func (s *Sink) Process(f *frame.Frame) error {
	s.mu.Lock()
	conn := s.conn
	reconnect := s.reconnect
	s.mu.Unlock()

	if conn == nil {
		if !reconnect {
			return fmt.Errorf("send frame: not connected: %w", core.ErrInvalidState)
		}
		if err := s.connect(); err != nil {
			return err
		}
		s.mu.Lock()
		conn = s.conn
		s.mu.Unlock()
	}

	if err := sendAll(conn, f.Data()); err != nil {
		if !reconnect {
			return fmt.Errorf("send frame: %w", err)
		}
		s.Logger().Warn("send failed, reconnecting",
			slog.String("block", s.Name()),
			slog.String("address", s.Address()),
			slog.String("error", err.Error()),
		)
		if cerr := s.connect(); cerr != nil {
			return cerr
		}
		s.mu.Lock()
		conn = s.conn
		s.mu.Unlock()
		if err := sendAll(conn, f.Data()); err != nil {
			return fmt.Errorf("send frame after reconnect: %w", err)
		}
	}
	return nil
}

// sendAll writes the whole buffer, looping over short writes.
func sendAll(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
