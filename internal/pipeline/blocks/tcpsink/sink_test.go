package tcpsink

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// frameServer accepts loopback connections and accumulates every byte
// received across all of them.
type frameServer struct {
	ln net.Listener

	mu       sync.Mutex
	received []byte
	accepts  int
}

func newFrameServer(t *testing.T) *frameServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &frameServer{ln: ln}
	go srv.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return srv
}

func (s *frameServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.accepts++
		s.mu.Unlock()
		go func() {
			buf := make([]byte, 4096)
			for {
				n, err := conn.Read(buf)
				if n > 0 {
					s.mu.Lock()
					s.received = append(s.received, buf[:n]...)
					s.mu.Unlock()
				}
				if err != nil {
					conn.Close()
					return
				}
			}
		}()
	}
}

func (s *frameServer) bytesReceived() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func (s *frameServer) acceptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

func (s *frameServer) hostPort(t *testing.T) (string, string) {
	t.Helper()
	host, port, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(t, err)
	return host, port
}

func newTestFrame(t *testing.T) *frame.Frame {
	t.Helper()
	f, err := frame.New(frame.Info{Width: 8, Height: 4, PixelFormat: frame.FormatRGB24})
	require.NoError(t, err)
	data := f.Data()
	for i := range data {
		data[i] = byte(i)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInitializeParams(t *testing.T) {
	s := New()
	err := s.Initialize(core.Params{
		"host":      "10.0.0.1",
		"port":      "6000",
		"reconnect": "false",
	})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:6000", s.Address())
}

func TestInitializeKeepsDefaultOnBadPort(t *testing.T) {
	for _, bad := range []string{"abc", "0", "70000", "-1"} {
		s := New()
		require.NoError(t, s.Initialize(core.Params{"port": bad}), bad)
		assert.Equal(t, "127.0.0.1:"+strconv.Itoa(DefaultPort), s.Address())
	}
}

func TestInitializeRejectsBadReconnect(t *testing.T) {
	s := New()
	err := s.Initialize(core.Params{"reconnect": "maybe"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestStartFailsWithoutListener(t *testing.T) {
	// A closed listener port refuses connections immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	ln.Close()

	s := New()
	require.NoError(t, s.Initialize(core.Params{"host": host, "port": port}))
	err = s.Start()
	require.Error(t, err)
	assert.Equal(t, core.StateError, s.State())
}

func TestFramesStreamToServer(t *testing.T) {
	srv := newFrameServer(t)
	host, port := srv.hostPort(t)

	s := New()
	require.NoError(t, s.Initialize(core.Params{"host": host, "port": port}))
	require.NoError(t, s.Start())

	f := newTestFrame(t)
	want := append([]byte(nil), f.Data()...)
	require.True(t, s.Submit(f))
	f.Release()

	g := newTestFrame(t)
	require.True(t, s.Submit(g))
	g.Release()

	waitFor(t, func() bool { return srv.bytesReceived() == 2*len(want) })
	require.NoError(t, s.Shutdown())

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, want, srv.received[:len(want)])
}

func TestReconnectAfterServerDrop(t *testing.T) {
	srv := newFrameServer(t)
	host, port := srv.hostPort(t)

	s := New()
	require.NoError(t, s.Initialize(core.Params{"host": host, "port": port, "reconnect": "true"}))
	require.NoError(t, s.Start())

	f := newTestFrame(t)
	size := f.Size()
	require.True(t, s.Submit(f))
	f.Release()
	waitFor(t, func() bool { return srv.bytesReceived() == size })

	// Close the sink's own connection; the next send fails and the sink
	// redials.
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(t, conn)
	conn.Close()

	// Keep submitting until the redial lands.
	waitFor(t, func() bool {
		g := newTestFrame(t)
		ok := s.Submit(g)
		g.Release()
		return ok && srv.acceptCount() >= 2
	})

	require.NoError(t, s.Shutdown())
}

func TestStopClosesConnection(t *testing.T) {
	srv := newFrameServer(t)
	host, port := srv.hostPort(t)

	s := New()
	require.NoError(t, s.Initialize(core.Params{"host": host, "port": port}))
	require.NoError(t, s.Start())

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(t, conn)

	require.NoError(t, s.Stop())
	assert.Equal(t, core.StateStopped, s.State())

	s.mu.Lock()
	closed := s.conn == nil
	s.mu.Unlock()
	assert.True(t, closed)
}

func TestSendAllLoopsOverShortWrites(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payload := make([]byte, 1<<16)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() { done <- sendAll(a, payload) }()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 1024)
	for len(got) < len(payload) {
		n, err := b.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.NoError(t, <-done)
	assert.Equal(t, payload, got)
}
