package core

import (
	"sync"

	"github.com/jmylchreest/vidpipe/internal/frame"
)

// testBlock is a minimal Block used across the package tests. It tracks
// lifecycle calls and can be told to fail any of them.
type testBlock struct {
	BaseBlock

	mu         sync.Mutex
	initCalls  int
	startCalls int
	stopCalls  int
	downCalls  int

	failInit  error
	failStart error
}

var _ Block = (*testBlock)(nil)

func newTestBlock(name, typ string) *testBlock {
	return &testBlock{BaseBlock: NewBaseBlock(name, typ)}
}

func (b *testBlock) Initialize(params Params) error {
	b.mu.Lock()
	b.initCalls++
	fail := b.failInit
	b.mu.Unlock()
	if fail != nil {
		return b.Fail(b, fail)
	}
	b.StoreParams(params)
	b.SetState(StateInitialized)
	return nil
}

func (b *testBlock) Start() error {
	b.mu.Lock()
	b.startCalls++
	fail := b.failStart
	b.mu.Unlock()
	if fail != nil {
		return b.Fail(b, fail)
	}
	b.SetState(StateRunning)
	return nil
}

func (b *testBlock) Stop() error {
	b.mu.Lock()
	b.stopCalls++
	b.mu.Unlock()
	if b.State() != StateRunning {
		return nil
	}
	b.SetState(StateStopped)
	return nil
}

func (b *testBlock) Shutdown() error {
	b.mu.Lock()
	b.downCalls++
	b.mu.Unlock()
	b.SetState(StateUninitialized)
	return nil
}

func (b *testBlock) calls() (init, start, stop, down int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls, b.startCalls, b.stopCalls, b.downCalls
}

// testSource is a testBlock that satisfies Source so pipeline tests can
// exercise ordering and connection wiring.
type testSource struct {
	testBlock

	mu     sync.Mutex
	cb     FrameCallback
	format frame.Info
	fps    float64
	bufs   int
}

var _ Source = (*testSource)(nil)

func newTestSource(name string) *testSource {
	return &testSource{
		testBlock: *newTestBlock(name, "test-source"),
		format: frame.Info{
			Width:       64,
			Height:      48,
			PixelFormat: frame.FormatRGB24,
		},
		fps:  30,
		bufs: 3,
	}
}

func (s *testSource) SetFrameCallback(cb FrameCallback) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *testSource) emit(f *frame.Frame) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(f)
	}
}

func (s *testSource) OutputFormat() frame.Info { return s.format }

func (s *testSource) SetOutputFormat(info frame.Info) error {
	s.format = info
	return nil
}

func (s *testSource) FrameRate() float64 { return s.fps }

func (s *testSource) SetFrameRate(fps float64) error {
	s.fps = fps
	return nil
}

func (s *testSource) BufferCount() int { return s.bufs }

func (s *testSource) SetBufferCount(n int) error {
	s.bufs = n
	return nil
}

func (s *testSource) SupportsFormat(format frame.PixelFormat) bool {
	return format == frame.FormatRGB24
}

func (s *testSource) SupportedFormats() []frame.PixelFormat {
	return []frame.PixelFormat{frame.FormatRGB24}
}

func (s *testSource) SupportedResolutions() []Resolution {
	return []Resolution{{Width: 64, Height: 48}}
}

// testSink is a testBlock that satisfies Sink and records submitted frames.
type testSink struct {
	testBlock

	mu        sync.Mutex
	format    frame.Info
	maxDepth  int
	blocking  bool
	submitted []*frame.Frame
	accept    bool
	supports  bool
}

var _ Sink = (*testSink)(nil)

func newTestSink(name string) *testSink {
	return &testSink{
		testBlock: *newTestBlock(name, "test-sink"),
		maxDepth:  10,
		blocking:  true,
		accept:    true,
		supports:  true,
	}
}

func (s *testSink) Submit(f *frame.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accept {
		return false
	}
	s.submitted = append(s.submitted, f)
	return true
}

func (s *testSink) submittedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func (s *testSink) InputFormat() frame.Info { return s.format }

func (s *testSink) SetInputFormat(info frame.Info) error {
	s.mu.Lock()
	s.format = info
	s.mu.Unlock()
	return nil
}

func (s *testSink) QueueDepth() int { return 0 }

func (s *testSink) MaxQueueDepth() int { return s.maxDepth }

func (s *testSink) SetMaxQueueDepth(n int) error {
	s.maxDepth = n
	return nil
}

func (s *testSink) Blocking() bool { return s.blocking }

func (s *testSink) SetBlocking(blocking bool) { s.blocking = blocking }

func (s *testSink) SupportsFormat(format frame.PixelFormat) bool {
	return s.supports
}

func (s *testSink) SupportedFormats() []frame.PixelFormat {
	return []frame.PixelFormat{frame.FormatRGB24}
}
