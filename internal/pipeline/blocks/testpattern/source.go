package testpattern

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/pipeline/shared"
	"github.com/jmylchreest/vidpipe/internal/threading"
)

// TypeName is the registry type of the test pattern source.
const TypeName = "test_pattern"

// Source generates test pattern frames at the configured rate on its own
// goroutine. Frame buffers are recycled through a pool that retains up to the
// buffer count; when every pooled buffer is still held downstream, a fresh
// buffer is allocated, so generation does not stall on slow consumers.
type Source struct {
	shared.BaseSource

	mu      sync.Mutex
	pattern Pattern
	colR    uint8
	colG    uint8
	colB    uint8
	counter uint64
	rng     *rand.Rand
	pool    *framePool

	wg sync.WaitGroup
}

var _ core.Source = (*Source)(nil)

// New creates an unnamed test pattern source showing colour bars in white.
func New() *Source {
	s := &Source{
		BaseSource: shared.NewBaseSource("", TypeName),
		pattern:    PatternBars,
		colR:       255,
		colG:       255,
		colB:       255,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.SetSupportedFormats([]frame.PixelFormat{
		frame.FormatRGB24,
		frame.FormatBGR24,
		frame.FormatRGBA32,
		frame.FormatBGRA32,
		frame.FormatYUV420P,
		frame.FormatYUYV,
	})
	s.SetSupportedResolutions([]core.Resolution{
		{Width: 160, Height: 120},
		{Width: 320, Height: 240},
		{Width: 640, Height: 480},
		{Width: 800, Height: 600},
		{Width: 1024, Height: 768},
		{Width: 1280, Height: 720},
		{Width: 1920, Height: 1080},
	})
	return s
}

// Pattern returns the active test pattern.
func (s *Source) Pattern() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern
}

// SetPattern selects the generated pattern. Takes effect on the next frame.
func (s *Source) SetPattern(p Pattern) {
	s.mu.Lock()
	s.pattern = p
	s.mu.Unlock()
}

// Color returns the pattern colour.
func (s *Source) Color() (r, g, b uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colR, s.colG, s.colB
}

// SetColor sets the colour used by the solid and moving box patterns.
func (s *Source) SetColor(r, g, b uint8) {
	s.mu.Lock()
	s.colR, s.colG, s.colB = r, g, b
	s.mu.Unlock()
}

// Initialize applies the common source parameters plus pattern and color.
func (s *Source) Initialize(params core.Params) error {
	if err := s.EnsureState("initialize", core.StateUninitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.StoreParams(params)
	if err := s.ApplyParams(params); err != nil {
		return s.Fail(s, err)
	}

	if v, ok := params["pattern"]; ok {
		p, err := ParsePattern(v)
		if err != nil {
			return s.Fail(s, err)
		}
		s.SetPattern(p)
	}
	if v, ok := params["color"]; ok {
		r, g, b, err := parseColor(v)
		if err != nil {
			return s.Fail(s, err)
		}
		s.SetColor(r, g, b)
	}

	info := s.OutputFormat()
	if !s.SupportsFormat(info.PixelFormat) {
		return s.Fail(s, fmt.Errorf("output format %s: %w", info.PixelFormat, core.ErrInvalidArgument))
	}

	s.SetState(core.StateInitialized)
	s.Logger().Debug("test pattern source initialized",
		slog.String("block", s.Name()),
		slog.String("pattern", s.Pattern().String()),
		slog.String("format", info.String()),
	)
	return nil
}

// Start launches the generator goroutine.
func (s *Source) Start() error {
	if s.State() == core.StateRunning {
		return nil
	}
	if err := s.EnsureState("start", core.StateInitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.SetState(core.StateStarting)

	info := s.OutputFormat()
	size := info.FrameSize()
	if size == 0 {
		return s.Fail(s, fmt.Errorf("output format %s has zero frame size: %w", info, core.ErrInvalidArgument))
	}

	s.mu.Lock()
	s.counter = 0
	s.pool = newFramePool(size, s.BufferCount())
	s.mu.Unlock()

	s.ResetEmitState()
	s.wg.Add(1)
	go s.generate(info)

	s.SetState(core.StateRunning)
	s.Logger().Info("test pattern source started",
		slog.String("block", s.Name()),
		slog.Float64("fps", s.FrameRate()),
	)
	return nil
}

// Stop joins the generator goroutine.
func (s *Source) Stop() error {
	if s.State() != core.StateRunning {
		return nil
	}
	s.SetState(core.StateStopping)
	s.RequestStop()
	s.wg.Wait()
	s.SetState(core.StateStopped)
	s.Logger().Info("test pattern source stopped", slog.String("block", s.Name()))
	return nil
}

// Shutdown stops the source and drops the buffer pool.
func (s *Source) Shutdown() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pool = nil
	s.mu.Unlock()
	s.SetState(core.StateUninitialized)
	return nil
}

func (s *Source) generate(info frame.Info) {
	defer s.wg.Done()
	for !s.StopRequested() {
		if d := s.NextEmitDelay(); d > 0 {
			if d > time.Millisecond {
				time.Sleep(time.Millisecond)
			} else {
				threading.PreciseSleep(d)
			}
			continue
		}

		s.mu.Lock()
		pool := s.pool
		s.mu.Unlock()
		if pool == nil {
			return
		}

		f := pool.get(info)
		s.fillFrame(f)
		s.EmitFrame(f)

		s.mu.Lock()
		s.counter++
		s.mu.Unlock()
	}
}

func (s *Source) fillFrame(f *frame.Frame) {
	s.mu.Lock()
	pattern := s.pattern
	r, g, b := s.colR, s.colG, s.colB
	counter := s.counter
	rng := s.rng
	s.mu.Unlock()

	data := f.Data()
	info := f.Info()

	switch pattern {
	case PatternSolid:
		fillSolid(data, info, r, g, b)
	case PatternBars:
		fillBars(data, info)
	case PatternCheckerboard:
		fillCheckerboard(data, info)
	case PatternGradient:
		fillGradient(data, info)
	case PatternNoise:
		fillNoise(data, rng)
	case PatternMovingBox:
		fillMovingBox(data, info, r, g, b, counter)
	}
}

// framePool recycles frame buffers so steady-state generation allocates
// nothing. At most max buffers are retained.
type framePool struct {
	mu   sync.Mutex
	free [][]byte
	size int
	max  int
}

func newFramePool(size, max int) *framePool {
	if max < 1 {
		max = 1
	}
	return &framePool{size: size, max: max}
}

func (p *framePool) get(info frame.Info) *frame.Frame {
	p.mu.Lock()
	var data []byte
	if n := len(p.free); n > 0 {
		data = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if data == nil {
		data = make([]byte, p.size)
	}
	return frame.Wrap(data, info, p.recycle)
}

func (p *framePool) recycle(f *frame.Frame) {
	data := f.Data()
	if cap(data) < p.size {
		return
	}
	p.mu.Lock()
	if len(p.free) < p.max {
		p.free = append(p.free, data[:p.size])
	}
	p.mu.Unlock()
}
