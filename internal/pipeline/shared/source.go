// Package shared provides the source and sink bases that concrete blocks
// embed. BaseSource implements the frame-rate gate and stamping in front of
// the delivery callback; BaseSink implements the bounded queue and worker
// that decouple producers from consumers.
package shared

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/timing"
)

// Buffer count bounds for sources.
const (
	MinBufferCount = 1
	MaxBufferCount = 32
)

// MaxFrameRate is the highest accepted frames-per-second setting.
const MaxFrameRate = 1000.0

// BaseSource implements the producer half of a pipeline edge. Concrete
// sources embed it, prepare frames on their own goroutine, and hand each one
// to EmitFrame, which owns the rate gate, the timestamp and sequence stamps,
// and the synchronous delivery callback.
type BaseSource struct {
	core.BaseBlock

	mu          sync.Mutex
	cb          core.FrameCallback
	format      frame.Info
	fps         float64
	bufCount    int
	formats     []frame.PixelFormat
	resolutions []core.Resolution

	lastEmitUS uint64
	sequence   uint64

	stopRequested atomic.Bool
}

// NewBaseSource creates a BaseSource with the default output format
// (640x480 RGB24 at 30 fps, 3 buffers).
func NewBaseSource(name, typ string) BaseSource {
	return BaseSource{
		BaseBlock: core.NewBaseBlock(name, typ),
		format: frame.Info{
			Width:       640,
			Height:      480,
			PixelFormat: frame.FormatRGB24,
		},
		fps:      30,
		bufCount: 3,
	}
}

// SetFrameCallback installs the delivery callback. The callback runs
// synchronously on the producer goroutine.
func (s *BaseSource) SetFrameCallback(cb core.FrameCallback) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// OutputFormat returns the advertised output format.
func (s *BaseSource) OutputFormat() frame.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetOutputFormat replaces the output format. Rejected while running.
func (s *BaseSource) SetOutputFormat(info frame.Info) error {
	if s.State() == core.StateRunning {
		return fmt.Errorf("set output format while running: %w", core.ErrInvalidState)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("output format %dx%d: %w", info.Width, info.Height, core.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.format = info
	s.mu.Unlock()
	return nil
}

// FrameRate returns the configured frame rate in frames per second.
func (s *BaseSource) FrameRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// SetFrameRate sets the frame rate. A rate of 0 disables the emit gate;
// negative rates and rates above MaxFrameRate are rejected.
func (s *BaseSource) SetFrameRate(fps float64) error {
	if fps < 0 || fps > MaxFrameRate {
		return fmt.Errorf("frame rate %.2f out of range: %w", fps, core.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.fps = fps
	s.mu.Unlock()
	return nil
}

// BufferCount returns the configured buffer pool size.
func (s *BaseSource) BufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufCount
}

// SetBufferCount sets the buffer pool size within [MinBufferCount,
// MaxBufferCount].
func (s *BaseSource) SetBufferCount(n int) error {
	if n < MinBufferCount || n > MaxBufferCount {
		return fmt.Errorf("buffer count %d out of range [%d, %d]: %w",
			n, MinBufferCount, MaxBufferCount, core.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.bufCount = n
	s.mu.Unlock()
	return nil
}

// SetSupportedFormats records the pixel formats the concrete source can
// produce.
func (s *BaseSource) SetSupportedFormats(formats []frame.PixelFormat) {
	s.mu.Lock()
	s.formats = append([]frame.PixelFormat(nil), formats...)
	s.mu.Unlock()
}

// SetSupportedResolutions records the resolutions the concrete source can
// produce.
func (s *BaseSource) SetSupportedResolutions(res []core.Resolution) {
	s.mu.Lock()
	s.resolutions = append([]core.Resolution(nil), res...)
	s.mu.Unlock()
}

// SupportsFormat reports whether the source can produce the given format.
func (s *BaseSource) SupportsFormat(format frame.PixelFormat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.formats {
		if f == format {
			return true
		}
	}
	return false
}

// SupportedFormats returns the producible pixel formats.
func (s *BaseSource) SupportedFormats() []frame.PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.PixelFormat(nil), s.formats...)
}

// SupportedResolutions returns the producible resolutions.
func (s *BaseSource) SupportedResolutions() []core.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Resolution(nil), s.resolutions...)
}

// ApplyParams interprets the common source parameters: width, height, fps,
// and format. Unknown keys are left for the concrete source.
func (s *BaseSource) ApplyParams(params core.Params) error {
	info := s.OutputFormat()
	changed := false

	if v, ok := params["width"]; ok {
		w, err := strconv.Atoi(v)
		if err != nil || w <= 0 {
			return fmt.Errorf("width %q: %w", v, core.ErrInvalidArgument)
		}
		info.Width = w
		changed = true
	}
	if v, ok := params["height"]; ok {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 {
			return fmt.Errorf("height %q: %w", v, core.ErrInvalidArgument)
		}
		info.Height = h
		changed = true
	}
	if v, ok := params["format"]; ok {
		pf, err := frame.ParsePixelFormat(v)
		if err != nil {
			return fmt.Errorf("format %q: %w", v, core.ErrInvalidArgument)
		}
		info.PixelFormat = pf
		changed = true
	}
	if changed {
		if err := s.SetOutputFormat(info); err != nil {
			return err
		}
	}

	if v, ok := params["fps"]; ok {
		fps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("fps %q: %w", v, core.ErrInvalidArgument)
		}
		if err := s.SetFrameRate(fps); err != nil {
			return err
		}
	}
	return nil
}

// ResetEmitState restarts the sequence counter and the rate gate. Concrete
// sources call this on every Start so delivered frames are numbered from 1.
func (s *BaseSource) ResetEmitState() {
	s.mu.Lock()
	s.lastEmitUS = 0
	s.sequence = 0
	s.mu.Unlock()
	s.stopRequested.Store(false)
}

// RequestStop marks the source as stopping. EmitFrame refuses frames once
// set; the concrete source still joins its producer goroutine itself.
func (s *BaseSource) RequestStop() {
	s.stopRequested.Store(true)
}

// StopRequested reports whether RequestStop has been called since the last
// ResetEmitState.
func (s *BaseSource) StopRequested() bool {
	return s.stopRequested.Load()
}

// NextEmitDelay returns how long until the rate gate admits another frame.
// Zero means a frame emitted now would pass the gate. Producer goroutines
// use this to pace frame preparation instead of generating frames the gate
// would discard.
func (s *BaseSource) NextEmitDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fps <= 0 || s.lastEmitUS == 0 {
		return 0
	}
	interval := uint64(1e6 / s.fps)
	elapsed := timing.NowUS() - s.lastEmitUS
	if elapsed >= interval {
		return 0
	}
	return time.Duration(interval-elapsed) * time.Microsecond
}

// EmitFrame delivers a prepared frame downstream. It takes ownership of the
// caller's reference: on every return path the reference has been released
// (consumers that need the frame longer take their own).
//
// The emit gate runs first: with a positive frame rate, a frame arriving
// sooner than one interval after the previous emit is counted dropped and
// discarded. Accepted frames are stamped with the monotonic timestamp and
// the next sequence number, handed to the delivery callback synchronously,
// and counted in the stats.
func (s *BaseSource) EmitFrame(f *frame.Frame) bool {
	if f == nil {
		return false
	}
	if s.stopRequested.Load() {
		f.Release()
		return false
	}

	now := timing.NowUS()

	s.mu.Lock()
	if s.fps > 0 && s.lastEmitUS != 0 {
		interval := uint64(1e6 / s.fps)
		if now-s.lastEmitUS < interval {
			s.mu.Unlock()
			s.MarkDropped()
			f.Release()
			return false
		}
	}
	s.lastEmitUS = now
	s.sequence++
	seq := s.sequence
	cb := s.cb
	s.mu.Unlock()

	f.SetTimestamp(now)
	f.SetSequence(seq)
	size := f.Size()

	if cb != nil {
		cb(f)
	}

	s.UpdateFrameStats(size)
	f.Release()
	return true
}
