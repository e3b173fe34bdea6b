// Package consolesink provides a sink that logs frame metadata. It is the
// cheapest possible consumer: useful for pipeline bring-up and for watching
// sequence numbers and timing without writing any data.
package consolesink

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/pipeline/shared"
)

// TypeName is the registry type of the console sink.
const TypeName = "console"

// DefaultMaxPixels bounds the pixel dump per frame.
const DefaultMaxPixels = 16

// Sink logs one line per frame via the block logger. With verbose enabled
// it adds running stats; with show_pixel_data it appends the leading pixel
// values.
type Sink struct {
	shared.BaseSink

	mu            sync.Mutex
	verbose       bool
	showPixelData bool
	maxPixels     int
}

var _ core.Sink = (*Sink)(nil)

// New creates an unnamed console sink.
func New() *Sink {
	s := &Sink{
		BaseSink:  shared.NewBaseSink("", TypeName),
		maxPixels: DefaultMaxPixels,
	}
	s.BindProcessor(s)
	return s
}

// SetVerbose toggles the extra per-frame stats fields.
func (s *Sink) SetVerbose(v bool) {
	s.mu.Lock()
	s.verbose = v
	s.mu.Unlock()
}

// SetShowPixelData toggles the pixel value dump.
func (s *Sink) SetShowPixelData(v bool) {
	s.mu.Lock()
	s.showPixelData = v
	s.mu.Unlock()
}

// SetMaxPixels bounds how many pixels the dump shows.
func (s *Sink) SetMaxPixels(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.maxPixels = n
	s.mu.Unlock()
}

// Initialize applies the queue parameters plus verbose, show_pixel_data,
// and max_pixels.
func (s *Sink) Initialize(params core.Params) error {
	if err := s.EnsureState("initialize", core.StateUninitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.StoreParams(params)
	if err := s.ApplyParams(params); err != nil {
		return s.Fail(s, err)
	}

	if v, ok := params["verbose"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s.Fail(s, fmt.Errorf("verbose %q: %w", v, core.ErrInvalidArgument))
		}
		s.SetVerbose(b)
	}
	if v, ok := params["show_pixel_data"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s.Fail(s, fmt.Errorf("show_pixel_data %q: %w", v, core.ErrInvalidArgument))
		}
		s.SetShowPixelData(b)
	}
	if v, ok := params["max_pixels"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return s.Fail(s, fmt.Errorf("max_pixels %q: %w", v, core.ErrInvalidArgument))
		}
		s.SetMaxPixels(n)
	}

	s.SetState(core.StateInitialized)
	return nil
}

// Start launches the queue worker.
func (s *Sink) Start() error {
	if s.State() == core.StateRunning {
		return nil
	}
	if err := s.EnsureState("start", core.StateInitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.SetState(core.StateStarting)
	s.StartWorker()
	s.SetState(core.StateRunning)
	return nil
}

// Stop drains the queue and joins the worker.
func (s *Sink) Stop() error {
	if s.State() != core.StateRunning {
		return nil
	}
	s.SetState(core.StateStopping)
	s.StopWorker()
	s.SetState(core.StateStopped)
	return nil
}

// Shutdown stops the sink.
func (s *Sink) Shutdown() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.SetState(core.StateUninitialized)
	return nil
}

// Process logs the frame.
func (s *Sink) Process(f *frame.Frame) error {
	s.mu.Lock()
	verbose := s.verbose
	showPixels := s.showPixelData
	maxPixels := s.maxPixels
	s.mu.Unlock()

	info := f.Info()
	attrs := []any{
		slog.String("block", s.Name()),
		slog.Uint64("seq", info.SequenceNumber),
		slog.Uint64("timestamp_us", info.TimestampUS),
		slog.String("format", info.PixelFormat.String()),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Int("bytes", f.Size()),
	}
	if verbose {
		stats := s.Stats()
		attrs = append(attrs,
			slog.Uint64("frames_processed", stats.FramesProcessed),
			slog.Uint64("frames_dropped", stats.FramesDropped),
			slog.Float64("avg_fps", stats.AvgFPS),
			slog.Float64("avg_latency_ms", stats.AvgLatencyMS),
			slog.Int("queue_depth", s.QueueDepth()),
		)
	}
	if showPixels {
		attrs = append(attrs, slog.String("pixels", formatPixels(f, maxPixels)))
	}

	s.Logger().Info("frame", attrs...)
	return nil
}

// formatPixels renders up to max leading pixels as tuples.
func formatPixels(f *frame.Frame, max int) string {
	data := f.Data()
	info := f.Info()

	bpp := info.PixelFormat.BytesPerPixel()
	if bpp == 0 {
		// Planar layouts dump single bytes.
		bpp = 1
	}

	count := info.Width * info.Height
	if count > max {
		count = max
	}

	var sb strings.Builder
	for i := 0; i < count; i++ {
		off := i * bpp
		if off+bpp > len(data) {
			break
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('(')
		for c := 0; c < bpp; c++ {
			if c > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(int(data[off+c])))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}
