// Package filesink provides a sink that writes frame data to disk, either
// as raw dumps or as PPM/PGM images. Raw and YUV output can append to a
// single file or write one numbered file per frame; image formats always
// write one file per frame.
package filesink

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
	"github.com/jmylchreest/vidpipe/internal/pipeline/shared"
)

// TypeName is the registry type of the file sink.
const TypeName = "file"

// Format selects the on-disk encoding.
type Format int

// Supported output formats.
const (
	FormatRaw Format = iota
	FormatPPM
	FormatPGM
	FormatYUV
)

var formatNames = map[Format]string{
	FormatRaw: "raw",
	FormatPPM: "ppm",
	FormatPGM: "pgm",
	FormatYUV: "yuv",
}

// String returns the parameter-value name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "unknown"
}

// ParseFormat maps a format parameter value to a Format.
func ParseFormat(name string) (Format, error) {
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatRaw, fmt.Errorf("format %q: %w", name, core.ErrInvalidArgument)
}

// extension returns the file extension used for per-frame files.
func (f Format) extension() string {
	return f.String()
}

// logInterval is how many written frames pass between progress logs.
const logInterval = 100

// Sink writes each frame to disk in the configured format.
type Sink struct {
	shared.BaseSink

	mu            sync.Mutex
	path          string
	format        Format
	singleFile    bool
	file          *os.File
	framesWritten uint64
}

var _ core.Sink = (*Sink)(nil)

// New creates an unnamed file sink writing raw frames to numbered files
// under the base path "output".
func New() *Sink {
	s := &Sink{
		path:     "output",
		format:   FormatRaw,
		BaseSink: shared.NewBaseSink("", TypeName),
	}
	s.BindProcessor(s)
	return s
}

// Path returns the configured base path.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Format returns the configured output format.
func (s *Sink) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// FramesWritten returns how many frames have been written since Start.
func (s *Sink) FramesWritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesWritten
}

// Initialize applies the queue parameters plus path, format, and
// single_file.
func (s *Sink) Initialize(params core.Params) error {
	if err := s.EnsureState("initialize", core.StateUninitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.StoreParams(params)
	if err := s.ApplyParams(params); err != nil {
		return s.Fail(s, err)
	}

	s.mu.Lock()
	if v, ok := params["path"]; ok && v != "" {
		s.path = v
	}
	s.mu.Unlock()

	if v, ok := params["format"]; ok {
		f, err := ParseFormat(v)
		if err != nil {
			return s.Fail(s, err)
		}
		s.mu.Lock()
		s.format = f
		s.mu.Unlock()
	}
	if v, ok := params["single_file"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s.Fail(s, fmt.Errorf("single_file %q: %w", v, core.ErrInvalidArgument))
		}
		s.mu.Lock()
		s.singleFile = b
		s.mu.Unlock()
	}

	s.SetState(core.StateInitialized)
	s.Logger().Debug("file sink initialized",
		slog.String("block", s.Name()),
		slog.String("path", s.Path()),
		slog.String("format", s.Format().String()),
	)
	return nil
}

// Start opens the single output file if configured and launches the queue
// worker.
func (s *Sink) Start() error {
	if s.State() == core.StateRunning {
		return nil
	}
	if err := s.EnsureState("start", core.StateInitialized, core.StateStopped); err != nil {
		return s.Fail(s, err)
	}
	s.SetState(core.StateStarting)

	s.mu.Lock()
	s.framesWritten = 0
	if s.singleFile && (s.format == FormatRaw || s.format == FormatYUV) {
		name := s.path
		if s.format == FormatYUV {
			name += ".yuv"
		}
		f, err := os.Create(name)
		if err != nil {
			s.mu.Unlock()
			return s.Fail(s, fmt.Errorf("open %s: %w", name, err))
		}
		s.file = f
	}
	s.mu.Unlock()

	s.StartWorker()
	s.SetState(core.StateRunning)
	s.Logger().Info("file sink started",
		slog.String("block", s.Name()),
		slog.String("path", s.Path()),
		slog.String("format", s.Format().String()),
	)
	return nil
}

// Stop drains the queue, joins the worker, and closes the open file.
func (s *Sink) Stop() error {
	if s.State() != core.StateRunning {
		return nil
	}
	s.SetState(core.StateStopping)
	s.StopWorker()
	s.closeFile()
	s.SetState(core.StateStopped)
	s.Logger().Info("file sink stopped",
		slog.String("block", s.Name()),
		slog.Uint64("frames_written", s.FramesWritten()),
	)
	return nil
}

// Shutdown stops the sink.
func (s *Sink) Shutdown() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.closeFile()
	s.SetState(core.StateUninitialized)
	return nil
}

func (s *Sink) closeFile() {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		f.Close()
	}
}

// Process writes the frame in the configured format.
func (s *Sink) Process(f *frame.Frame) error {
	s.mu.Lock()
	format := s.format
	s.mu.Unlock()

	var err error
	switch format {
	case FormatRaw, FormatYUV:
		err = s.writeRaw(f, format)
	case FormatPPM:
		err = s.writePPM(f)
	case FormatPGM:
		err = s.writePGM(f)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.framesWritten++
	n := s.framesWritten
	s.mu.Unlock()

	if n%logInterval == 0 {
		s.Logger().Info("frames written",
			slog.String("block", s.Name()),
			slog.Uint64("frames_written", n),
		)
	}
	return nil
}

// writeRaw appends the frame bytes to the single file, or dumps them into
// a numbered per-frame file.
func (s *Sink) writeRaw(f *frame.Frame, format Format) error {
	s.mu.Lock()
	file := s.file
	single := s.singleFile
	s.mu.Unlock()

	if single {
		if file == nil {
			return fmt.Errorf("write frame: output file not open: %w", core.ErrInvalidState)
		}
		_, err := file.Write(f.Data())
		return err
	}

	name := s.frameFileName(format.extension())
	return os.WriteFile(name, f.Data(), 0o644)
}

// writePPM writes the frame as a binary PPM image. Only packed RGB input
// is accepted; the alpha channel of RGBA frames is dropped.
func (s *Sink) writePPM(f *frame.Frame) error {
	info := f.Info()
	data := f.Data()

	var rgb []byte
	switch info.PixelFormat {
	case frame.FormatRGB24:
		rgb = data
	case frame.FormatRGBA32:
		n := info.Width * info.Height
		rgb = make([]byte, 0, n*3)
		for i := 0; i < n; i++ {
			rgb = append(rgb, data[i*4], data[i*4+1], data[i*4+2])
		}
	default:
		return fmt.Errorf("ppm output for %s: %w", info.PixelFormat, core.ErrInvalidArgument)
	}

	out, err := os.Create(s.frameFileName("ppm"))
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := fmt.Fprintf(out, "P6\n%d %d\n255\n", info.Width, info.Height); err != nil {
		return err
	}
	_, err = out.Write(rgb)
	return err
}

// writePGM writes the frame as a binary PGM image. RGB frames are reduced
// to BT.601 luma; everything else contributes its leading width*height
// bytes, which for planar YUV layouts is the luma plane.
func (s *Sink) writePGM(f *frame.Frame) error {
	info := f.Info()
	data := f.Data()
	n := info.Width * info.Height

	var gray []byte
	switch info.PixelFormat {
	case frame.FormatRGB24:
		gray = make([]byte, n)
		for i := 0; i < n; i++ {
			r := float64(data[i*3])
			g := float64(data[i*3+1])
			b := float64(data[i*3+2])
			gray[i] = uint8(0.299*r + 0.587*g + 0.114*b)
		}
	default:
		if len(data) < n {
			return fmt.Errorf("pgm output needs %d bytes, frame has %d: %w",
				n, len(data), core.ErrInvalidArgument)
		}
		gray = data[:n]
	}

	out, err := os.Create(s.frameFileName("pgm"))
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := fmt.Fprintf(out, "P5\n%d %d\n255\n", info.Width, info.Height); err != nil {
		return err
	}
	_, err = out.Write(gray)
	return err
}

// frameFileName numbers per-frame files with the running written count.
func (s *Sink) frameFileName(ext string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s_%06d.%s", s.path, s.framesWritten, ext)
}
