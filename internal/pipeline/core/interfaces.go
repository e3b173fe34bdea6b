package core

import (
	"github.com/jmylchreest/vidpipe/internal/frame"
)

// Params is the string-keyed configuration of a block. Parameters are written
// during the configure pass and read at any time; mutating a parameter while
// the block is running is rejected.
type Params map[string]string

// Clone returns an independent copy of the parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Stats is a point-in-time copy of a block's counters. Reads return copies;
// the live counters stay behind the block's lock.
type Stats struct {
	FramesProcessed uint64
	FramesDropped   uint64
	BytesProcessed  uint64
	AvgFPS          float64
	AvgLatencyMS    float64
	QueueDepth      int
	LastFrameTimeUS uint64
}

// ErrorCallback receives per-block error notifications. It is invoked once
// per distinct error.
type ErrorCallback func(b Block, err error)

// FrameCallback delivers a frame across a pipeline edge. The callback runs
// synchronously on the producer's goroutine; it must hand the frame off
// quickly (typically into a sink queue).
type FrameCallback func(f *frame.Frame)

// Block is a node in the pipeline graph. All lifecycle operations record a
// failure in LastError before returning it, and lifecycle failures transition
// the block to StateError.
type Block interface {
	ID() string
	Name() string
	Type() string
	SetName(name string)

	// Initialize may be called from Uninitialized or Stopped and leaves
	// the block Initialized on success.
	Initialize(params Params) error

	// Start drives Initialized or Stopped through Starting to Running.
	// A block in StateError rejects Start until Shutdown is called.
	Start() error

	// Stop transitions Running through Stopping to Stopped and joins all
	// goroutines the block owns. On a block that is not Running it is a
	// no-op returning nil.
	Stop() error

	// Shutdown stops the block if needed, releases external resources,
	// and returns it to Uninitialized.
	Shutdown() error

	State() State
	Stats() Stats
	ResetStats()

	SetErrorCallback(cb ErrorCallback)
	LastError() error

	Configuration() Params
	SetParameter(key, value string) error
	Parameter(key string) string
}

// Resolution is a width/height pair advertised by a source.
type Resolution struct {
	Width  int
	Height int
}

// Source is a block that produces frames by invoking a delivery callback.
type Source interface {
	Block

	SetFrameCallback(cb FrameCallback)
	OutputFormat() frame.Info
	SetOutputFormat(info frame.Info) error

	FrameRate() float64
	SetFrameRate(fps float64) error

	BufferCount() int
	SetBufferCount(n int) error

	SupportsFormat(format frame.PixelFormat) bool
	SupportedFormats() []frame.PixelFormat
	SupportedResolutions() []Resolution
}

// Sink is a block that consumes frames through a bounded submit queue
// serviced by a worker goroutine.
type Sink interface {
	Block

	// Submit enqueues a frame for processing. It returns false without
	// enqueueing when the sink is not running, when a blocking submit is
	// interrupted by stop, or when the frame is otherwise rejected.
	Submit(f *frame.Frame) bool

	InputFormat() frame.Info
	SetInputFormat(info frame.Info) error

	QueueDepth() int
	MaxQueueDepth() int
	SetMaxQueueDepth(n int) error

	Blocking() bool
	SetBlocking(blocking bool)

	SupportsFormat(format frame.PixelFormat) bool
	SupportedFormats() []frame.PixelFormat
}
