package shared

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// Queue depth bounds for sinks.
const (
	MinQueueDepth     = 1
	MaxQueueDepth     = 1000
	DefaultQueueDepth = 10
)

// Processor is the per-frame hook a concrete sink provides. The worker
// goroutine calls Process once per dequeued frame; the frame is valid only
// for the duration of the call.
type Processor interface {
	core.Block
	Process(f *frame.Frame) error
}

// BaseSink implements the consumer half of a pipeline edge: a bounded FIFO
// of frame handles fed by Submit and drained by a single worker goroutine.
// A full queue either blocks the producer or evicts the oldest frame,
// depending on the blocking setting.
//
// Concrete sinks embed BaseSink, call BindProcessor(self) at construction,
// and bracket their Start and Stop with StartWorker and StopWorker.
type BaseSink struct {
	core.BaseBlock

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	queue    []*frame.Frame
	maxDepth int
	blocking bool
	stopping bool

	format  frame.Info
	formats []frame.PixelFormat

	proc Processor
	wg   sync.WaitGroup
}

// NewBaseSink creates a BaseSink with the default queue depth and blocking
// submits.
func NewBaseSink(name, typ string) BaseSink {
	return BaseSink{
		BaseBlock: core.NewBaseBlock(name, typ),
		maxDepth:  DefaultQueueDepth,
		blocking:  true,
	}
}

// BindProcessor attaches the concrete sink. Must be called before
// StartWorker; typically from the concrete constructor with itself.
func (s *BaseSink) BindProcessor(p Processor) {
	s.mu.Lock()
	s.proc = p
	s.mu.Unlock()
}

// The condition variables hold a pointer to the mutex, so they are created
// lazily after the embedding struct has reached its final address rather
// than inside NewBaseSink, whose result is copied.
func (s *BaseSink) ensureCondsLocked() {
	if s.notEmpty == nil {
		s.notEmpty = sync.NewCond(&s.mu)
		s.notFull = sync.NewCond(&s.mu)
	}
}

// InputFormat returns the negotiated input format.
func (s *BaseSink) InputFormat() frame.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetInputFormat records the format of incoming frames.
func (s *BaseSink) SetInputFormat(info frame.Info) error {
	s.mu.Lock()
	s.format = info
	s.mu.Unlock()
	return nil
}

// QueueDepth returns the number of frames currently queued.
func (s *BaseSink) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats reports the block counters with the live queue depth folded in.
func (s *BaseSink) Stats() core.Stats {
	st := s.BaseBlock.Stats()
	st.QueueDepth = s.QueueDepth()
	return st
}

// MaxQueueDepth returns the queue capacity.
func (s *BaseSink) MaxQueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxDepth
}

// SetMaxQueueDepth sets the queue capacity within [MinQueueDepth,
// MaxQueueDepth].
func (s *BaseSink) SetMaxQueueDepth(n int) error {
	if n < MinQueueDepth || n > MaxQueueDepth {
		return fmt.Errorf("queue depth %d out of range [%d, %d]: %w",
			n, MinQueueDepth, MaxQueueDepth, core.ErrInvalidArgument)
	}
	s.mu.Lock()
	s.maxDepth = n
	s.mu.Unlock()
	return nil
}

// Blocking reports whether a full queue blocks Submit.
func (s *BaseSink) Blocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking
}

// SetBlocking selects between blocking submits and drop-oldest eviction.
func (s *BaseSink) SetBlocking(blocking bool) {
	s.mu.Lock()
	s.blocking = blocking
	s.mu.Unlock()
}

// SetSupportedFormats records the pixel formats the concrete sink accepts.
func (s *BaseSink) SetSupportedFormats(formats []frame.PixelFormat) {
	s.mu.Lock()
	s.formats = append([]frame.PixelFormat(nil), formats...)
	s.mu.Unlock()
}

// SupportsFormat reports whether the sink accepts the given format. A sink
// that never declared a format list accepts everything.
func (s *BaseSink) SupportsFormat(format frame.PixelFormat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.formats) == 0 {
		return true
	}
	for _, f := range s.formats {
		if f == format {
			return true
		}
	}
	return false
}

// SupportedFormats returns the accepted pixel formats.
func (s *BaseSink) SupportedFormats() []frame.PixelFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.PixelFormat(nil), s.formats...)
}

// ApplyParams interprets the common sink parameters: queue_depth and
// blocking. Unknown keys are left for the concrete sink.
func (s *BaseSink) ApplyParams(params core.Params) error {
	if v, ok := params["queue_depth"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("queue_depth %q: %w", v, core.ErrInvalidArgument)
		}
		if err := s.SetMaxQueueDepth(n); err != nil {
			return err
		}
	}
	if v, ok := params["blocking"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("blocking %q: %w", v, core.ErrInvalidArgument)
		}
		s.SetBlocking(b)
	}
	return nil
}

// Submit enqueues a frame for the worker. It takes an additional reference
// on success; the caller keeps its own. Returns false without enqueueing
// when the sink is not running or when a blocking wait is interrupted by
// stop. With blocking disabled, a full queue evicts its oldest frame, which
// is released and counted dropped.
func (s *BaseSink) Submit(f *frame.Frame) bool {
	if f == nil {
		return false
	}
	if s.State() != core.StateRunning {
		return false
	}

	var evicted *frame.Frame

	s.mu.Lock()
	s.ensureCondsLocked()

	if len(s.queue) >= s.maxDepth {
		if s.blocking {
			for len(s.queue) >= s.maxDepth && !s.stopping {
				s.notFull.Wait()
			}
			if s.stopping {
				s.mu.Unlock()
				return false
			}
		} else {
			evicted = s.queue[0]
			s.queue = s.queue[1:]
		}
	}

	f.AddRef()
	s.queue = append(s.queue, f)
	s.notEmpty.Signal()
	s.mu.Unlock()

	if evicted != nil {
		evicted.Release()
		s.MarkDropped()
	}
	return true
}

// StartWorker clears the stop flag and launches the worker goroutine.
// Concrete sinks call it from Start after their own resources are ready.
func (s *BaseSink) StartWorker() {
	s.mu.Lock()
	s.ensureCondsLocked()
	s.stopping = false
	if s.queue == nil {
		s.queue = make([]*frame.Frame, 0, s.maxDepth)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.worker()
}

// StopWorker sets the stop flag, wakes both waits, joins the worker, and
// drains the queue. Drained frames are released and counted dropped, so
// after shutdown every submitted frame has been either processed or
// dropped.
func (s *BaseSink) StopWorker() {
	s.mu.Lock()
	s.ensureCondsLocked()
	s.stopping = true
	s.notEmpty.Broadcast()
	s.notFull.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	remaining := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, f := range remaining {
		f.Release()
		s.MarkDropped()
	}
}

func (s *BaseSink) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopping {
			s.notEmpty.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		f := s.queue[0]
		s.queue = s.queue[1:]
		s.notFull.Signal()
		s.mu.Unlock()

		s.processOne(f)
	}
}

func (s *BaseSink) processOne(f *frame.Frame) {
	size := f.Size()
	err := s.callProcess(f)
	f.Release()
	if err != nil {
		s.MarkDropped()
		s.mu.Lock()
		self := s.proc
		s.mu.Unlock()
		if self != nil {
			s.RecordError(self, err)
		}
	} else {
		s.UpdateFrameStats(size)
	}
}

// callProcess invokes the hook with panic containment: a panicking
// processor drops the frame and reports an error, it never kills the
// worker.
func (s *BaseSink) callProcess(f *frame.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("process panic: %v", r)
		}
	}()

	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	return proc.Process(f)
}
