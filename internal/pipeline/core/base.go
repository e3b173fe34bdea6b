package core

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/jmylchreest/vidpipe/internal/timing"
)

// latencyAlpha is the smoothing factor of the inter-frame latency EMA.
const latencyAlpha = 0.1

// BaseBlock implements the bookkeeping shared by every block: identity,
// lifecycle state, parameters, statistics, and error reporting. Source and
// sink bases embed it and layer their own behaviour on top.
//
// The atomic state is read lock-free on fast paths; everything else is
// guarded by a single per-block mutex.
type BaseBlock struct {
	id   string
	typ  string
	name atomic.Value // string

	state atomic.Int32

	mu           sync.Mutex
	params       Params
	lastErr      error
	lastReported string
	errCb        ErrorCallback

	framesProcessed uint64
	framesDropped   uint64
	bytesProcessed  uint64
	lastFrameUS     uint64
	latencyEMA      float64
	latencySeeded   bool
	rate            *timing.FrameRateCalculator

	logger *slog.Logger
}

// NewBaseBlock creates a BaseBlock with the given name and type.
func NewBaseBlock(name, typ string) BaseBlock {
	b := BaseBlock{
		id:     uuid.NewString(),
		typ:    typ,
		params: make(Params),
		rate:   timing.NewFrameRateCalculator(timing.DefaultFrameRateWindow),
		logger: slog.Default(),
	}
	b.name.Store(name)
	return b
}

// ID returns the unique identifier of this block instance. Names can be
// reused across pipelines; IDs cannot.
func (b *BaseBlock) ID() string { return b.id }

// Name returns the block instance name.
func (b *BaseBlock) Name() string {
	return b.name.Load().(string)
}

// SetName replaces the block instance name.
func (b *BaseBlock) SetName(name string) {
	b.name.Store(name)
}

// Type returns the registered block type.
func (b *BaseBlock) Type() string { return b.typ }

// State returns the current lifecycle state.
func (b *BaseBlock) State() State {
	return State(b.state.Load())
}

// SetState moves the block to the given state.
func (b *BaseBlock) SetState(s State) {
	b.state.Store(int32(s))
}

// SetLogger replaces the block's logger. A nil logger resets to the default.
func (b *BaseBlock) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Logger returns the block's logger.
func (b *BaseBlock) Logger() *slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

// SetErrorCallback registers the callback fired on block errors.
func (b *BaseBlock) SetErrorCallback(cb ErrorCallback) {
	b.mu.Lock()
	b.errCb = cb
	b.mu.Unlock()
}

// LastError returns the most recent error recorded by the block.
func (b *BaseBlock) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// RecordError records a per-frame error without leaving the current state.
// The error callback fires once per distinct error message. The self
// argument lets embedding blocks pass themselves so callbacks see the
// concrete block, not the base.
func (b *BaseBlock) RecordError(self Block, err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.lastErr = err
	cb := b.errCb
	fire := err.Error() != b.lastReported
	if fire {
		b.lastReported = err.Error()
	}
	b.mu.Unlock()

	if fire && cb != nil {
		cb(self, err)
	}
}

// Fail records a lifecycle error and transitions the block to StateError.
func (b *BaseBlock) Fail(self Block, err error) error {
	b.SetState(StateError)
	b.RecordError(self, err)
	return err
}

// EnsureState verifies the block is in one of the allowed states, returning
// an ErrInvalidState error naming the operation otherwise.
func (b *BaseBlock) EnsureState(op string, allowed ...State) error {
	current := b.State()
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return fmt.Errorf("%s in state %s: %w", op, current, ErrInvalidState)
}

// StoreParams merges params into the stored parameter set; keys absent from
// params keep their values. Used by Initialize.
func (b *BaseBlock) StoreParams(params Params) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.params == nil {
		b.params = make(Params)
	}
	for k, v := range params {
		b.params[k] = v
	}
}

// SetParameter stores a single parameter. Rejected while the block is
// running: parameters feed formats and threading, and those cannot change
// under a live pipeline.
func (b *BaseBlock) SetParameter(key, value string) error {
	if b.State() == StateRunning {
		return fmt.Errorf("set parameter %q while running: %w", key, ErrInvalidState)
	}
	b.mu.Lock()
	b.params[key] = value
	b.mu.Unlock()
	return nil
}

// Parameter returns the value for key, or "" if unset.
func (b *BaseBlock) Parameter(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params[key]
}

// Configuration returns a copy of the full parameter set.
func (b *BaseBlock) Configuration() Params {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params.Clone()
}

// UpdateFrameStats records a successfully handled frame of the given size.
func (b *BaseBlock) UpdateFrameStats(bytes int) {
	now := timing.NowUS()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.framesProcessed++
	b.bytesProcessed += uint64(bytes)
	b.rate.AddFrame(now)

	if b.lastFrameUS != 0 {
		dtMS := float64(now-b.lastFrameUS) / 1e3
		if b.latencySeeded {
			b.latencyEMA = (1-latencyAlpha)*b.latencyEMA + latencyAlpha*dtMS
		} else {
			b.latencyEMA = dtMS
			b.latencySeeded = true
		}
	}
	b.lastFrameUS = now
}

// MarkDropped records a dropped frame.
func (b *BaseBlock) MarkDropped() {
	b.mu.Lock()
	b.framesDropped++
	b.mu.Unlock()
}

// Stats returns a copy of the block's counters.
func (b *BaseBlock) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		FramesProcessed: b.framesProcessed,
		FramesDropped:   b.framesDropped,
		BytesProcessed:  b.bytesProcessed,
		AvgFPS:          b.rate.Rate(),
		AvgLatencyMS:    b.latencyEMA,
		LastFrameTimeUS: b.lastFrameUS,
	}
}

// ResetStats clears all counters.
func (b *BaseBlock) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framesProcessed = 0
	b.framesDropped = 0
	b.bytesProcessed = 0
	b.lastFrameUS = 0
	b.latencyEMA = 0
	b.latencySeeded = false
	b.rate.Reset()
}

// FramesProcessed returns the processed-frame counter.
func (b *BaseBlock) FramesProcessed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.framesProcessed
}
