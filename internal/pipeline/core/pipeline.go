package core

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vidpipe/internal/frame"
)

// Pipeline owns a set of block instances built from a Config and drives them
// through a uniform lifecycle. Startup runs sinks first and sources last so
// that consumers are ready before producers emit; shutdown runs in the exact
// reverse order so that sink queues drain (releasing any zero-copy buffers)
// while their producers are still alive.
type Pipeline struct {
	registry *Registry
	logger   *slog.Logger
	runID    ulid.ULID

	mu      sync.Mutex
	config  Config
	blocks  map[string]Block
	order   []string
	lastErr error
	errCb   ErrorCallback

	running atomic.Bool
}

// NewPipeline creates an empty pipeline backed by the given registry.
func NewPipeline(registry *Registry, logger *slog.Logger) *Pipeline {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry: registry,
		logger:   logger,
		runID:    ulid.MustNew(ulid.Now(), rand.New(rand.NewSource(int64(ulid.Now())))),
		blocks:   make(map[string]Block),
	}
}

// RunID identifies this pipeline instance in logs and API responses.
func (p *Pipeline) RunID() string { return p.runID.String() }

// SetErrorCallback registers the aggregate error callback attached to every
// block. The default handler logs and records the error; it never restarts
// blocks.
func (p *Pipeline) SetErrorCallback(cb ErrorCallback) {
	p.mu.Lock()
	p.errCb = cb
	p.mu.Unlock()
}

// Initialize builds the pipeline from cfg: create every block through the
// registry, configure and initialize each one, then connect the edges.
// Any failure aborts, clears the block map, and is recorded as the last
// error with the offending block named.
func (p *Pipeline) Initialize(cfg Config) error {
	if p.running.Load() {
		return p.setErr(fmt.Errorf("initialize: %w", ErrPipelineRunning))
	}
	if err := cfg.Validate(); err != nil {
		return p.setErr(fmt.Errorf("validating config %q: %w", cfg.Name, err))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.config = cfg
	p.blocks = make(map[string]Block, len(cfg.Blocks))
	p.order = p.order[:0]

	p.logger.Info("initializing pipeline",
		slog.String("pipeline", cfg.Name),
		slog.String("run_id", p.runID.String()),
		slog.Int("block_count", len(cfg.Blocks)),
		slog.Int("connection_count", len(cfg.Connections)),
	)

	if err := p.createBlocksLocked(); err != nil {
		p.blocks = make(map[string]Block)
		p.lastErr = err
		return err
	}
	if err := p.configureBlocksLocked(); err != nil {
		p.blocks = make(map[string]Block)
		p.lastErr = err
		return err
	}
	if err := p.connectBlocksLocked(); err != nil {
		p.blocks = make(map[string]Block)
		p.lastErr = err
		return err
	}

	p.logger.Info("pipeline initialized", slog.String("pipeline", cfg.Name))
	return nil
}

func (p *Pipeline) createBlocksLocked() error {
	for _, def := range p.config.Blocks {
		b, err := p.registry.CreateNamed(def.Type, def.Name)
		if err != nil {
			return fmt.Errorf("creating block %q: %w", def.Name, err)
		}
		b.SetErrorCallback(p.onBlockError)
		p.blocks[def.Name] = b
		p.order = append(p.order, def.Name)
	}
	return nil
}

func (p *Pipeline) configureBlocksLocked() error {
	for _, def := range p.config.Blocks {
		b := p.blocks[def.Name]
		for key, value := range def.Parameters {
			if err := b.SetParameter(key, value); err != nil {
				return fmt.Errorf("configuring block %q: parameter %q: %w", def.Name, key, err)
			}
		}
		// p.mu is released around the call: a failing block reports through
		// onBlockError, which takes p.mu itself.
		p.mu.Unlock()
		err := b.Initialize(def.Parameters)
		p.mu.Lock()
		if err != nil {
			return fmt.Errorf("initializing block %q: %w", def.Name, err)
		}
	}
	return nil
}

func (p *Pipeline) connectBlocksLocked() error {
	for i := range p.config.Connections {
		conn := &p.config.Connections[i]
		conn.ApplyDefaults()

		src, ok := p.blocks[conn.SourceBlock].(Source)
		if !ok {
			return fmt.Errorf("connection %s: block %q is not a source: %w", conn, conn.SourceBlock, ErrInvalidArgument)
		}
		sink, ok := p.blocks[conn.SinkBlock].(Sink)
		if !ok {
			return fmt.Errorf("connection %s: block %q is not a sink: %w", conn, conn.SinkBlock, ErrInvalidArgument)
		}

		output := src.OutputFormat()
		if sink.SupportsFormat(output.PixelFormat) {
			if err := sink.SetInputFormat(output); err != nil {
				return fmt.Errorf("connection %s: setting input format: %w", conn, err)
			}
		} else {
			p.logger.Warn("sink does not support source output format, leaving input format unset",
				slog.String("connection", conn.String()),
				slog.String("format", output.PixelFormat.String()),
			)
		}

		src.SetFrameCallback(func(f *frame.Frame) {
			sink.Submit(f)
		})

		p.logger.Debug("connected blocks", slog.String("connection", conn.String()))
	}
	return nil
}

// Start brings up every block: sinks first, then intermediaries, sources
// last. On the first failure it reports and returns without rolling back the
// blocks already started; the caller is expected to Stop or Shutdown.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}
	if len(p.blocks) == 0 {
		return p.setErrLocked(fmt.Errorf("start: pipeline not initialized: %w", ErrInvalidState))
	}

	p.logger.Info("starting pipeline",
		slog.String("pipeline", p.config.Name),
		slog.String("run_id", p.runID.String()),
	)

	for _, name := range p.startOrderLocked() {
		b := p.blocks[name]
		// p.mu is released around the call: a failing block reports through
		// onBlockError, which takes p.mu itself.
		p.mu.Unlock()
		err := b.Start()
		p.mu.Lock()
		if err != nil {
			return p.setErrLocked(fmt.Errorf("starting block %q: %w", name, err))
		}
		p.logger.Debug("block started",
			slog.String("block", name),
			slog.String("type", b.Type()),
		)
	}

	p.running.Store(true)
	p.logger.Info("pipeline running", slog.String("pipeline", p.config.Name))
	return nil
}

// Stop brings down every block in the reverse of the start order: sources
// first so producers quiesce, sinks last so their queues drain while any
// zero-copy producers are still alive. Each stop is best-effort.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order := p.startOrderLocked()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := p.blocks[name].Stop(); err != nil {
			p.logger.Error("block stop failed",
				slog.String("block", name),
				slog.String("error", err.Error()),
			)
		}
	}

	p.running.Store(false)
	p.logger.Info("pipeline stopped", slog.String("pipeline", p.config.Name))
	return nil
}

// Shutdown stops the pipeline and releases every block.
func (p *Pipeline) Shutdown() error {
	if err := p.Stop(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	order := p.startOrderLocked()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := p.blocks[name].Shutdown(); err != nil {
			p.logger.Error("block shutdown failed",
				slog.String("block", name),
				slog.String("error", err.Error()),
			)
		}
	}

	p.blocks = make(map[string]Block)
	p.order = nil
	p.logger.Info("pipeline shut down", slog.String("pipeline", p.config.Name))
	return nil
}

// IsRunning reports whether Start has completed and Stop has not.
func (p *Pipeline) IsRunning() bool { return p.running.Load() }

// Name returns the configured pipeline name.
func (p *Pipeline) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.Name
}

// LastError returns the most recent pipeline-level error.
func (p *Pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Block returns the named block, or nil.
func (p *Pipeline) Block(name string) Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocks[name]
}

// Blocks returns all block instances in configuration order.
func (p *Pipeline) Blocks() []Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Block, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.blocks[name])
	}
	return out
}

// BlockNames returns the block names in configuration order.
func (p *Pipeline) BlockNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// AllStats returns a snapshot of every block's statistics keyed by name.
func (p *Pipeline) AllStats() map[string]Stats {
	p.mu.Lock()
	blocks := make(map[string]Block, len(p.blocks))
	for name, b := range p.blocks {
		blocks[name] = b
	}
	p.mu.Unlock()

	out := make(map[string]Stats, len(blocks))
	for name, b := range blocks {
		out[name] = b.Stats()
	}
	return out
}

// ResetAllStats clears the counters of every block.
func (p *Pipeline) ResetAllStats() {
	for _, b := range p.Blocks() {
		b.ResetStats()
	}
}

// Status returns a one-line summary of the pipeline state.
func (p *Pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "stopped"
	if p.running.Load() {
		state = "running"
	}
	return fmt.Sprintf("pipeline %q: %s, %d blocks", p.config.Name, state, len(p.blocks))
}

// startOrderLocked classifies blocks into sinks, intermediaries, and sources
// and returns names in start order (consumers before producers).
func (p *Pipeline) startOrderLocked() []string {
	var sinks, others, sources []string
	for _, name := range p.order {
		switch p.blocks[name].(type) {
		case Source:
			sources = append(sources, name)
		case Sink:
			sinks = append(sinks, name)
		default:
			others = append(others, name)
		}
	}
	out := make([]string, 0, len(p.order))
	out = append(out, sinks...)
	out = append(out, others...)
	out = append(out, sources...)
	return out
}

// onBlockError is the aggregate callback attached to every block.
func (p *Pipeline) onBlockError(b Block, err error) {
	p.logger.Error("block error",
		slog.String("block", b.Name()),
		slog.String("type", b.Type()),
		slog.String("error", err.Error()),
	)
	p.mu.Lock()
	p.lastErr = NewBlockError(b.Name(), "runtime", err)
	cb := p.errCb
	p.mu.Unlock()
	if cb != nil {
		cb(b, err)
	}
}

func (p *Pipeline) setErr(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setErrLocked(err)
}

func (p *Pipeline) setErrLocked(err error) error {
	p.lastErr = err
	p.logger.Error("pipeline error", slog.String("error", err.Error()))
	return err
}
