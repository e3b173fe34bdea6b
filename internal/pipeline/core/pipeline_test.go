package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidpipe/internal/frame"
)

// orderRecorder collects the names of blocks as they start and stop.
type orderRecorder struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (r *orderRecorder) markStarted(name string) {
	r.mu.Lock()
	r.started = append(r.started, name)
	r.mu.Unlock()
}

func (r *orderRecorder) markStopped(name string) {
	r.mu.Lock()
	r.stopped = append(r.stopped, name)
	r.mu.Unlock()
}

type recordingSource struct {
	testSource
	rec *orderRecorder
}

func (s *recordingSource) Start() error {
	s.rec.markStarted(s.Name())
	return s.testSource.Start()
}

func (s *recordingSource) Stop() error {
	s.rec.markStopped(s.Name())
	return s.testSource.Stop()
}

type recordingSink struct {
	testSink
	rec *orderRecorder
}

func (s *recordingSink) Start() error {
	s.rec.markStarted(s.Name())
	return s.testSink.Start()
}

func (s *recordingSink) Stop() error {
	s.rec.markStopped(s.Name())
	return s.testSink.Stop()
}

type recordingPlain struct {
	testBlock
	rec *orderRecorder
}

func (b *recordingPlain) Start() error {
	b.rec.markStarted(b.Name())
	return b.testBlock.Start()
}

func (b *recordingPlain) Stop() error {
	b.rec.markStopped(b.Name())
	return b.testBlock.Stop()
}

func newTestRegistry(t *testing.T, rec *orderRecorder) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, r.Register("test-source", func() Block {
		return &recordingSource{testSource: *newTestSource(""), rec: rec}
	}))
	require.NoError(t, r.Register("test-sink", func() Block {
		return &recordingSink{testSink: *newTestSink(""), rec: rec}
	}))
	require.NoError(t, r.Register("test-plain", func() Block {
		return &recordingPlain{testBlock: *newTestBlock("", "test-plain"), rec: rec}
	}))
	return r
}

func pipelineConfig() Config {
	return Config{
		Name: "unit",
		Blocks: []BlockDef{
			{Name: "src", Type: "test-source", Parameters: Params{"fps": "30"}},
			{Name: "mid", Type: "test-plain"},
			{Name: "out", Type: "test-sink"},
		},
		Connections: []Connection{
			{SourceBlock: "src", SinkBlock: "out"},
		},
	}
}

func TestPipelineInitialize(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	assert.Equal(t, "unit", p.Name())
	assert.Equal(t, []string{"src", "mid", "out"}, p.BlockNames())
	assert.NotEmpty(t, p.RunID())

	src := p.Block("src")
	require.NotNil(t, src)
	assert.Equal(t, StateInitialized, src.State())
	assert.Equal(t, "30", src.Parameter("fps"))
}

func TestPipelineInitializeUnknownType(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	cfg := pipelineConfig()
	cfg.Blocks[1].Type = "no-such-type"

	err := p.Initialize(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "mid")
	assert.Nil(t, p.Block("src"), "failed initialize clears blocks")
	assert.Equal(t, err, p.LastError())
}

func TestPipelineInitializeInvalidConfig(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	cfg := pipelineConfig()
	cfg.Blocks[0].Name = ""
	assert.ErrorIs(t, p.Initialize(cfg), ErrInvalidArgument)
}

func TestPipelineInitializeRejectedWhileRunning(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	require.NoError(t, p.Start())
	defer p.Shutdown()

	assert.ErrorIs(t, p.Initialize(pipelineConfig()), ErrPipelineRunning)
}

func TestPipelineStartOrderSinksFirst(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())

	assert.Equal(t, []string{"out", "mid", "src"}, rec.started)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Equal(t, []string{"src", "mid", "out"}, rec.stopped)
}

func TestPipelineStartWithoutInitialize(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)
	assert.ErrorIs(t, p.Start(), ErrInvalidState)
}

func TestPipelineStartIsIdempotentWhileRunning(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	require.NoError(t, p.Start())
	require.NoError(t, p.Start())
	assert.Len(t, rec.started, 3, "second start must not restart blocks")
	require.NoError(t, p.Shutdown())
}

func TestPipelineStartFailureNamesBlock(t *testing.T) {
	rec := &orderRecorder{}
	r := newTestRegistry(t, rec)
	boom := errors.New("device busy")
	require.NoError(t, r.Register("failing-sink", func() Block {
		s := newTestSink("")
		s.failStart = boom
		return s
	}))

	p := NewPipeline(r, nil)
	cfg := pipelineConfig()
	cfg.Blocks[2].Type = "failing-sink"

	require.NoError(t, p.Initialize(cfg))
	err := p.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "out")
	assert.False(t, p.IsRunning())
}

func TestPipelineConnectionDeliversFrames(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))

	src, ok := p.Block("src").(*recordingSource)
	require.True(t, ok)
	sink, ok := p.Block("out").(*recordingSink)
	require.True(t, ok)

	f, err := frame.New(frame.Info{Width: 64, Height: 48, PixelFormat: frame.FormatRGB24})
	require.NoError(t, err)
	defer f.Release()

	src.emit(f)
	assert.Equal(t, 1, sink.submittedCount())
}

func TestPipelineConnectionPropagatesFormat(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))

	sink, ok := p.Block("out").(*recordingSink)
	require.True(t, ok)
	got := sink.InputFormat()
	assert.Equal(t, 64, got.Width)
	assert.Equal(t, 48, got.Height)
	assert.Equal(t, frame.FormatRGB24, got.PixelFormat)
}

func TestPipelineConnectionRejectsNonSourceEndpoint(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	cfg := pipelineConfig()
	cfg.Connections = []Connection{{SourceBlock: "mid", SinkBlock: "out"}}

	err := p.Initialize(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "mid")
}

func TestPipelineShutdownClearsBlocks(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	require.NoError(t, p.Start())
	require.NoError(t, p.Shutdown())

	assert.False(t, p.IsRunning())
	assert.Nil(t, p.Block("src"))
	assert.Empty(t, p.BlockNames())
}

func TestPipelineRestartAfterStop(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	require.NoError(t, p.Start())
	require.NoError(t, p.Stop())
	require.NoError(t, p.Start())
	assert.True(t, p.IsRunning())
	require.NoError(t, p.Shutdown())
}

func TestPipelineAllStats(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))

	src := p.Block("src").(*recordingSource)
	src.UpdateFrameStats(100)
	src.UpdateFrameStats(100)

	stats := p.AllStats()
	require.Len(t, stats, 3)
	assert.Equal(t, uint64(2), stats["src"].FramesProcessed)
	assert.Equal(t, uint64(200), stats["src"].BytesProcessed)

	p.ResetAllStats()
	assert.Zero(t, p.AllStats()["src"].FramesProcessed)
}

func TestPipelineBlockErrorForwarded(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))

	var mu sync.Mutex
	var got error
	p.SetErrorCallback(func(b Block, err error) {
		mu.Lock()
		got = err
		mu.Unlock()
	})

	cause := errors.New("frame write failed")
	src := p.Block("src").(*recordingSource)
	src.RecordError(src, cause)

	mu.Lock()
	assert.Equal(t, cause, got)
	mu.Unlock()

	var be *BlockError
	require.ErrorAs(t, p.LastError(), &be)
	assert.Equal(t, "src", be.Block)
}

func TestPipelineStatus(t *testing.T) {
	rec := &orderRecorder{}
	p := NewPipeline(newTestRegistry(t, rec), nil)

	require.NoError(t, p.Initialize(pipelineConfig()))
	assert.Contains(t, p.Status(), "stopped")

	require.NoError(t, p.Start())
	assert.Contains(t, p.Status(), "running")
	require.NoError(t, p.Shutdown())
}
