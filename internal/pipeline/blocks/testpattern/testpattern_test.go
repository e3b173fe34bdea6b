package testpattern

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidpipe/internal/frame"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

func TestParsePattern(t *testing.T) {
	for name, want := range map[string]Pattern{
		"solid":        PatternSolid,
		"bars":         PatternBars,
		"checkerboard": PatternCheckerboard,
		"gradient":     PatternGradient,
		"noise":        PatternNoise,
		"moving_box":   PatternMovingBox,
	} {
		p, err := ParsePattern(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p)
		assert.Equal(t, name, p.String())
	}

	_, err := ParsePattern("plasma")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestParseColor(t *testing.T) {
	r, g, b, err := parseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{255, 128, 0}, [3]uint8{r, g, b})

	r, g, b, err = parseColor("10, 20, 30")
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})

	for _, bad := range []string{"#ff80", "#gg0000", "1,2", "1,2,300", "red"} {
		_, _, _, err := parseColor(bad)
		assert.ErrorIs(t, err, core.ErrInvalidArgument, bad)
	}
}

func rgbAt(data []byte, info frame.Info, x, y int) (uint8, uint8, uint8) {
	i := (y*info.Width + x) * 3
	return data[i], data[i+1], data[i+2]
}

func TestFillSolid(t *testing.T) {
	info := frame.Info{Width: 16, Height: 8, PixelFormat: frame.FormatRGB24}
	data := make([]byte, info.FrameSize())
	fillSolid(data, info, 10, 20, 30)

	r, g, b := rgbAt(data, info, 0, 0)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
	r, g, b = rgbAt(data, info, 15, 7)
	assert.Equal(t, [3]uint8{10, 20, 30}, [3]uint8{r, g, b})
}

func TestFillSolidGrayFallback(t *testing.T) {
	info := frame.Info{Width: 16, Height: 8, PixelFormat: frame.FormatYUV420P}
	data := make([]byte, info.FrameSize())
	fillSolid(data, info, 255, 255, 255)

	for i, v := range data {
		require.Equal(t, uint8(255), v, "byte %d", i)
	}
}

func TestFillBars(t *testing.T) {
	info := frame.Info{Width: 80, Height: 4, PixelFormat: frame.FormatRGB24}
	data := make([]byte, info.FrameSize())
	fillBars(data, info)

	// Bar width is 10; sample the middle of each bar.
	for bar := 0; bar < 8; bar++ {
		r, g, b := rgbAt(data, info, bar*10+5, 2)
		assert.Equal(t, barColors[bar], [3]uint8{r, g, b}, "bar %d", bar)
	}
}

func TestFillBarsBGROrder(t *testing.T) {
	info := frame.Info{Width: 80, Height: 2, PixelFormat: frame.FormatBGR24}
	data := make([]byte, info.FrameSize())
	fillBars(data, info)

	// Second bar is yellow (255,255,0); BGR stores it as 0,255,255.
	i := (0*80 + 15) * 3
	assert.Equal(t, []byte{0, 255, 255}, data[i:i+3])
}

func TestFillCheckerboard(t *testing.T) {
	info := frame.Info{Width: 128, Height: 128, PixelFormat: frame.FormatRGB24}
	data := make([]byte, info.FrameSize())
	fillCheckerboard(data, info)

	r, _, _ := rgbAt(data, info, 0, 0)
	assert.Equal(t, uint8(255), r)
	r, _, _ = rgbAt(data, info, checkerSize, 0)
	assert.Equal(t, uint8(0), r)
	r, _, _ = rgbAt(data, info, checkerSize, checkerSize)
	assert.Equal(t, uint8(255), r)
}

func TestFillGradientCorners(t *testing.T) {
	info := frame.Info{Width: 256, Height: 256, PixelFormat: frame.FormatRGB24}
	data := make([]byte, info.FrameSize())
	fillGradient(data, info)

	r, g, _ := rgbAt(data, info, 0, 0)
	assert.Equal(t, uint8(0), r)
	assert.Equal(t, uint8(0), g)

	r, g, _ = rgbAt(data, info, 255, 0)
	assert.Equal(t, uint8(254), r)
	assert.Equal(t, uint8(0), g)

	_, g, _ = rgbAt(data, info, 0, 255)
	assert.Equal(t, uint8(254), g)
}

func TestFillMovingBoxStartsTopLeft(t *testing.T) {
	info := frame.Info{Width: 320, Height: 240, PixelFormat: frame.FormatRGB24}
	data := make([]byte, info.FrameSize())
	fillMovingBox(data, info, 200, 100, 50, 0)

	r, g, b := rgbAt(data, info, 0, 0)
	assert.Equal(t, [3]uint8{200, 100, 50}, [3]uint8{r, g, b})

	// Outside the box the frame is black.
	r, g, b = rgbAt(data, info, movingBoxSize+10, movingBoxSize+10)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
}

func TestFillMovingBoxAdvances(t *testing.T) {
	info := frame.Info{Width: 320, Height: 240, PixelFormat: frame.FormatRGB24}
	a := make([]byte, info.FrameSize())
	b := make([]byte, info.FrameSize())
	fillMovingBox(a, info, 255, 255, 255, 0)
	fillMovingBox(b, info, 255, 255, 255, 100)
	assert.NotEqual(t, a, b)
}

func TestRec601Luma(t *testing.T) {
	assert.Equal(t, uint8(255), rec601Luma(255, 255, 255))
	assert.Equal(t, uint8(0), rec601Luma(0, 0, 0))
	assert.Equal(t, uint8(76), rec601Luma(255, 0, 0))
	assert.Equal(t, uint8(149), rec601Luma(0, 255, 0))
	assert.Equal(t, uint8(29), rec601Luma(0, 0, 255))
}

func TestSourceInitializeParams(t *testing.T) {
	s := New()
	err := s.Initialize(core.Params{
		"width":   "160",
		"height":  "120",
		"fps":     "15",
		"pattern": "gradient",
		"color":   "#102030",
	})
	require.NoError(t, err)

	assert.Equal(t, core.StateInitialized, s.State())
	assert.Equal(t, PatternGradient, s.Pattern())
	r, g, b := s.Color()
	assert.Equal(t, [3]uint8{0x10, 0x20, 0x30}, [3]uint8{r, g, b})

	info := s.OutputFormat()
	assert.Equal(t, 160, info.Width)
	assert.Equal(t, 120, info.Height)
}

func TestSourceInitializeRejectsBadPattern(t *testing.T) {
	s := New()
	err := s.Initialize(core.Params{"pattern": "plasma"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Equal(t, core.StateError, s.State())
}

func TestSourceInitializeRejectsUnsupportedFormat(t *testing.T) {
	s := New()
	err := s.Initialize(core.Params{"format": "NV12"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestSourceGeneratesFrames(t *testing.T) {
	s := New()
	require.NoError(t, s.Initialize(core.Params{
		"width":   "160",
		"height":  "120",
		"fps":     "60",
		"pattern": "bars",
	}))

	var mu sync.Mutex
	var seqs []uint64
	s.SetFrameCallback(func(f *frame.Frame) {
		mu.Lock()
		seqs = append(seqs, f.Info().SequenceNumber)
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	assert.Equal(t, core.StateRunning, s.State())
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seqs)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestSourceRestartResetsSequence(t *testing.T) {
	s := New()
	require.NoError(t, s.Initialize(core.Params{"fps": "0", "width": "32", "height": "32"}))

	var mu sync.Mutex
	var first uint64
	got := make(chan struct{}, 1)
	s.SetFrameCallback(func(f *frame.Frame) {
		mu.Lock()
		if first == 0 {
			first = f.Info().SequenceNumber
			select {
			case got <- struct{}{}:
			default:
			}
		}
		mu.Unlock()
	})

	require.NoError(t, s.Start())
	<-got
	require.NoError(t, s.Stop())

	mu.Lock()
	first = 0
	mu.Unlock()

	require.NoError(t, s.Start())
	<-got
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(1), first)
}

func TestSourceShutdown(t *testing.T) {
	s := New()
	require.NoError(t, s.Initialize(core.Params{"width": "32", "height": "32"}))
	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown())
	assert.Equal(t, core.StateUninitialized, s.State())
}

func TestFramePoolRecycles(t *testing.T) {
	info := frame.Info{Width: 4, Height: 4, PixelFormat: frame.FormatRGB24}
	p := newFramePool(info.FrameSize(), 2)

	f := p.get(info)
	data := f.Data()
	f.Release()

	g := p.get(info)
	assert.Same(t, &data[0], &g.Data()[0], "released buffer should be reused")
	g.Release()
}
