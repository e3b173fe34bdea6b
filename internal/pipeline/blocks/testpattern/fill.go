package testpattern

import (
	"math/rand"

	"github.com/jmylchreest/vidpipe/internal/frame"
)

const (
	checkerSize   = 32
	movingBoxSize = 64
)

// barColors are the eight standard colour-bar values, full intensity,
// left to right.
var barColors = [8][3]uint8{
	{255, 255, 255}, // white
	{255, 255, 0},   // yellow
	{0, 255, 255},   // cyan
	{0, 255, 0},     // green
	{255, 0, 255},   // magenta
	{255, 0, 0},     // red
	{0, 0, 255},     // blue
	{0, 0, 0},       // black
}

// pixelWriter returns a function that stores one RGB pixel into data in the
// frame's pixel format. Formats without a direct RGB layout store the BT.601
// luma byte into the leading luma region.
func pixelWriter(info frame.Info, data []byte) func(x, y int, r, g, b uint8) {
	w := info.Width
	switch info.PixelFormat {
	case frame.FormatRGB24:
		return func(x, y int, r, g, b uint8) {
			i := (y*w + x) * 3
			data[i] = r
			data[i+1] = g
			data[i+2] = b
		}
	case frame.FormatBGR24:
		return func(x, y int, r, g, b uint8) {
			i := (y*w + x) * 3
			data[i] = b
			data[i+1] = g
			data[i+2] = r
		}
	case frame.FormatRGBA32:
		return func(x, y int, r, g, b uint8) {
			i := (y*w + x) * 4
			data[i] = r
			data[i+1] = g
			data[i+2] = b
			data[i+3] = 255
		}
	case frame.FormatBGRA32:
		return func(x, y int, r, g, b uint8) {
			i := (y*w + x) * 4
			data[i] = b
			data[i+1] = g
			data[i+2] = r
			data[i+3] = 255
		}
	default:
		return func(x, y int, r, g, b uint8) {
			data[y*w+x] = rec601Luma(r, g, b)
		}
	}
}

func fillSolid(data []byte, info frame.Info, r, g, b uint8) {
	switch info.PixelFormat {
	case frame.FormatRGB24, frame.FormatBGR24, frame.FormatRGBA32, frame.FormatBGRA32:
		put := pixelWriter(info, data)
		for y := 0; y < info.Height; y++ {
			for x := 0; x < info.Width; x++ {
				put(x, y, r, g, b)
			}
		}
	default:
		gray := rec601Luma(r, g, b)
		for i := range data {
			data[i] = gray
		}
	}
}

func fillBars(data []byte, info frame.Info) {
	put := pixelWriter(info, data)
	barWidth := info.Width / 8
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			bar := x / barWidth
			if bar > 7 {
				bar = 7
			}
			c := barColors[bar]
			put(x, y, c[0], c[1], c[2])
		}
	}
}

func fillCheckerboard(data []byte, info frame.Info) {
	put := pixelWriter(info, data)
	for y := 0; y < info.Height; y++ {
		for x := 0; x < info.Width; x++ {
			var v uint8
			if ((x/checkerSize)+(y/checkerSize))%2 == 0 {
				v = 255
			}
			put(x, y, v, v, v)
		}
	}
}

func fillGradient(data []byte, info frame.Info) {
	put := pixelWriter(info, data)
	w, h := info.Width, info.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(x * 255 / w)
			g := uint8(y * 255 / h)
			b := uint8((x + y) * 255 / (w + h))
			put(x, y, r, g, b)
		}
	}
}

func fillNoise(data []byte, rng *rand.Rand) {
	rng.Read(data)
}

// fillMovingBox clears the frame and draws a coloured box whose position
// advances with the frame counter: across the top edge, then down the right
// edge, wrapping.
func fillMovingBox(data []byte, info frame.Info, r, g, b uint8, counter uint64) {
	for i := range data {
		data[i] = 0
	}

	w, h := info.Width, info.Height
	period := w + h
	pos := int(counter % uint64(period))

	var boxX, boxY int
	if pos < w {
		boxX, boxY = pos, 0
	} else {
		boxX, boxY = w-movingBoxSize, pos-w
	}
	if boxX > w-movingBoxSize {
		boxX = w - movingBoxSize
	}
	if boxY > h-movingBoxSize {
		boxY = h - movingBoxSize
	}
	if boxX < 0 {
		boxX = 0
	}
	if boxY < 0 {
		boxY = 0
	}

	put := pixelWriter(info, data)
	for y := boxY; y < boxY+movingBoxSize && y < h; y++ {
		for x := boxX; x < boxX+movingBoxSize && x < w; x++ {
			put(x, y, r, g, b)
		}
	}
}
