// Package frame provides the reference-counted video frame model used by the
// pipeline. Frames are either heap-allocated or wrap externally owned memory
// (for example a camera DMA mapping); in the latter case a recycler callback
// returns the memory to its producer when the last reference is dropped.
package frame

import "fmt"

// PixelFormat identifies the memory layout of a frame's pixel data.
type PixelFormat int

// Supported pixel formats.
const (
	FormatUnknown PixelFormat = iota
	FormatRGB24
	FormatBGR24
	FormatRGBA32
	FormatBGRA32
	FormatYUV420P
	FormatNV12
	FormatNV21
	FormatYUYV
	FormatUYVY
)

var formatNames = map[PixelFormat]string{
	FormatUnknown: "UNKNOWN",
	FormatRGB24:   "RGB24",
	FormatBGR24:   "BGR24",
	FormatRGBA32:  "RGBA32",
	FormatBGRA32:  "BGRA32",
	FormatYUV420P: "YUV420P",
	FormatNV12:    "NV12",
	FormatNV21:    "NV21",
	FormatYUYV:    "YUYV",
	FormatUYVY:    "UYVY",
}

// String returns the canonical name of the format.
func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParsePixelFormat converts a format name to a PixelFormat.
// Names are case-sensitive and match String() output.
func ParsePixelFormat(name string) (PixelFormat, error) {
	for format, n := range formatNames {
		if n == name {
			return format, nil
		}
	}
	return FormatUnknown, fmt.Errorf("unknown pixel format %q", name)
}

// PlaneCount returns the number of planes for the format.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case FormatYUV420P:
		return 3
	case FormatNV12, FormatNV21:
		return 2
	case FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32, FormatYUYV, FormatUYVY:
		return 1
	default:
		return 0
	}
}

// FrameSize returns the total byte size of a frame with the given dimensions,
// or 0 for unknown formats or empty dimensions.
func (f PixelFormat) FrameSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch f {
	case FormatRGB24, FormatBGR24:
		return width * height * 3
	case FormatRGBA32, FormatBGRA32:
		return width * height * 4
	case FormatYUV420P, FormatNV12, FormatNV21:
		return width * height * 3 / 2
	case FormatYUYV, FormatUYVY:
		return width * height * 2
	default:
		return 0
	}
}

// BytesPerPixel returns the packed bytes-per-pixel for single-plane formats,
// or 0 for planar formats where the notion does not apply.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24, FormatBGR24:
		return 3
	case FormatRGBA32, FormatBGRA32:
		return 4
	case FormatYUYV, FormatUYVY:
		return 2
	default:
		return 0
	}
}
