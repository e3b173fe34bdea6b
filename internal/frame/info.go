package frame

import "fmt"

// Info carries the metadata describing a single video frame.
type Info struct {
	// Width and Height are the frame dimensions in pixels.
	Width  int
	Height int

	// Stride is the number of bytes per row. Zero means "derive from the
	// pixel format and width".
	Stride int

	// PixelFormat is the memory layout of the pixel data.
	PixelFormat PixelFormat

	// TimestampUS is the presentation timestamp in microseconds on the
	// monotonic clock of the producing source.
	TimestampUS uint64

	// SequenceNumber increases monotonically per source, starting at 1 on
	// each start.
	SequenceNumber uint64

	// IsHardwareBuffer marks frames backed by a platform buffer (for
	// example a dmabuf). HWHandle carries the platform-specific handle.
	IsHardwareBuffer bool
	HWHandle         any
}

// FrameSize returns the total byte size implied by the format and dimensions.
func (i Info) FrameSize() int {
	return i.PixelFormat.FrameSize(i.Width, i.Height)
}

// RowStride returns the effective stride, deriving it from the format when
// the Stride field is zero.
func (i Info) RowStride() int {
	if i.Stride > 0 {
		return i.Stride
	}
	if bpp := i.PixelFormat.BytesPerPixel(); bpp > 0 {
		return i.Width * bpp
	}
	return i.Width
}

// String returns a compact human-readable description.
func (i Info) String() string {
	return fmt.Sprintf("%dx%d %s seq=%d ts=%dus", i.Width, i.Height, i.PixelFormat, i.SequenceNumber, i.TimestampUS)
}
