package frame

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// bufferAlign is the byte alignment of owned frame buffers, chosen to
// satisfy 32-byte SIMD loads over pixel rows.
const bufferAlign = 32

// Frame errors.
var (
	// ErrZeroSize indicates a frame with no representable pixel data.
	ErrZeroSize = errors.New("frame has zero size")

	// ErrReleased indicates use of a frame after its final release.
	ErrReleased = errors.New("frame already released")
)

// Recycler is invoked exactly once when a frame's reference count drops to
// zero. For externally wrapped frames it returns the underlying memory to the
// producer (requeue a capture request, munmap, return to a pool). A recycler
// must never retain a reference to the frame it receives.
type Recycler func(*Frame)

// Frame is a reference-counted video buffer. A frame starts with one
// reference; AddRef and Release manage sharing across the pipeline. The data
// is either owned (heap-allocated by New or Clone) or borrowed from an
// external producer (Wrap).
type Frame struct {
	info     Info
	data     []byte
	capacity int
	external bool

	refs     atomic.Int32
	recycler Recycler
}

// New allocates a heap-backed frame sized for the given info.
// It fails if the format and dimensions describe a zero-size frame.
func New(info Info) (*Frame, error) {
	size := info.FrameSize()
	if size == 0 {
		return nil, fmt.Errorf("creating frame %dx%d %s: %w", info.Width, info.Height, info.PixelFormat, ErrZeroSize)
	}
	f := &Frame{
		info:     info,
		data:     alignedBytes(size),
		capacity: size,
	}
	f.refs.Store(1)
	return f, nil
}

// alignedBytes allocates a size-byte slice whose first element sits on a
// bufferAlign boundary.
func alignedBytes(size int) []byte {
	buf := make([]byte, size+bufferAlign-1)
	off := int(-uintptr(unsafe.Pointer(&buf[0])) & (bufferAlign - 1))
	return buf[off : off+size : off+size]
}

// Wrap creates a zero-copy frame around externally owned memory. The recycler
// runs on final release; the owner of data must outlive the frame.
func Wrap(data []byte, info Info, recycler Recycler) *Frame {
	f := &Frame{
		info:     info,
		data:     data,
		capacity: len(data),
		external: true,
		recycler: recycler,
	}
	f.refs.Store(1)
	return f
}

// Info returns the frame metadata.
func (f *Frame) Info() Info { return f.info }

// SetInfo replaces the frame metadata.
func (f *Frame) SetInfo(info Info) { f.info = info }

// SetTimestamp stamps the presentation timestamp in microseconds.
func (f *Frame) SetTimestamp(us uint64) { f.info.TimestampUS = us }

// SetSequence stamps the per-source sequence number.
func (f *Frame) SetSequence(seq uint64) { f.info.SequenceNumber = seq }

// Data returns the raw frame bytes.
func (f *Frame) Data() []byte { return f.data }

// Size returns the number of valid bytes, bounded by capacity.
func (f *Frame) Size() int {
	size := f.info.FrameSize()
	if size > f.capacity {
		return f.capacity
	}
	return size
}

// Capacity returns the allocation size in bytes.
func (f *Frame) Capacity() int { return f.capacity }

// External reports whether the frame wraps memory it does not own.
func (f *Frame) External() bool { return f.external }

// Valid reports whether the frame holds data consistent with its metadata.
func (f *Frame) Valid() bool {
	return f.data != nil && f.info.FrameSize() > 0 && f.info.FrameSize() <= f.capacity
}

// RefCount returns the current reference count. Intended for tests and
// diagnostics only.
func (f *Frame) RefCount() int { return int(f.refs.Load()) }

// AddRef takes an additional reference.
func (f *Frame) AddRef() {
	if f.refs.Add(1) <= 1 {
		panic(ErrReleased)
	}
}

// Release drops a reference. On the final release the recycler (if any) runs
// once, observing all prior writes to the frame, and the data is detached.
func (f *Frame) Release() {
	n := f.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic(ErrReleased)
	}
	if f.recycler != nil {
		recycler := f.recycler
		f.recycler = nil
		recycler(f)
	}
	f.data = nil
}

// Clone deep-copies the frame into a fresh heap-backed frame. The clone owns
// its data: any external binding, hardware handle, and recycler are dropped.
func (f *Frame) Clone() (*Frame, error) {
	info := f.info
	info.IsHardwareBuffer = false
	info.HWHandle = nil
	out, err := New(info)
	if err != nil {
		return nil, err
	}
	copy(out.data, f.data[:f.Size()])
	return out, nil
}

// CopyFrom copies pixel data plane by plane from other, keeping the
// receiver's capacity and recycler. It returns false if other does not fit.
func (f *Frame) CopyFrom(other *Frame) bool {
	if other == nil || other.Size() > f.capacity {
		return false
	}
	info := other.info
	info.IsHardwareBuffer = f.info.IsHardwareBuffer
	info.HWHandle = f.info.HWHandle
	f.info = info
	copy(f.data, other.data[:other.Size()])
	return true
}

// PlaneCount returns the number of planes for the frame's pixel format.
func (f *Frame) PlaneCount() int { return f.info.PixelFormat.PlaneCount() }

// Plane returns a view of the i-th plane, or nil if the plane does not exist.
func (f *Frame) Plane(i int) []byte {
	offset, size := f.planeRegion(i)
	if size == 0 || offset+size > len(f.data) {
		return nil
	}
	return f.data[offset : offset+size]
}

// PlaneSize returns the byte size of the i-th plane.
func (f *Frame) PlaneSize(i int) int {
	_, size := f.planeRegion(i)
	return size
}

// PlaneStride returns the bytes per row of the i-th plane.
func (f *Frame) PlaneStride(i int) int {
	w, h := f.info.Width, f.info.Height
	if w <= 0 || h <= 0 {
		return 0
	}
	switch f.info.PixelFormat {
	case FormatYUV420P:
		switch i {
		case 0:
			return w
		case 1, 2:
			return w / 2
		}
	case FormatNV12, FormatNV21:
		if i == 0 || i == 1 {
			return w
		}
	case FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32, FormatYUYV, FormatUYVY:
		if i == 0 {
			return f.info.RowStride()
		}
	}
	return 0
}

// planeRegion returns the byte offset and size of plane i within data.
func (f *Frame) planeRegion(i int) (offset, size int) {
	w, h := f.info.Width, f.info.Height
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	luma := w * h
	switch f.info.PixelFormat {
	case FormatYUV420P:
		switch i {
		case 0:
			return 0, luma
		case 1:
			return luma, luma / 4
		case 2:
			return luma * 5 / 4, luma / 4
		}
	case FormatNV12, FormatNV21:
		switch i {
		case 0:
			return 0, luma
		case 1:
			return luma, luma / 2
		}
	case FormatRGB24, FormatBGR24, FormatRGBA32, FormatBGRA32, FormatYUYV, FormatUYVY:
		if i == 0 {
			return 0, f.info.FrameSize()
		}
	}
	return 0, 0
}
