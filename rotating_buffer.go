// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"encoding/binary"
	"sync/atomic"
)

// defaultBufferSize is the initial capacity of a rotating buffer.
const defaultBufferSize = 65_536

// SharedBuffer is a refcounted read buffer. The read path holds one
// reference while the buffer is current; every parsed request holds one
// more. When the last reference is released the backing array is returned
// to its owner for reuse, so repeated oversized frames do not leak
// capacity: only default-sized arrays are kept.
type SharedBuffer struct {
	data  []byte
	refs  atomic.Int32
	owner *RotatingBuffer
}

func (b *SharedBuffer) retain() { b.refs.Add(1) }

func (b *SharedBuffer) release() {
	if b.refs.Add(-1) == 0 {
		b.owner.recycle(b.data)
	}
}

func (b *SharedBuffer) bytes(r Range) []byte {
	if r.Start == r.End {
		return nil
	}
	return b.data[r.Start:r.End]
}

// RotatingBuffer decodes a stream of length-prefixed request frames from
// bytes appended incrementally by the transport. Frames are contiguous
// within a single buffer; a partially received frame's trailing bytes are
// copied to the head of a fresh buffer before the next read. The buffer
// grows by doubling when a frame exceeds the current capacity and falls
// back to the default capacity once all views into the oversized buffer
// are released.
//
// The rotating buffer is owned exclusively by the session's read path and
// is not safe for concurrent use; the requests it returns are read-only
// views that may be released from other goroutines.
type RotatingBuffer struct {
	current   *SharedBuffer
	length    int // valid bytes in current
	cursor    int // parsed bytes in current
	readLimit int

	// spare is a recycled default-sized backing array, if any. Access is
	// synchronized by the atomic swap in recycle/takeSpare because releases
	// may come from dispatch goroutines.
	spare atomic.Pointer[[]byte]
}

// NewRotatingBuffer returns a rotating buffer with the default capacity.
// readLimit caps the accepted frame length; zero means MaxRequestArgsLength.
func NewRotatingBuffer(readLimit int) *RotatingBuffer {
	if readLimit <= 0 {
		readLimit = MaxRequestArgsLength
	}
	rb := &RotatingBuffer{readLimit: readLimit}
	rb.current = rb.newShared(make([]byte, defaultBufferSize))
	return rb
}

func (rb *RotatingBuffer) newShared(data []byte) *SharedBuffer {
	b := &SharedBuffer{data: data, owner: rb}
	b.refs.Store(1)
	return b
}

func (rb *RotatingBuffer) recycle(data []byte) {
	if cap(data) != defaultBufferSize {
		return
	}
	d := data[:defaultBufferSize]
	rb.spare.Store(&d)
}

func (rb *RotatingBuffer) takeSpare(minSize int) []byte {
	if d := rb.spare.Swap(nil); d != nil && cap(*d) >= minSize {
		return *d
	}
	size := defaultBufferSize
	for size < minSize {
		size *= 2
	}
	return make([]byte, size)
}

// CurrentBuffer returns the writable tail of the active buffer, reserved
// for the next transport read. It is never empty: the buffer doubles when
// the tail is exhausted.
func (rb *RotatingBuffer) CurrentBuffer() []byte {
	if rb.length == len(rb.current.data) {
		rb.grow(len(rb.current.data) * 2)
	}
	return rb.current.data[rb.length:]
}

// Advance records that n bytes were read into the slice returned by
// CurrentBuffer.
func (rb *RotatingBuffer) Advance(n int) {
	rb.length += n
}

// Capacity reports the capacity of the active buffer.
func (rb *RotatingBuffer) Capacity() int { return len(rb.current.data) }

// grow moves the unparsed bytes into a larger buffer and releases the read
// path's reference on the old one.
func (rb *RotatingBuffer) grow(minSize int) {
	next := rb.newShared(rb.takeSpare(minSize))
	n := copy(next.data, rb.current.data[rb.cursor:rb.length])
	rb.current.release()
	rb.current = next
	rb.length = n
	rb.cursor = 0
}

// GetRequests parses all complete frames available in the active buffer
// and returns them in order. A trailing partial frame is carried over to
// the head of the next cycle's buffer. Each returned request holds a view
// of the buffer it was parsed from and must be released by its consumer.
func (rb *RotatingBuffer) GetRequests() ([]WholeRequest, error) {
	var requests []WholeRequest
	for {
		avail := rb.length - rb.cursor
		if avail < 4 {
			break
		}
		frameLen := int(binary.LittleEndian.Uint32(rb.current.data[rb.cursor : rb.cursor+4]))
		if frameLen < headerEnd {
			return requests, ErrMalformedHeader
		}
		if frameLen > rb.readLimit {
			return requests, ErrTooLong
		}
		if avail < frameLen {
			break
		}
		req, err := rb.parseFrame(rb.cursor, frameLen)
		if err != nil {
			return requests, err
		}
		requests = append(requests, req)
		rb.cursor += frameLen
	}
	rb.rotate()
	return requests, nil
}

// rotate prepares the buffer for the next read cycle. When views were
// handed out this cycle, or the buffer grew past the default capacity, the
// remainder moves to a fresh buffer; otherwise the current buffer is
// compacted in place. Rotating away from an oversized buffer is what
// restores the default capacity once its views are released.
func (rb *RotatingBuffer) rotate() {
	remainder := rb.length - rb.cursor
	oversized := len(rb.current.data) > defaultBufferSize
	if rb.current.refs.Load() == 1 && !oversized {
		// No outstanding views: reuse the buffer in place.
		if rb.cursor > 0 {
			copy(rb.current.data, rb.current.data[rb.cursor:rb.length])
			rb.length = remainder
			rb.cursor = 0
		}
		return
	}
	minSize := defaultBufferSize
	if remainder >= 4 {
		// The partial frame's length is already known; make room for it.
		if need := int(binary.LittleEndian.Uint32(rb.current.data[rb.cursor : rb.cursor+4])); need > minSize {
			minSize = need
		}
	}
	if remainder > minSize {
		minSize = remainder
	}
	rb.grow(minSize)
}

// parseFrame builds a WholeRequest for the frame at off, retaining a view
// of the active buffer.
func (rb *RotatingBuffer) parseFrame(off, frameLen int) (WholeRequest, error) {
	data := rb.current.data
	callbackIndex := binary.LittleEndian.Uint32(data[off+4 : off+8])
	requestType := RequestType(binary.LittleEndian.Uint32(data[off+8 : off+12]))

	req := WholeRequest{
		CallbackIndex: callbackIndex,
		Type:          requestType,
	}
	bodyStart := off + headerEnd
	bodyEnd := off + frameLen
	switch requestType {
	case RequestServerAddress:
		req.address = Range{Start: bodyStart, End: bodyEnd}
	case RequestGet:
		req.key = Range{Start: bodyStart, End: bodyEnd}
	case RequestSet:
		if frameLen < setKeyLengthEnd {
			return WholeRequest{}, ErrMalformedHeader
		}
		keyLen := int(binary.LittleEndian.Uint32(data[bodyStart : bodyStart+4]))
		keyStart := off + setKeyLengthEnd
		if keyStart+keyLen > bodyEnd {
			return WholeRequest{}, ErrMalformedHeader
		}
		req.key = Range{Start: keyStart, End: keyStart + keyLen}
		req.value = Range{Start: keyStart + keyLen, End: bodyEnd}
	default:
		return WholeRequest{}, ErrUnknownRequestType
	}

	rb.current.retain()
	req.buf = rb.current
	return req, nil
}

// Close releases the read path's reference on the active buffer.
func (rb *RotatingBuffer) Close() {
	if rb.current != nil {
		rb.current.release()
		rb.current = nil
	}
}
