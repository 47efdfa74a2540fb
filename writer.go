// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"encoding/binary"
	"io"
	"sync"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/bridge/internal/handles"
	"code.hybscloud.com/bridge/internal/telemetry"
)

// Writer serializes response frames for one session. Frames are appended
// whole into an accumulation buffer and drained to the socket by at most
// one concurrent flusher, so the byte stream interleaves at frame
// granularity and frames leave in the order they were appended.
//
// Enqueue methods are safe to call from any number of request goroutines.
type Writer struct {
	conn io.Writer

	// flushMu is the single-writer lock. It is only ever acquired with
	// TryLock: a flusher that loses the race hands its bytes to the
	// current holder instead of waiting.
	flushMu sync.Mutex

	// outMu guards the swap of accumulated; it is never held across the
	// socket write.
	outMu       sync.Mutex
	accumulated []byte

	// closing carries the first transport error to the session.
	closing chan<- error
}

// NewWriter returns a writer draining to conn. Transport errors are
// forwarded on closing; the channel should have capacity 1.
func NewWriter(conn io.Writer, closing chan<- error) *Writer {
	return &Writer{conn: conn, closing: closing}
}

func (w *Writer) append(fn func(dst []byte) []byte) {
	w.outMu.Lock()
	w.accumulated = fn(w.accumulated)
	w.outMu.Unlock()
}

// WriteNullResponse appends a Null frame for callbackIndex.
func (w *Writer) WriteNullResponse(callbackIndex uint32) {
	w.append(func(dst []byte) []byte {
		return appendResponseHeader(dst, headerEnd, callbackIndex, ResponseNull)
	})
}

// WriteValueResponse appends a reply frame for callbackIndex. Nil values
// need no payload and go out as a plain Null frame; anything else is
// parked in the handle store and the frame body carries the handle.
func (w *Writer) WriteValueResponse(callbackIndex uint32, v Value) {
	if v.IsNil() {
		w.WriteNullResponse(callbackIndex)
		return
	}
	w.writeHandleResponse(callbackIndex, ResponseValue, v)
}

// WriteErrorResponse appends a RequestError or ClosingError frame whose
// body is a handle to the error message.
func (w *Writer) WriteErrorResponse(callbackIndex uint32, responseType ResponseType, message string) {
	w.writeHandleResponse(callbackIndex, responseType, message)
}

func (w *Writer) writeHandleResponse(callbackIndex uint32, responseType ResponseType, payload any) {
	h := handles.Put(payload)
	w.append(func(dst []byte) []byte {
		dst = appendResponseHeader(dst, headerEnd+handleFieldSize, callbackIndex, responseType)
		var field [handleFieldSize]byte
		binary.LittleEndian.PutUint64(field[:], h)
		return append(dst, field[:]...)
	})
}

// Flush drains the accumulation buffer to the socket. When another flush
// is in progress Flush returns iox.ErrWouldBlock immediately; the holder
// re-checks the buffer after every write and will pick up the new bytes.
// The holder loops until the buffer is observed empty, never holding the
// swap lock during the socket write. A transport error ends the drain and
// is forwarded to the session's closing channel.
func (w *Writer) Flush() error {
	if !w.flushMu.TryLock() {
		return iox.ErrWouldBlock
	}
	defer w.flushMu.Unlock()

	var spare []byte
	for {
		w.outMu.Lock()
		out := w.accumulated
		w.accumulated = spare
		w.outMu.Unlock()
		if len(out) == 0 {
			return nil
		}
		n, err := w.conn.Write(out)
		telemetry.BytesWritten.Add(float64(n))
		if err != nil {
			w.sendClosing(err)
			return err
		}
		spare = out[:0]
	}
}

// sendClosing forwards err without blocking; if the session already
// received a reason the newer one is dropped.
func (w *Writer) sendClosing(err error) {
	select {
	case w.closing <- err:
	default:
	}
}
