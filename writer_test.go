// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"bytes"
	"errors"
	"runtime"
	"sync"
	"testing"

	"code.hybscloud.com/iox"

	"code.hybscloud.com/bridge/internal/handles"
)

// decodedResponse is one response frame cut out of a byte stream.
type decodedResponse struct {
	header ResponseHeader
	handle uint64
}

// parseResponses cuts a byte stream into response frames. It fails the
// test on any torn or malformed frame, which is what makes it double as
// the frame-granularity atomicity check.
func parseResponses(t *testing.T, b []byte) []decodedResponse {
	t.Helper()
	var out []decodedResponse
	for len(b) > 0 {
		header, err := DecodeResponseHeader(b)
		if err != nil {
			t.Fatalf("decode header at frame %d: %v", len(out), err)
		}
		if int(header.Length) > len(b) {
			t.Fatalf("torn frame: declared=%d available=%d", header.Length, len(b))
		}
		resp := decodedResponse{header: header}
		if header.Type != ResponseNull {
			if header.Length != headerEnd+handleFieldSize {
				t.Fatalf("handle frame length=%d", header.Length)
			}
			h, err := DecodeResponseHandle(b)
			if err != nil {
				t.Fatalf("decode handle: %v", err)
			}
			resp.handle = h
		} else if header.Length != headerEnd {
			t.Fatalf("null frame length=%d", header.Length)
		}
		out = append(out, resp)
		b = b[header.Length:]
	}
	return out
}

// lockedBuffer is an io.Writer sink safe for use under concurrent flushes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lockedBuffer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *lockedBuffer) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

func TestWriter_FrameLayoutAndOrder(t *testing.T) {
	var sink lockedBuffer
	closing := make(chan error, 1)
	w := NewWriter(&sink, closing)

	w.WriteNullResponse(1)
	w.WriteValueResponse(2, BulkString([]byte("payload")))
	w.WriteValueResponse(3, Nil())
	w.WriteErrorResponse(4, ResponseRequestError, "boom")
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	responses := parseResponses(t, sink.bytes())
	if len(responses) != 4 {
		t.Fatalf("responses: n=%d want=4", len(responses))
	}
	wantTypes := []ResponseType{ResponseNull, ResponseValue, ResponseNull, ResponseRequestError}
	for i, want := range wantTypes {
		if responses[i].header.Type != want {
			t.Fatalf("response[%d]: type=%d want=%d", i, responses[i].header.Type, want)
		}
		if responses[i].header.CallbackIndex != uint32(i+1) {
			t.Fatalf("response[%d]: cb=%d", i, responses[i].header.CallbackIndex)
		}
	}

	// The parked payloads are reclaimed exactly once.
	v, ok := handles.Take(responses[1].handle)
	if !ok {
		t.Fatalf("value handle %d not found", responses[1].handle)
	}
	if got := string(v.(Value).Bytes); got != "payload" {
		t.Fatalf("value payload: %q", got)
	}
	if _, ok = handles.Take(responses[1].handle); ok {
		t.Fatalf("value handle survived Take")
	}
	msg, ok := handles.Take(responses[3].handle)
	if !ok || msg.(string) != "boom" {
		t.Fatalf("error handle: %v %v", msg, ok)
	}
}

// Concurrent enqueues interleave at frame granularity, never inside a
// frame, and every callback index comes out exactly once.
func TestWriter_ConcurrentEnqueueAtomicity(t *testing.T) {
	var sink lockedBuffer
	closing := make(chan error, 1)
	w := NewWriter(&sink, closing)

	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				cb := uint32(g*perGoroutine + i)
				if i%2 == 0 {
					w.WriteNullResponse(cb)
				} else {
					w.WriteErrorResponse(cb, ResponseRequestError, "x")
				}
				_ = w.Flush()
			}
		}(g)
	}
	wg.Wait()
	if err := w.Flush(); err != nil {
		t.Fatalf("final flush: %v", err)
	}

	responses := parseResponses(t, sink.bytes())
	if len(responses) != goroutines*perGoroutine {
		t.Fatalf("responses: n=%d want=%d", len(responses), goroutines*perGoroutine)
	}
	seen := make(map[uint32]int)
	for _, resp := range responses {
		seen[resp.header.CallbackIndex]++
		if resp.handle != 0 {
			if _, ok := handles.Take(resp.handle); !ok {
				t.Fatalf("cb=%d: handle %d missing", resp.header.CallbackIndex, resp.handle)
			}
		}
	}
	for cb := uint32(0); cb < goroutines*perGoroutine; cb++ {
		if seen[cb] != 1 {
			t.Fatalf("cb=%d: emitted %d times", cb, seen[cb])
		}
	}
}

// gatedWriter blocks Write until released.
type gatedWriter struct {
	gate chan struct{}
	buf  lockedBuffer
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	<-w.gate
	return w.buf.Write(p)
}

func TestWriter_FlushBusyReturnsWouldBlock(t *testing.T) {
	gw := &gatedWriter{gate: make(chan struct{})}
	closing := make(chan error, 1)
	w := NewWriter(gw, closing)

	w.WriteNullResponse(1)
	holderDone := make(chan error, 1)
	go func() { holderDone <- w.Flush() }()

	// Wait until the holder is parked inside the socket write.
	for {
		w.outMu.Lock()
		drained := len(w.accumulated) == 0
		w.outMu.Unlock()
		if drained {
			break
		}
		runtime.Gosched()
	}

	// The holder owns the lock; a concurrent flush must not wait.
	w.WriteNullResponse(2)
	if err := w.Flush(); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("busy flush: err=%v want=%v", err, iox.ErrWouldBlock)
	}

	// The holder drains the late frame on its re-check.
	close(gw.gate)
	if err := <-holderDone; err != nil {
		t.Fatalf("holder flush: %v", err)
	}
	responses := parseResponses(t, gw.buf.bytes())
	if len(responses) != 2 {
		t.Fatalf("responses: n=%d want=2", len(responses))
	}
	if responses[0].header.CallbackIndex != 1 || responses[1].header.CallbackIndex != 2 {
		t.Fatalf("order: cb0=%d cb1=%d", responses[0].header.CallbackIndex, responses[1].header.CallbackIndex)
	}
}

type failingWriter struct{ err error }

func (w *failingWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestWriter_WriteErrorForwardedToClosing(t *testing.T) {
	wantErr := errors.New("broken pipe")
	closing := make(chan error, 1)
	w := NewWriter(&failingWriter{err: wantErr}, closing)

	w.WriteNullResponse(9)
	if err := w.Flush(); !errors.Is(err, wantErr) {
		t.Fatalf("flush: err=%v want=%v", err, wantErr)
	}
	select {
	case got := <-closing:
		if !errors.Is(got, wantErr) {
			t.Fatalf("closing: err=%v want=%v", got, wantErr)
		}
	default:
		t.Fatalf("closing reason not sent")
	}
}
