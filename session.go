// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"io"
	"math"
	"net"
	"runtime"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"code.hybscloud.com/bridge/internal/logging"
	"code.hybscloud.com/bridge/internal/telemetry"
)

// closingCallbackIndex marks best-effort ClosingError frames that are not
// tied to any wrapper request.
const closingCallbackIndex = math.MaxUint32

// streamListener owns one session's read path: the socket and the
// rotating buffer it feeds.
type streamListener struct {
	conn net.Conn
	rb   *RotatingBuffer
}

func newStreamListener(conn net.Conn, readLimit int) *streamListener {
	return &streamListener{conn: conn, rb: NewRotatingBuffer(readLimit)}
}

// nextValues blocks until at least one complete request is available and
// returns the parsed batch. ErrReadSocketClosed reports the clean EOF
// case; any other error is unhandled and closes the session.
func (l *streamListener) nextValues() ([]WholeRequest, error) {
	for {
		n, err := l.conn.Read(l.rb.CurrentBuffer())
		if n > 0 {
			l.rb.Advance(n)
			requests, perr := l.rb.GetRequests()
			if perr != nil {
				releaseAll(requests)
				return nil, perr
			}
			if len(requests) > 0 {
				return requests, nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrReadSocketClosed
			}
			return nil, err
		}
	}
}

func (l *streamListener) close() {
	l.rb.Close()
}

func releaseAll(requests []WholeRequest) {
	for i := range requests {
		requests[i].Release()
	}
}

// listenOnClientStream runs one wrapper session to completion: bootstrap,
// dispatch loop, teardown. It is spawned once per accepted connection and
// never returns an error; every failure is reported to the wrapper as a
// frame while the socket is still alive.
func listenOnClientStream(ctx context.Context, conn net.Conn, o *Options) {
	telemetry.ConnectionsAccepted.Inc()
	sessionID := uuid.NewString()
	logging.Info("connection", "new socket listener initiated "+sessionID)

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the socket is the one cancellation mechanism that unblocks
	// both the read loop and the flusher.
	stopClose := context.AfterFunc(sctx, func() { _ = conn.Close() })
	defer stopClose()

	closing := make(chan error, 1)
	writer := NewWriter(conn, closing)
	reader := newStreamListener(conn, o.ReadLimit)

	client, pending, err := waitForServerAddress(sctx, reader, writer, o.Connector)
	if err != nil {
		writer.WriteErrorResponse(closingCallbackIndex, ResponseClosingError, err.Error())
		_ = writer.Flush()
		logging.Error("client creation", err.Error())
		reader.close()
		return
	}

	handleRequests(sctx, pending, client, writer)

	readDone := make(chan error, 1)
	go func() { readDone <- readValuesLoop(sctx, reader, client, writer) }()

	readerExited := false
	select {
	case reason := <-readDone:
		readerExited = true
		if reason != nil && !errors.Is(reason, ErrReadSocketClosed) && sctx.Err() == nil {
			writer.WriteErrorResponse(closingCallbackIndex, ResponseClosingError, reason.Error())
			_ = writer.Flush()
			logging.Error("connection", reason.Error())
		}
	case werr := <-closing:
		if werr != nil {
			logging.Error("writer closing", werr.Error())
		}
	case <-sctx.Done():
		// Listener shutdown; in-flight dispatch goroutines are cancelled
		// and no further frames are written.
	}

	// Cancelling closes the socket, which unblocks the read loop; the
	// rotating buffer is only torn down once its owner has exited.
	cancel()
	if !readerExited {
		<-readDone
	}
	reader.close()
	var result *multierror.Error
	result = multierror.Append(result, client.Close(), conn.Close())
	if cerr := result.ErrorOrNil(); cerr != nil {
		logging.Debug("connection", "session teardown: "+cerr.Error())
	}
}

// waitForServerAddress consumes the bootstrap frame and opens the backing
// connection. Requests that arrived in the same batch as the bootstrap are
// returned for dispatch once the connection is up.
func waitForServerAddress(ctx context.Context, reader *streamListener, writer *Writer, connect Connector) (DataClient, []WholeRequest, error) {
	requests, err := reader.nextValues()
	if err != nil {
		return nil, nil, errors.Wrap(err, "socket listener closed")
	}
	first := &requests[0]
	if first.Type != RequestServerAddress {
		releaseAll(requests)
		return nil, nil, errors.New("received another request before receiving server address")
	}
	address := first.AddressBytes()
	if !utf8.Valid(address) {
		releaseAll(requests)
		return nil, nil, errors.New("failed to parse address: invalid UTF-8")
	}
	client, err := connect(ctx, string(address))
	if err != nil {
		releaseAll(requests)
		return nil, nil, errors.Wrap(err, "failed to create a client")
	}

	writer.WriteNullResponse(first.CallbackIndex)
	_ = writer.Flush()
	first.Release()
	return client, requests[1:], nil
}

// readValuesLoop is the session's steady state: parse batches, dispatch
// each request on its own goroutine, and yield so reply goroutines that
// want to flush are not starved by a flooding client.
func readValuesLoop(ctx context.Context, reader *streamListener, client DataClient, writer *Writer) error {
	for {
		requests, err := reader.nextValues()
		if err != nil {
			return err
		}
		handleRequests(ctx, requests, client, writer)
		runtime.Gosched()
	}
}

func handleRequests(ctx context.Context, requests []WholeRequest, client DataClient, writer *Writer) {
	for i := range requests {
		handleRequest(ctx, requests[i], client, writer)
	}
}

// handleRequest dispatches one request. The goroutine owns the request's
// buffer view and releases it when the reply has been enqueued.
func handleRequest(ctx context.Context, req WholeRequest, client DataClient, writer *Writer) {
	go func() {
		defer req.Release()
		var err error
		switch req.Type {
		case RequestGet:
			telemetry.Requests.WithLabelValues("get").Inc()
			var value Value
			if value, err = client.Get(ctx, req.KeyBytes()); err == nil {
				writer.WriteValueResponse(req.CallbackIndex, value)
			}
		case RequestSet:
			telemetry.Requests.WithLabelValues("set").Inc()
			if err = client.Set(ctx, req.KeyBytes(), req.ValueBytes()); err == nil {
				writer.WriteNullResponse(req.CallbackIndex)
			}
		case RequestServerAddress:
			err = errors.New("server address already received")
		}
		if err != nil {
			if ctx.Err() != nil {
				// Session teardown cancelled the call; no further frames.
				return
			}
			telemetry.RequestErrors.Inc()
			writer.WriteErrorResponse(req.CallbackIndex, ResponseRequestError, err.Error())
		}
		_ = writer.Flush()
	}()
}
