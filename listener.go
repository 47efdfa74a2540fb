// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/bridge/internal/logging"
)

// SocketFileName is the well-known socket file name prefix.
const SocketFileName = "babushka-socket"

// SocketPath returns the per-process socket path,
// ${TMPDIR:-/tmp}/babushka-socket-<pid>.
func SocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", SocketFileName, os.Getpid()))
}

// socketListener owns the filesystem socket artifact and the accept loop.
type socketListener struct {
	socketPath    string
	cleanupSocket bool
	opts          Options
}

func newSocketListener(opts Options) *socketListener {
	path := opts.SocketPath
	if path == "" {
		path = SocketPath()
	}
	return &socketListener{socketPath: path, cleanupSocket: true, opts: opts}
}

// listenOnSocket binds the socket, reports the result through
// initCallback exactly once, then runs the accept loop until a shutdown
// signal arrives. The socket file is unlinked on return unless another
// process already owned the path at startup.
func (l *socketListener) listenOnSocket(initCallback func(path string, err error)) {
	ln, err := net.Listen("unix", l.socketPath)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			// Another instance is listening on the same path; hand its
			// socket to the caller and leave the file alone on exit.
			l.cleanupSocket = false
			initCallback(l.socketPath, nil)
			return
		}
		initCallback("", err)
		return
	}
	defer l.dispose()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGHUP)
	defer stop()

	initCallback(l.socketPath, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("connection", "shutdown signal received")
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			go listenOnClientStream(gctx, conn, &l.opts)
		}
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logging.Error("connection", "accept loop failed: "+err.Error())
	}
}

func (l *socketListener) dispose() {
	if l.cleanupSocket {
		_ = os.Remove(l.socketPath)
	}
}
