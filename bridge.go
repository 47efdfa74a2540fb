// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import "runtime"

// StartSocketListener spawns a dedicated worker running the socket
// listener. Every accepted connection is assigned its own session to
// handle its requests. initCallback is invoked exactly once, with the
// bound socket path on success or the bind error on failure; the worker
// keeps running the accept loop after the callback fires.
func StartSocketListener(initCallback func(path string, err error), opts ...Option) {
	go func() {
		// The worker goroutine is locked to its own OS thread. The accept
		// loop, sessions and request goroutines it spawns are ordinary
		// goroutines and may run on any thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		RunSocketListener(initCallback, opts...)
	}()
}

// RunSocketListener runs the socket listener in the calling goroutine and
// returns when it shuts down. Host bindings normally use
// StartSocketListener; a standalone daemon runs this directly.
func RunSocketListener(initCallback func(path string, err error), opts ...Option) {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Connector == nil {
		initCallback("", ErrInvalidArgument)
		return
	}
	newSocketListener(o).listenOnSocket(initCallback)
}

// Start starts the socket listener and blocks until it is bound,
// returning the socket path the wrapper should connect to. The listener
// keeps serving in the background.
func Start(opts ...Option) (string, error) {
	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	StartSocketListener(func(path string, err error) {
		ch <- result{path: path, err: err}
	}, opts...)
	r := <-ch
	return r.path, r.err
}
