// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

// Options configures a socket listener.
type Options struct {
	// SocketPath overrides the per-process default socket path.
	SocketPath string

	// Connector opens the backing connection named by a session's
	// bootstrap frame.
	Connector Connector

	// ReadLimit caps the accepted request frame length (bytes). Zero
	// means MaxRequestArgsLength.
	ReadLimit int
}

var defaultOptions = Options{
	Connector: ConnectRedis,
	ReadLimit: MaxRequestArgsLength,
}

type Option func(*Options)

// WithSocketPath binds the listener to path instead of the per-process
// default.
func WithSocketPath(path string) Option {
	return func(o *Options) { o.SocketPath = path }
}

// WithConnector replaces the default redis connector.
func WithConnector(connect Connector) Option {
	return func(o *Options) { o.Connector = connect }
}

// WithReadLimit caps the accepted request frame length.
func WithReadLimit(limit int) Option {
	return func(o *Options) { o.ReadLimit = limit }
}
