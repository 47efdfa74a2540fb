// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import "errors"

var (
	// ErrInvalidArgument reports an invalid configuration or nil socket/connector.
	ErrInvalidArgument = errors.New("bridge: invalid argument")

	// ErrTooLong reports that a frame length exceeds the configured read limit.
	ErrTooLong = errors.New("bridge: frame too long")

	// ErrMalformedHeader reports a frame whose declared length cannot hold the
	// fixed header, or a body layout that contradicts the declared length.
	ErrMalformedHeader = errors.New("bridge: malformed frame header")

	// ErrUnknownRequestType reports a request frame with a reserved type discriminator.
	ErrUnknownRequestType = errors.New("bridge: unknown request type")

	// ErrReadSocketClosed reports that the wrapper closed its end of the socket.
	// This is the expected way for a session to end.
	ErrReadSocketClosed = errors.New("bridge: read socket closed")
)
