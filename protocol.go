// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bridge implements a local inter-process bridge that exposes a
// remote key-value store client to a host-language wrapper over a unix
// domain socket with a compact binary framing.
//
// Semantics and design:
//   - Multiplexing: many logical wrapper requests are carried over one
//     socket and dispatched concurrently against one backing connection.
//     Replies are correlated by a wrapper-chosen callback index and may
//     arrive in any order.
//   - Zero-copy replies: Value and error replies do not serialize their
//     payload onto the wire. The payload is parked in an out-of-band
//     handle store and the frame body carries a 64-bit handle; the wrapper
//     reclaims the payload exactly once with handles.Take.
//   - Single-writer draining: response frames accumulate in a per-session
//     buffer and are drained by at most one writer at a time. A flush that
//     finds the writer busy returns iox.ErrWouldBlock; the in-flight drain
//     will pick up the new bytes.
//
// Wire format (little-endian): every frame starts with a fixed 12-byte
// header. Let L be the total frame length in bytes, header included:
//
//	off  size  field
//	0    4     length L
//	4    4     callback_index
//	8    4     type
//
// Request types: 0=ServerAddress (body: UTF-8 address), 1=Get (body: key),
// 2=Set (body: 4-byte key length, key, value). Response types: 0=Null
// (empty body), 1=Value, 2=RequestError, 3=ClosingError (body: 64-bit
// handle). Other values are reserved.
package bridge

import "encoding/binary"

const (
	// headerEnd is the size of the fixed frame header.
	headerEnd = 12

	// setKeyLengthEnd is the offset past Set's embedded key-length field.
	setKeyLengthEnd = headerEnd + 4

	// handleFieldSize is the size of the handle field in non-null responses.
	handleFieldSize = 8
)

// MaxRequestArgsLength is the maximum total length in bytes accepted for
// request arguments. It doubles as the default frame read limit and is
// surfaced to bindings so that wrapper-side constants stay consistent.
const MaxRequestArgsLength = 1 << 30

// RequestType discriminates request frames.
type RequestType uint32

const (
	RequestServerAddress RequestType = 0
	RequestGet           RequestType = 1
	RequestSet           RequestType = 2
)

// ResponseType discriminates response frames.
type ResponseType uint32

const (
	ResponseNull         ResponseType = 0
	ResponseValue        ResponseType = 1
	ResponseRequestError ResponseType = 2
	ResponseClosingError ResponseType = 3
)

// Range is a [Start, End) byte range into a shared request buffer.
type Range struct {
	Start int
	End   int
}

// WholeRequest is one parsed request frame. Its byte ranges index into a
// refcounted view of the read buffer that produced it, so a request may
// outlive the buffer rotation. The owner must call Release exactly once
// when the request's bytes are no longer needed.
type WholeRequest struct {
	CallbackIndex uint32
	Type          RequestType

	buf     *SharedBuffer
	key     Range
	value   Range
	address Range
}

// KeyBytes returns the key bytes of a Get or Set request.
func (r *WholeRequest) KeyBytes() []byte { return r.buf.bytes(r.key) }

// ValueBytes returns the value bytes of a Set request.
func (r *WholeRequest) ValueBytes() []byte { return r.buf.bytes(r.value) }

// AddressBytes returns the raw address bytes of a ServerAddress request.
func (r *WholeRequest) AddressBytes() []byte { return r.buf.bytes(r.address) }

// Release drops this request's view of the shared read buffer.
func (r *WholeRequest) Release() {
	if r.buf != nil {
		r.buf.release()
		r.buf = nil
	}
}

// appendHeader appends a fixed frame header to dst.
func appendHeader(dst []byte, length int, callbackIndex, frameType uint32) []byte {
	var hdr [headerEnd]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(length))
	binary.LittleEndian.PutUint32(hdr[4:8], callbackIndex)
	binary.LittleEndian.PutUint32(hdr[8:12], frameType)
	return append(dst, hdr[:]...)
}

// appendResponseHeader appends a fixed response header to dst.
func appendResponseHeader(dst []byte, length int, callbackIndex uint32, responseType ResponseType) []byte {
	return appendHeader(dst, length, callbackIndex, uint32(responseType))
}

// ResponseHeader is the decoded fixed header of a response frame. It is the
// wrapper-side half of the wire contract and is exercised by the tests.
type ResponseHeader struct {
	Length        uint32
	CallbackIndex uint32
	Type          ResponseType
}

// DecodeResponseHeader decodes the fixed header at the start of b.
func DecodeResponseHeader(b []byte) (ResponseHeader, error) {
	if len(b) < headerEnd {
		return ResponseHeader{}, ErrMalformedHeader
	}
	h := ResponseHeader{
		Length:        binary.LittleEndian.Uint32(b[0:4]),
		CallbackIndex: binary.LittleEndian.Uint32(b[4:8]),
		Type:          ResponseType(binary.LittleEndian.Uint32(b[8:12])),
	}
	if h.Length < headerEnd {
		return ResponseHeader{}, ErrMalformedHeader
	}
	return h, nil
}

// DecodeResponseHandle decodes the 64-bit handle field that follows the
// header in Value, RequestError and ClosingError frames.
func DecodeResponseHandle(b []byte) (uint64, error) {
	if len(b) < headerEnd+handleFieldSize {
		return 0, ErrMalformedHeader
	}
	return binary.LittleEndian.Uint64(b[headerEnd : headerEnd+handleFieldSize]), nil
}

// EncodeGetRequest appends a complete Get frame to dst. It is provided for
// wrapper-side encoders and tests; the core itself only parses requests.
func EncodeGetRequest(dst []byte, callbackIndex uint32, key []byte) []byte {
	dst = appendHeader(dst, headerEnd+len(key), callbackIndex, uint32(RequestGet))
	return append(dst, key...)
}

// EncodeSetRequest appends a complete Set frame to dst, with the leading
// 4-byte key length that makes the key/value split explicit on the wire.
func EncodeSetRequest(dst []byte, callbackIndex uint32, key, value []byte) []byte {
	dst = appendHeader(dst, setKeyLengthEnd+len(key)+len(value), callbackIndex, uint32(RequestSet))
	var kl [4]byte
	binary.LittleEndian.PutUint32(kl[:], uint32(len(key)))
	dst = append(dst, kl[:]...)
	dst = append(dst, key...)
	return append(dst, value...)
}

// EncodeServerAddressRequest appends a complete ServerAddress frame to dst.
func EncodeServerAddressRequest(dst []byte, callbackIndex uint32, address string) []byte {
	dst = appendHeader(dst, headerEnd+len(address), callbackIndex, uint32(RequestServerAddress))
	return append(dst, address...)
}
