// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bridge

import "code.hybscloud.com/bridge/internal/handles"

// ValueKind enumerates the reply payload shapes the backing store can
// produce. The set mirrors the RESP3 kinds the wrapper decoders handle.
type ValueKind uint8

const (
	NilValue ValueKind = iota
	OkayValue
	SimpleStringValue
	IntValue
	BulkStringValue
	ArrayValue
	MapValue
	DoubleValue
	BooleanValue
	SetValue
	VerbatimStringValue
)

// Value is a reply payload tree. Replies are never serialized onto the
// wire; the whole tree is parked in the handle store and reclaimed by the
// wrapper, so nesting stays cheap regardless of size.
type Value struct {
	Kind ValueKind

	Str   string
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte

	// Items holds Array and Set elements. Pairs holds Map entries in
	// insertion order.
	Items []Value
	Pairs []MapPair
}

// MapPair is one Map entry.
type MapPair struct {
	Key   Value
	Value Value
}

// IsNil reports whether the value is the nil reply.
func (v Value) IsNil() bool { return v.Kind == NilValue }

// BulkString returns a bulk-string value owning its own copy of b.
func BulkString(b []byte) Value {
	data := make([]byte, len(b))
	copy(data, b)
	return Value{Kind: BulkStringValue, Bytes: data}
}

// Nil returns the nil reply value.
func Nil() Value { return Value{Kind: NilValue} }

// ValueFromHandle reclaims the payload behind a response frame's handle
// field: a Value tree for Value frames, an error message string for
// RequestError and ClosingError frames. Each handle resolves exactly
// once; the second call reports false. Wrappers must reclaim every
// handle they receive or the payload stays parked.
func ValueFromHandle(handle uint64) (any, bool) { return handles.Take(handle) }
