// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package handles implements the out-of-band reply store behind the
// ownership-transfer reply convention. The reply writer parks a payload
// here and writes the returned 64-bit handle into the frame body; the
// wrapper reclaims the payload with Take exactly once. One producer, one
// consumer, no leaks.
package handles

import "sync"

// Registry maps live handles to parked payloads. The zero value is ready
// to use. Handle 0 is never issued.
type Registry struct {
	mu   sync.Mutex
	next uint64
	live map[uint64]any
}

// Put parks v and returns its handle.
func (r *Registry) Put(v any) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil {
		r.live = make(map[uint64]any)
	}
	r.next++
	r.live[r.next] = v
	return r.next
}

// Take removes and returns the payload parked under h. The second result
// is false when h was never issued or was already taken.
func (r *Registry) Take(h uint64) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.live[h]
	if ok {
		delete(r.live, h)
	}
	return v, ok
}

// Len reports the number of parked payloads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

var defaultRegistry Registry

// Put parks v in the process-wide registry.
func Put(v any) uint64 { return defaultRegistry.Put(v) }

// Take reclaims a payload from the process-wide registry.
func Take(h uint64) (any, bool) { return defaultRegistry.Take(h) }
