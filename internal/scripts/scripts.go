// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scripts is the process-wide script container used by host
// bindings: scripts are stored under their SHA-1 hex digest and
// refcounted, so several wrapper objects can share one stored script and
// the text is dropped when the last reference goes away.
package scripts

import (
	"crypto/sha1"
	"encoding/hex"
	"sync"
)

type entry struct {
	code string
	refs int
}

var (
	mu    sync.Mutex
	store = make(map[string]*entry)
)

// AddScript stores code and returns its hash. Adding the same script again
// bumps its refcount.
func AddScript(code string) string {
	sum := sha1.Sum([]byte(code))
	hash := hex.EncodeToString(sum[:])
	mu.Lock()
	defer mu.Unlock()
	if e, ok := store[hash]; ok {
		e.refs++
		return hash
	}
	store[hash] = &entry{code: code, refs: 1}
	return hash
}

// GetScript returns the script stored under hash.
func GetScript(hash string) (string, bool) {
	mu.Lock()
	defer mu.Unlock()
	e, ok := store[hash]
	if !ok {
		return "", false
	}
	return e.code, true
}

// RemoveScript drops one reference to the script stored under hash and
// deletes the text when no references remain. Unknown hashes are ignored.
func RemoveScript(hash string) {
	mu.Lock()
	defer mu.Unlock()
	e, ok := store[hash]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(store, hash)
	}
}
