// Package selector chooses which backend serves a given key.
//
// Grounded on the teacher's server_selector.go (the ServerSelector func type
// and the xxh3+JumpHash default) and selector.go (the registry shape of
// ConsistentHashSelector), generalized so a routing script can build one of
// several hash selectors over an arbitrary backend list, per
// mcp.hash_selector{}.
package selector

import (
	"errors"
	"sync"

	"github.com/mcproxy/mcproxy/internal/jumphash"
	"github.com/zeebo/xxh3"
)

var ErrNoBackends = errors.New("selector: no backends available")

// HashFunc reduces a key to a 64-bit hash. Murmur3Hash and XXH3Hash are the
// two variants a routing script may request via mcp.hash_murmur3 /
// mcp.hash_xxh3.
type HashFunc func(key string) uint64

func Murmur3Hash(key string) uint64 {
	return uint64(Murmur3_32([]byte(key), 0))
}

func XXH3Hash(key string) uint64 {
	return xxh3.HashString(key)
}

// Selector picks an index in [0, n) for key, where n is the number of
// backends currently registered. It mirrors the teacher's ServerSelector
// func type, but operates on an index rather than a server address so the
// caller can map it onto its own Backend slice.
type Selector func(key string, n int) int

// NewJumpSelector builds a Selector using Google's Jump consistent hash over
// the given HashFunc, the default and most common resolution for
// mcp.hash_selector{}.
func NewJumpSelector(hash HashFunc) Selector {
	return func(key string, n int) int {
		return jumphash.Hash(hash(key), n)
	}
}

// Static always returns the same index (modulo n), used by tests;
// mcp.hash_selector{} always builds a jump-hash selector instead.
func Static(index int) Selector {
	return func(_ string, n int) int {
		if n == 0 {
			return 0
		}
		return index % n
	}
}

// Pool is a named, ordered set of backend addresses routed through a
// Selector. Routing scripts build one Pool per mcp.hash_selector{} call.
type Pool struct {
	mu       sync.RWMutex
	name     string
	backends []string
	pick     Selector
}

func NewPool(name string, backends []string, pick Selector) *Pool {
	cp := make([]string, len(backends))
	copy(cp, backends)
	return &Pool{name: name, backends: cp, pick: pick}
}

func (p *Pool) Name() string { return p.name }

// Select returns the backend address responsible for key.
func (p *Pool) Select(key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.backends)
	if n == 0 {
		return "", ErrNoBackends
	}
	if n == 1 {
		return p.backends[0], nil
	}

	idx := p.pick(key, n)
	if idx < 0 || idx >= n {
		idx = 0
	}
	return p.backends[idx], nil
}

func (p *Pool) Backends() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := make([]string, len(p.backends))
	copy(cp, p.backends)
	return cp
}
