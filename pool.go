// Copyright 2025 The Uno Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uno

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Pool supplies bucket array storage for a Hashtable. The default pool
// simply allocates with make() and lets the GC reclaim returned arrays. If a
// pool actually recycles storage then Hashtable.Close must be called to
// ensure the final array is returned.
type Pool[K comparable, V any] interface {
	// Rent returns a zeroed bucket slice of length n.
	Rent(n int) []Bucket[K, V]

	// Return gives a bucket slice, previously obtained from Rent, back to
	// the pool. The pool takes ownership of the slice and its contents.
	Return(b []Bucket[K, V])
}

type defaultPool[K comparable, V any] struct{}

func (defaultPool[K, V]) Rent(n int) []Bucket[K, V] {
	return make([]Bucket[K, V], n)
}

func (defaultPool[K, V]) Return(b []Bucket[K, V]) {
}

// maxPooledPerSize bounds how many arrays of one capacity a SharedPool
// retains. Tables of the same shape churn through the same few capacities,
// so a short free list is enough.
const maxPooledPerSize = 4

// SharedPool is a Pool that recycles bucket arrays across tables of the
// same key/value types. Arrays are kept on per-capacity free lists and
// zeroed on return so that pooled storage never pins keys or values.
//
// A SharedPool is safe for concurrent use. The rent/reuse counters are kept
// apart from the mutex-guarded free lists so that readers of Stats do not
// contend with renters.
type SharedPool[K comparable, V any] struct {
	mu   sync.Mutex
	free map[int][][]Bucket[K, V]

	_      cpu.CacheLinePad
	rents  atomic.Uint64
	reuses atomic.Uint64
}

// NewSharedPool constructs an empty SharedPool.
func NewSharedPool[K comparable, V any]() *SharedPool[K, V] {
	return &SharedPool[K, V]{
		free: make(map[int][][]Bucket[K, V]),
	}
}

func (p *SharedPool[K, V]) Rent(n int) []Bucket[K, V] {
	p.rents.Add(1)

	p.mu.Lock()
	if list := p.free[n]; len(list) > 0 {
		b := list[len(list)-1]
		p.free[n] = list[:len(list)-1]
		p.mu.Unlock()
		p.reuses.Add(1)
		return b
	}
	p.mu.Unlock()

	return make([]Bucket[K, V], n)
}

func (p *SharedPool[K, V]) Return(b []Bucket[K, V]) {
	if b == nil {
		return
	}
	// Zero now, not on Rent: a returned array must not keep the table's
	// former keys and values reachable while it sits on the free list.
	clear(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[len(b)]) < maxPooledPerSize {
		p.free[len(b)] = append(p.free[len(b)], b)
	}
}

// Stats returns the total number of Rent calls and how many of them were
// satisfied from a free list.
func (p *SharedPool[K, V]) Stats() (rents, reuses uint64) {
	return p.rents.Load(), p.reuses.Load()
}
