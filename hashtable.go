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

// Package uno provides Hashtable, a general-purpose hash table that uses
// open addressing with double hashing rather than chaining, so that no
// per-entry allocation is ever performed: all storage lives in a single
// bucket array rented from a pool.
//
// # Double hashing
//
// Every key k is reduced to a 31-bit hash (the top bit of the 32-bit hash
// word is reserved as a collision flag, see below). The probe sequence for k
// is
//
//	incr     := 1 + ((seed * 101) mod (n-1))
//	probe(i) := (seed + i*incr) mod n
//
// where seed is the 31-bit hash and n is the table capacity. The capacity is
// always prime, which makes incr coprime with n and guarantees that the
// sequence visits every one of the n slots exactly once before repeating.
// Both successful and unsuccessful probes therefore terminate within n
// steps. 101 is itself prime so that the step sizes derived from distinct
// seeds spread well. See Knuth TAoCP vol. 3, section 6.4, algorithm D.
//
// # Collision bits and tombstones
//
// Each bucket carries a combined hash/collision word: the low 31 bits hold
// the truncated hash of the resident key and the top bit records whether any
// probe sequence was ever displaced past this bucket. A lookup can stop as
// soon as it steps off a bucket whose collision bit is clear, which keeps
// negative lookups short even in a well-populated table.
//
// Deleting an entry whose bucket carries the collision bit cannot simply
// empty the bucket, since later probe chains still need to pass through it.
// Such buckets become tombstones: empty, but probed through. Tombstones are
// reused by subsequent inserts in preference to extending a probe chain, and
// a table that accumulates too many collision marks from insert/delete churn
// is rebuilt in place at the same capacity to shed them (see rehash).
//
// # Growth
//
// The table grows when the live count reaches the load-size threshold,
// computed from the configured load factor scaled by 0.72 (an empirically
// determined constant balancing probe length against memory). Growth rebuilds
// the entries into a freshly rented array whose capacity is the smallest
// prime at least twice the old capacity, then publishes the new array with a
// single atomic pointer store and returns the old array to the pool.
//
// # Concurrency
//
// A Hashtable supports one writer concurrent with any number of readers,
// with no internal locking. Readers snapshot the bucket array reference
// once per operation; because a resize builds the entire replacement array
// before publishing it, a reader holding the old reference always probes a
// fully valid (if stale) array. Concurrent writers are not supported.
package uno

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrDuplicateKey is returned by Add when an entry with the same key is
// already present.
var ErrDuplicateKey = errors.New("duplicate key")

const (
	debug      = false
	invariants = false

	// hashPrime is the multiplier used to derive the probe step from the
	// seed. Prime, so that step sizes spread over [1, n-1].
	hashPrime = 101

	// loadFactorScale converts the user-facing load factor into the internal
	// one. 0.72 is the classic speed/memory tradeoff for double hashing.
	loadFactorScale   = 0.72
	defaultLoadFactor = 1.0

	// minRehashCount is the minimum live count before accumulated collision
	// marks alone can trigger a same-size rebuild. Below it the table is too
	// small for tombstone buildup to matter.
	minRehashCount = 100

	hashMask     = 0x7FFFFFFF
	collisionBit = 0x80000000
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotTombstone
	slotOccupied
)

// Bucket is a single slot of a Hashtable's backing array. The fields are not
// exported; the type is exported only so that a Pool implementation can rent
// and return bucket storage.
type Bucket[K comparable, V any] struct {
	key   K
	value V
	// hashColl is the combined hash/collision word: low 31 bits are the
	// truncated hash of the resident key, the top bit is the collision flag.
	// An empty bucket always has hashColl == 0. A tombstone retains only the
	// collision bit.
	hashColl uint32
	state    slotState
}

// Hashtable is an unordered map from keys to values with Put, Add, Get,
// Delete, and All operations, using double hashing for collision resolution.
// By default keys are hashed with the runtime's maphash (xxHash for string
// keys); a different hash/equality strategy can be injected with
// WithComparer.
//
// A Hashtable supports a single writer concurrent with lock-free readers. It
// is NOT safe for concurrent writers.
type Hashtable[K comparable, V any] struct {
	// buckets is the published backing array. Readers Load it exactly once
	// per operation; the writer replaces it wholesale on expand/rehash.
	buckets atomic.Pointer[[]Bucket[K, V]]
	// count is the number of live entries.
	count int
	// occupancy is the number of buckets whose collision bit is set.
	occupancy int
	// loadFactor is the internal (scaled) load factor.
	loadFactor float64
	// loadsize is the count threshold that forces growth. Invariant:
	// loadsize < len(buckets).
	loadsize int
	cmp      Comparer[K]
	pool     Pool[K, V]
}

// New constructs a Hashtable with room for at least initialCapacity entries
// before growing. New panics if initialCapacity is negative, if a configured
// load factor is outside [0.1, 1.0], or if the resulting raw size exceeds
// the largest supported prime capacity.
func New[K comparable, V any](initialCapacity int, opts ...option[K, V]) *Hashtable[K, V] {
	if initialCapacity < 0 {
		panic(fmt.Sprintf("uno: negative initial capacity %d", initialCapacity))
	}

	h := &Hashtable[K, V]{
		loadFactor: loadFactorScale * defaultLoadFactor,
		cmp:        defaultComparer[K](),
		pool:       defaultPool[K, V]{},
	}
	for _, op := range opts {
		op.apply(h)
	}

	rawsize := float64(initialCapacity) / h.loadFactor
	if rawsize > maxPrimeCapacity {
		panic(fmt.Sprintf("uno: capacity %d exceeds the maximum table size", initialCapacity))
	}
	hashsize := initialSize
	if rawsize > initialSize {
		hashsize = nextPrime(int(rawsize))
	}
	h.init(hashsize)
	h.checkInvariants()
	return h
}

// init rents the bucket array for the given capacity and derives the
// load-size threshold from it.
func (h *Hashtable[K, V]) init(hashsize int) {
	b := h.pool.Rent(hashsize)
	h.buckets.Store(&b)
	h.loadsize = int(h.loadFactor * float64(hashsize))
	if h.loadsize >= hashsize {
		h.loadsize = hashsize - 1
	}
}

// Close returns the bucket array to the pool. Using the table after Close is
// undefined, though Close itself is idempotent.
func (h *Hashtable[K, V]) Close() {
	if b := h.buckets.Swap(nil); b != nil {
		h.pool.Return(*b)
	}
	h.count = 0
	h.occupancy = 0
	h.loadsize = 0
}

// Len returns the number of entries in the table.
func (h *Hashtable[K, V]) Len() int {
	return h.count
}

// capacity returns the size of the current bucket array.
func (h *Hashtable[K, V]) capacity() int {
	return len(*h.buckets.Load())
}

// hashOf folds the comparer's 64-bit hash down to the 31 bits stored in a
// bucket's hash/collision word.
func (h *Hashtable[K, V]) hashOf(key K) uint32 {
	v := h.cmp.Hash(key)
	return uint32(v>>32^v) & hashMask
}

// probeStep derives the double-hashing increment for a seed. The result is
// in [1, n-1] and, n being prime, coprime with n.
func probeStep(seed, n uint32) uint32 {
	return 1 + (seed*hashPrime)%(n-1)
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (h *Hashtable[K, V]) Get(key K) (value V, ok bool) {
	// Snapshot the bucket array once; a concurrent resize will publish a new
	// array but cannot invalidate this one.
	b := *h.buckets.Load()
	n := uint32(len(b))
	hashcode := h.hashOf(key)
	seed := hashcode
	incr := probeStep(seed, n)
	if debug {
		fmt.Printf("get(%v): hash=%08x incr=%d n=%d\n", key, hashcode, incr, n)
	}

	for ntry := uint32(0); ; {
		s := &b[seed%n]
		if s.state == slotEmpty {
			// A virgin slot terminates every probe chain through it.
			return value, false
		}
		if s.state == slotOccupied && s.hashColl&hashMask == hashcode && h.cmp.Equal(s.key, key) {
			return s.value, true
		}
		seed += incr
		// Keep probing only while displaced keys have passed through the
		// slot we just examined, and never for more than n probes.
		if ntry++; s.hashColl&collisionBit == 0 || ntry >= n {
			return value, false
		}
	}
}

// ContainsKey reports whether the table contains the specified key.
func (h *Hashtable[K, V]) ContainsKey(key K) bool {
	_, ok := h.Get(key)
	return ok
}

// ContainsValue reports whether any entry of h holds the specified value.
// It is a free function rather than a method because methods cannot add the
// comparable constraint on V. It runs in O(capacity).
func ContainsValue[K comparable, V comparable](h *Hashtable[K, V], value V) bool {
	b := *h.buckets.Load()
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].state == slotOccupied && b[i].value == value {
			return true
		}
	}
	return false
}

// Put inserts an entry into the table, overwriting the existing value if an
// entry with the same key is already present.
func (h *Hashtable[K, V]) Put(key K, value V) {
	// insert cannot fail when overwriting is permitted.
	_ = h.insert(key, value, false)
}

// Add inserts an entry into the table, failing with ErrDuplicateKey if an
// entry with the same key is already present. The table is unchanged on
// failure.
func (h *Hashtable[K, V]) Add(key K, value V) error {
	return h.insert(key, value, true)
}

func (h *Hashtable[K, V]) insert(key K, value V, add bool) error {
	if h.count >= h.loadsize {
		h.expand()
	} else if h.occupancy > h.loadsize && h.count > minRehashCount {
		// Heavy insert/delete churn has littered the table with collision
		// marks, degrading negative lookups. Rebuild at the same size to
		// shed them.
		h.rehash()
	}

	b := *h.buckets.Load()
	n := uint32(len(b))
	hashcode := h.hashOf(key)
	seed := hashcode
	incr := probeStep(seed, n)
	if debug {
		fmt.Printf("insert(%v): hash=%08x incr=%d n=%d add=%t\n", key, hashcode, incr, n, add)
	}

	// The first tombstone seen along the probe chain. Reusing it is
	// preferred over extending the chain into a virgin slot.
	emptySlot := -1

	for ntry := uint32(0); ntry < n; ntry++ {
		i := int(seed % n)
		s := &b[i]

		if emptySlot == -1 && s.state == slotTombstone && s.hashColl&collisionBit != 0 {
			emptySlot = i
		}

		if s.state == slotEmpty || (s.state == slotTombstone && s.hashColl&collisionBit == 0) {
			if emptySlot != -1 {
				i = emptySlot
				s = &b[i]
			}
			// Value and key are written before the hash word so that a
			// concurrent reader cannot hash-match a half-written slot.
			s.value = value
			s.key = key
			s.state = slotOccupied
			s.hashColl |= hashcode
			h.count++
			if debug {
				fmt.Printf("insert(%v): index=%d count=%d\n", key, i, h.count)
			}
			h.checkInvariants()
			return nil
		}

		if s.state == slotOccupied && s.hashColl&hashMask == hashcode && h.cmp.Equal(s.key, key) {
			if add {
				return fmt.Errorf("uno: key %v already present: %w", key, ErrDuplicateKey)
			}
			s.value = value
			h.checkInvariants()
			return nil
		}

		// The slot is taken and does not match: every key probing through
		// here must now skip past it, so mark the collision the first time.
		if emptySlot == -1 && s.hashColl&collisionBit == 0 {
			s.hashColl |= collisionBit
			h.occupancy++
		}

		seed += incr
	}

	if emptySlot != -1 {
		// The whole chain was walked without finding a duplicate; fall back
		// to the remembered tombstone.
		s := &b[emptySlot]
		s.value = value
		s.key = key
		s.state = slotOccupied
		s.hashColl |= hashcode
		h.count++
		if debug {
			fmt.Printf("insert(%v): reused tombstone index=%d count=%d\n", key, emptySlot, h.count)
		}
		h.checkInvariants()
		return nil
	}

	// Structurally impossible: loadsize < capacity guarantees a free slot on
	// every chain.
	panic(fmt.Sprintf("uno: probe sequence exhausted without a free slot\n%s", h.debugString()))
}

// Delete removes the entry for the specified key. Deleting a key that is not
// present is a no-op.
func (h *Hashtable[K, V]) Delete(key K) {
	b := *h.buckets.Load()
	n := uint32(len(b))
	hashcode := h.hashOf(key)
	seed := hashcode
	incr := probeStep(seed, n)
	if debug {
		fmt.Printf("delete(%v): hash=%08x incr=%d n=%d\n", key, hashcode, incr, n)
	}

	for ntry := uint32(0); ; {
		s := &b[seed%n]
		if s.state == slotOccupied && s.hashColl&hashMask == hashcode && h.cmp.Equal(s.key, key) {
			// Strip the hash bits, keeping only the collision flag. If any
			// probe chain passes through this bucket it must remain a
			// tombstone; otherwise it reverts to virgin-empty, shortening
			// future chains.
			s.hashColl &= collisionBit
			if s.hashColl != 0 {
				s.state = slotTombstone
			} else {
				s.state = slotEmpty
			}
			// Clear the key and value so the table does not pin them.
			var zk K
			var zv V
			s.key = zk
			s.value = zv
			h.count--
			if debug {
				fmt.Printf("delete(%v): count=%d\n", key, h.count)
			}
			h.checkInvariants()
			return
		}
		seed += incr
		if ntry++; s.hashColl&collisionBit == 0 || ntry >= n {
			return
		}
	}
}

// expand rebuilds the table into an array whose capacity is the smallest
// prime at least twice the current capacity, capped at the largest supported
// prime.
func (h *Hashtable[K, V]) expand() {
	h.rebuild(expandPrime(h.capacity()))
}

// rehash rebuilds the table at its current capacity, shedding accumulated
// tombstones and collision marks.
func (h *Hashtable[K, V]) rehash() {
	h.rebuild(h.capacity())
}

func (h *Hashtable[K, V]) rebuild(newsize int) {
	old := *h.buckets.Load()
	nb := h.pool.Rent(newsize)
	if debug {
		fmt.Printf("rebuild: %d -> %d (count=%d occupancy=%d)\n",
			len(old), newsize, h.count, h.occupancy)
	}

	// Collision marks are recomputed from scratch as entries land in the new
	// array.
	h.occupancy = 0
	for i := range old {
		s := &old[i]
		if s.state == slotOccupied {
			h.putEntry(nb, s.key, s.value, s.hashColl&hashMask)
		}
	}

	// Publish the fully built array, then recycle the old one. A reader that
	// loaded the old reference before the store probes a stale but valid
	// array.
	h.buckets.Store(&nb)
	h.loadsize = int(h.loadFactor * float64(newsize))
	if h.loadsize >= newsize {
		h.loadsize = newsize - 1
	}
	h.pool.Return(old)
	h.checkInvariants()
}

// putEntry inserts an entry known not to be present into a bucket array
// under construction. No duplicate check, no growth, no tombstones to
// consider: only empty and occupied slots exist during a rebuild.
func (h *Hashtable[K, V]) putEntry(nb []Bucket[K, V], key K, value V, hashcode uint32) {
	n := uint32(len(nb))
	seed := hashcode
	incr := probeStep(seed, n)

	for {
		s := &nb[seed%n]
		if s.state == slotEmpty {
			s.value = value
			s.key = key
			s.state = slotOccupied
			s.hashColl |= hashcode
			return
		}
		if s.hashColl&collisionBit == 0 {
			s.hashColl |= collisionBit
			h.occupancy++
		}
		seed += incr
	}
}

// All calls yield for every entry in the table, walking bucket indices from
// high to low. Iteration order is unspecified and stable only between
// structural mutations. If yield returns false, iteration stops.
//
// All snapshots the bucket array reference, so a concurrent resize does not
// invalidate the walk; mutating the table from inside yield is undefined
// per-step (a recycling pool may clear the snapshot).
func (h *Hashtable[K, V]) All(yield func(key K, value V) bool) {
	b := *h.buckets.Load()
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].state == slotOccupied {
			if !yield(b[i].key, b[i].value) {
				return
			}
		}
	}
}

// Keys calls yield for every key in the table. See All for the iteration
// contract.
func (h *Hashtable[K, V]) Keys(yield func(key K) bool) {
	h.All(func(k K, _ V) bool {
		return yield(k)
	})
}

// Values calls yield for every value in the table. See All for the iteration
// contract.
func (h *Hashtable[K, V]) Values(yield func(value V) bool) {
	h.All(func(_ K, v V) bool {
		return yield(v)
	})
}

// Clone returns a shallow copy of the table: a new table of the same
// capacity with every entry re-inserted. The clone owns an independent
// bucket array but shares any referenced keys and values with the original.
func (h *Hashtable[K, V]) Clone() *Hashtable[K, V] {
	b := *h.buckets.Load()
	c := &Hashtable[K, V]{
		loadFactor: h.loadFactor,
		cmp:        h.cmp,
		pool:       h.pool,
	}
	c.init(len(b))
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].state == slotOccupied {
			c.Put(b[i].key, b[i].value)
		}
	}
	return c
}

func (h *Hashtable[K, V]) checkInvariants() {
	if invariants {
		b := *h.buckets.Load()
		if h.loadsize >= len(b) {
			panic(fmt.Sprintf("invariant failed: loadsize %d >= capacity %d", h.loadsize, len(b)))
		}
		var count, marked int
		for i := range b {
			s := &b[i]
			switch s.state {
			case slotEmpty:
				if s.hashColl != 0 {
					panic(fmt.Sprintf("invariant failed: empty slot %d has hash word %08x\n%s",
						i, s.hashColl, h.debugString()))
				}
			case slotTombstone:
				if s.hashColl != collisionBit {
					panic(fmt.Sprintf("invariant failed: tombstone %d has hash word %08x\n%s",
						i, s.hashColl, h.debugString()))
				}
			case slotOccupied:
				count++
				if _, ok := h.Get(s.key); !ok {
					panic(fmt.Sprintf("invariant failed: slot %d: %v not found\n%s",
						i, s.key, h.debugString()))
				}
			}
			if s.hashColl&collisionBit != 0 {
				marked++
			}
		}
		if count != h.count {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but count is %d\n%s",
				count, h.count, h.debugString()))
		}
		if marked != h.occupancy {
			panic(fmt.Sprintf("invariant failed: found %d collision marks, but occupancy is %d\n%s",
				marked, h.occupancy, h.debugString()))
		}
	}
}

func (h *Hashtable[K, V]) debugString() string {
	var buf strings.Builder
	b := *h.buckets.Load()
	fmt.Fprintf(&buf, "capacity=%d count=%d occupancy=%d loadsize=%d\n",
		len(b), h.count, h.occupancy, h.loadsize)
	for i := range b {
		s := &b[i]
		switch s.state {
		case slotEmpty:
			if s.hashColl != 0 {
				fmt.Fprintf(&buf, "  %4d: empty [hash=%08x]\n", i, s.hashColl)
			}
		case slotTombstone:
			fmt.Fprintf(&buf, "  %4d: tombstone\n", i)
		case slotOccupied:
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x coll=%t]\n",
				i, s.key, s.hashColl&hashMask, s.hashColl&collisionBit != 0)
		}
	}
	return buf.String()
}
