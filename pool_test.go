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
	"testing"

	"github.com/stretchr/testify/require"
)

type countingPool[K comparable, V any] struct {
	rents   int
	returns int
}

func (p *countingPool[K, V]) Rent(n int) []Bucket[K, V] {
	p.rents++
	return make([]Bucket[K, V], n)
}

func (p *countingPool[K, V]) Return(b []Bucket[K, V]) {
	p.returns++
}

func TestPoolRentReturn(t *testing.T) {
	p := &countingPool[int, int]{}
	h := New[int, int](0, WithPool[int, int](p))

	for i := 0; i < 100; i++ {
		h.Put(i, i)
	}

	// 3 -> 7 -> 17 -> 37 -> 79 -> 163
	const expected = 6
	require.EqualValues(t, expected, p.rents)
	require.EqualValues(t, expected-1, p.returns)

	h.Close()

	require.EqualValues(t, expected, p.returns)
}

func TestSharedPoolReuse(t *testing.T) {
	p := NewSharedPool[string, int]()

	h1 := New[string, int](0, WithPool[string, int](p))
	h1.Put("a", 1)
	h1.Close()

	// The second table rents the same minimum-size array back off the free
	// list, zeroed.
	h2 := New[string, int](0, WithPool[string, int](p))
	defer h2.Close()
	require.EqualValues(t, 0, h2.Len())
	_, ok := h2.Get("a")
	require.False(t, ok)

	rents, reuses := p.Stats()
	require.EqualValues(t, 2, rents)
	require.EqualValues(t, 1, reuses)
}

func TestSharedPoolRetentionBound(t *testing.T) {
	p := NewSharedPool[int, int]()
	for i := 0; i < 3*maxPooledPerSize; i++ {
		p.Return(make([]Bucket[int, int], initialSize))
	}
	require.Len(t, p.free[initialSize], maxPooledPerSize)

	// Rents beyond the retained arrays fall back to fresh allocation.
	for i := 0; i < 2*maxPooledPerSize; i++ {
		b := p.Rent(initialSize)
		require.Len(t, b, initialSize)
	}
	rents, reuses := p.Stats()
	require.EqualValues(t, 2*maxPooledPerSize, rents)
	require.EqualValues(t, maxPooledPerSize, reuses)
}

func TestHashtableWithSharedPool(t *testing.T) {
	p := NewSharedPool[int, int]()
	h := New[int, int](0, WithPool[int, int](p))
	defer h.Close()

	e := make(map[int]int)
	for i := 0; i < 1000; i++ {
		h.Put(i, i)
		e[i] = i
	}
	for i := 0; i < 1000; i += 3 {
		h.Delete(i)
		delete(e, i)
	}
	require.Equal(t, e, h.toBuiltinMap())

	// Growth returned the smaller arrays to the pool; a new table of the
	// same shape rents them back.
	h2 := New[int, int](0, WithPool[int, int](p))
	defer h2.Close()
	_, reuses := p.Stats()
	require.Greater(t, reuses, uint64(0))
}
