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
	"hash/maphash"

	"github.com/cespare/xxhash/v2"
)

// Comparer defines the hash and equality semantics for a Hashtable's keys.
// Implementations must guarantee that Equal(a, b) implies
// Hash(a) == Hash(b).
type Comparer[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

// StringComparer hashes string keys with xxHash and compares them with ==.
// It is the default comparer when K is string.
type StringComparer struct{}

func (StringComparer) Hash(key string) uint64 { return xxhash.Sum64String(key) }

func (StringComparer) Equal(a, b string) bool { return a == b }

// maphashComparer hashes any comparable key with the runtime's maphash,
// using a per-table random seed.
type maphashComparer[K comparable] struct {
	seed maphash.Seed
}

func (c maphashComparer[K]) Hash(key K) uint64 { return maphash.Comparable(c.seed, key) }

func (c maphashComparer[K]) Equal(a, b K) bool { return a == b }

func defaultComparer[K comparable]() Comparer[K] {
	var zero K
	if _, ok := any(zero).(string); ok {
		return any(StringComparer{}).(Comparer[K])
	}
	return maphashComparer[K]{seed: maphash.MakeSeed()}
}
