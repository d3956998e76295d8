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

import "fmt"

// option provides an interface to configure a Hashtable while it is being
// created.
type option[K comparable, V any] interface {
	apply(h *Hashtable[K, V])
}

type loadFactorOption[K comparable, V any] struct {
	loadFactor float64
}

func (op loadFactorOption[K, V]) apply(h *Hashtable[K, V]) {
	h.loadFactor = loadFactorScale * op.loadFactor
}

// WithLoadFactor is an option to set the target ratio of entries to capacity
// before the table grows, in [0.1, 1.0]. The effective ratio is scaled by an
// internal tuning constant. WithLoadFactor panics on an out-of-range value.
// The default load factor is 1.0.
func WithLoadFactor[K comparable, V any](loadFactor float64) option[K, V] {
	if loadFactor < 0.1 || loadFactor > 1.0 {
		panic(fmt.Sprintf("uno: load factor %v out of range [0.1, 1.0]", loadFactor))
	}
	return loadFactorOption[K, V]{loadFactor}
}

type comparerOption[K comparable, V any] struct {
	cmp Comparer[K]
}

func (op comparerOption[K, V]) apply(h *Hashtable[K, V]) {
	h.cmp = op.cmp
}

// WithComparer is an option to specify the hash/equality strategy for a
// Hashtable's keys, replacing the default comparer.
func WithComparer[K comparable, V any](cmp Comparer[K]) option[K, V] {
	return comparerOption[K, V]{cmp}
}

type poolOption[K comparable, V any] struct {
	pool Pool[K, V]
}

func (op poolOption[K, V]) apply(h *Hashtable[K, V]) {
	h.pool = op.pool
}

// WithPool is an option to specify the Pool that supplies a Hashtable's
// bucket array storage.
func WithPool[K comparable, V any](pool Pool[K, V]) option[K, V] {
	return poolOption[K, V]{pool}
}
