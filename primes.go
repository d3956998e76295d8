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

const (
	// initialSize is the smallest table capacity. Prime.
	initialSize = 3

	// maxPrimeCapacity is the largest supported capacity: the biggest prime
	// below 2^31 that still leaves headroom for the bucket array length to
	// fit in an int32. Growth saturates here instead of overflowing.
	maxPrimeCapacity = 0x7FEFFFFD
)

// isPrime reports whether n is prime, by trial division. Capacities are
// computed rarely (once per growth), so there is no need for anything
// cleverer.
func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// nextPrime returns the smallest prime >= min, but never less than
// initialSize. The probe sequence relies on prime capacities: the derived
// step is then coprime with the capacity and the sequence visits every slot
// exactly once.
func nextPrime(min int) int {
	if min <= initialSize {
		return initialSize
	}
	// Skip even candidates; min > 3 here so the answer is odd.
	n := min | 1
	for !isPrime(n) {
		n += 2
	}
	return n
}

// expandPrime returns the capacity to grow to from oldsize: the smallest
// prime at least twice oldsize, saturating at maxPrimeCapacity.
func expandPrime(oldsize int) int {
	newsize := 2 * oldsize
	if newsize >= maxPrimeCapacity {
		return maxPrimeCapacity
	}
	return nextPrime(newsize)
}
