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

func TestIsPrime(t *testing.T) {
	primes := map[int]bool{
		2: true, 3: true, 5: true, 7: true, 11: true, 101: true,
		139: true, 331: true, 673: true, maxPrimeCapacity: true,
		0: false, 1: false, 4: false, 9: false, 15: false,
		21: false, 1001: false,
	}
	for n, want := range primes {
		require.Equal(t, want, isPrime(n), "isPrime(%d)", n)
	}
}

func TestNextPrime(t *testing.T) {
	testCases := []struct {
		min      int
		expected int
	}{
		{0, 3},
		{1, 3},
		{3, 3},
		{4, 5},
		{6, 7},
		{8, 11},
		{14, 17},
		{100, 101},
		{102, 103},
		{1000, 1009},
	}
	for _, c := range testCases {
		got := nextPrime(c.min)
		require.EqualValues(t, c.expected, got, "nextPrime(%d)", c.min)
		require.True(t, isPrime(got))
	}
}

func TestExpandPrime(t *testing.T) {
	testCases := []struct {
		oldsize  int
		expected int
	}{
		{3, 7},
		{7, 17},
		{17, 37},
		{37, 79},
		{79, 163},
		{163, 331},
		{maxPrimeCapacity / 2, maxPrimeCapacity},
		{maxPrimeCapacity, maxPrimeCapacity},
	}
	for _, c := range testCases {
		got := expandPrime(c.oldsize)
		require.EqualValues(t, c.expected, got, "expandPrime(%d)", c.oldsize)
		require.True(t, isPrime(got))
		if 2*c.oldsize < maxPrimeCapacity {
			require.GreaterOrEqual(t, got, 2*c.oldsize)
		}
	}
}
