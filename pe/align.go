// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

func isPowerOfTwo[V constraints.Unsigned](v V) bool {
	return bits.OnesCount64(uint64(v)) == 1
}

// alignDown requires powerOfTwo to be a power of two.
func alignDown[V constraints.Unsigned](v V, powerOfTwo V) V {
	return v &^ (powerOfTwo - 1)
}
