// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"strconv"
	"strings"
)

const maxReadLen = 16 << 20

type readRange struct {
	va uint64
	n  int
}

// parseReadRange parses VA:LEN. Both parts accept Go integer literal
// prefixes, so 0x401000:0x40 and 4198400:64 are equivalent.
func parseReadRange(arg string) (readRange, error) {
	vaStr, lenStr, ok := strings.Cut(arg, ":")
	if !ok {
		return readRange{}, fmt.Errorf("invalid read range %q: want VA:LEN", arg)
	}

	va, err := strconv.ParseUint(vaStr, 0, 64)
	if err != nil {
		return readRange{}, fmt.Errorf("invalid read range %q: bad address: %w", arg, err)
	}
	n, err := strconv.ParseUint(lenStr, 0, 32)
	if err != nil {
		return readRange{}, fmt.Errorf("invalid read range %q: bad length: %w", arg, err)
	}
	if n == 0 || n > maxReadLen {
		return readRange{}, fmt.Errorf("invalid read range %q: length must be between 1 and %d", arg, maxReadLen)
	}
	return readRange{va: va, n: int(n)}, nil
}
