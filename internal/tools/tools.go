// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

//go:build tools

// Package tools pins the code generators used by go:generate directives.
package tools

import (
	_ "golang.org/x/tools/cmd/stringer"
)
