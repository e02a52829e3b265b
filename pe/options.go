// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import "github.com/hashicorp/go-hclog"

const defaultMaxOptionalHeaderSize = 16 << 10

// Options configures parsing and the address space built on top of it.
// A nil *Options, or any zero field, selects the default.
type Options struct {
	// Logger receives debug and trace output. Defaults to a null logger.
	Logger hclog.Logger
	// NewCache constructs the page cache when an address space is first
	// read. Defaults to NewMapCache.
	NewCache func() PageCache
	// MaxSections bounds the declared section count. Defaults to 4096.
	MaxSections int
	// MaxOptionalHeaderSize bounds SizeOfOptionalHeader. Defaults to 16 KiB.
	MaxOptionalHeaderSize int
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = hclog.NewNullLogger()
	}
	if out.NewCache == nil {
		out.NewCache = func() PageCache { return NewMapCache() }
	}
	if out.MaxSections <= 0 {
		out.MaxSections = defaultMaxSections
	}
	if out.MaxOptionalHeaderSize <= 0 {
		out.MaxOptionalHeaderSize = defaultMaxOptionalHeaderSize
	}
	return out
}
