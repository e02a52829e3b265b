// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Page is one section-alignment-sized chunk of an image's virtual address
// space. Pages are immutable once created.
type Page struct {
	Base uint64 // page-aligned virtual address
	data []byte
}

// Bytes returns the page contents. The returned slice must not be modified.
func (p *Page) Bytes() []byte {
	return p.data
}

// PageCache stores loaded pages keyed by their base address. AddressSpace
// serializes all calls, so implementations need not be safe for concurrent
// use. An implementation may drop pages at any time; they are reloaded on
// demand.
type PageCache interface {
	Lookup(base uint64) (*Page, bool)
	// Insert adds p, replacing any page with the same base.
	Insert(p *Page)
	Len() int
	// Bases lists the cached page bases in ascending order.
	Bases() []uint64
}

// MapCache is the default PageCache. It never evicts: an image inspection
// session is short-lived and bounded by the image's SizeOfImage.
type MapCache struct {
	pages map[uint64]*Page
}

func NewMapCache() *MapCache {
	return &MapCache{pages: make(map[uint64]*Page)}
}

func (c *MapCache) Lookup(base uint64) (*Page, bool) {
	p, ok := c.pages[base]
	return p, ok
}

func (c *MapCache) Insert(p *Page) {
	c.pages[p.Base] = p
}

func (c *MapCache) Len() int {
	return len(c.pages)
}

// Bases returns the base addresses of all cached pages in ascending order.
func (c *MapCache) Bases() []uint64 {
	bases := maps.Keys(c.pages)
	slices.Sort(bases)
	return bases
}
