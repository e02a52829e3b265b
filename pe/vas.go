// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

const maxPageSize = 16 << 20

// AddressSpace serves reads from an image's virtual address space. Pages
// are materialized on demand from section raw data, or synthesized as zeros
// where a section's virtual extent exceeds its raw data, and cached for the
// lifetime of the owning File. It is safe for concurrent use.
type AddressSpace struct {
	imageBase uint64
	pageSize  uint64
	sections  []SectionHeader
	src       *source
	log       hclog.Logger
	newCache  func() PageCache
	zero      []byte

	mu    sync.Mutex
	cache PageCache

	loads     atomic.Uint64
	zeroPages atomic.Uint64
}

func newAddressSpace(f *File) (*AddressSpace, error) {
	const op = "address space"

	plat := &f.optionalHeader.Platform
	imageBase, ok := plat.ImageBase.Get()
	if !ok {
		return nil, formatErrorf(op, ErrNotPresent, "image base")
	}
	align, ok := plat.SectionAlignment.Get()
	if !ok {
		return nil, formatErrorf(op, ErrNotPresent, "section alignment")
	}
	if !isPowerOfTwo(align) || align > maxPageSize {
		return nil, formatErrorf(op, nil, "section alignment 0x%X is not a usable page size", align)
	}

	return &AddressSpace{
		imageBase: imageBase,
		pageSize:  uint64(align),
		sections:  f.Sections(),
		src:       f.src,
		log:       f.log.Named("vas"),
		newCache:  f.opts.NewCache,
		zero:      make([]byte, align),
	}, nil
}

func (as *AddressSpace) ImageBase() uint64 {
	return as.imageBase
}

// PageSize returns the page granularity, which equals the image's section
// alignment.
func (as *AddressSpace) PageSize() uint64 {
	return as.pageSize
}

// Translate converts va to an RVA.
func (as *AddressSpace) Translate(va uint64) (uint64, error) {
	if va < as.imageBase {
		return 0, &TranslationError{VA: va, ImageBase: as.imageBase}
	}
	return va - as.imageBase, nil
}

// FindSection returns the first section, in table order, whose virtual range
// contains va. Overlapping sections are not diagnosed; the earlier entry
// wins. The result must not be modified.
func (as *AddressSpace) FindSection(va uint64) (*SectionHeader, error) {
	rva, err := as.Translate(va)
	if err != nil {
		return nil, err
	}
	for i := range as.sections {
		if as.sections[i].containsRVA(rva) {
			return &as.sections[i], nil
		}
	}
	return nil, ErrNotMapped
}

// Read returns up to n bytes starting at virtual address va.
//
// Reading stops early, without error, at the first page not covered by any
// section; probing unmapped addresses therefore yields a short or empty
// result. A va below the image base yields a *TranslationError and no
// bytes. A failure of the underlying file yields the bytes read so far and
// an *IOError.
func (as *AddressSpace) Read(va uint64, n int) ([]byte, error) {
	if _, err := as.Translate(va); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, min(uint64(n), 4*as.pageSize))
	for len(out) < n {
		cur := va + uint64(len(out))
		if cur < va {
			// Wrapped past the top of the address space.
			break
		}

		base := alignDown(cur, as.pageSize)
		p, err := as.page(base)
		if err != nil {
			if errors.Is(err, ErrNotMapped) {
				as.log.Trace("read stopped at unmapped page", "va", hclog.Fmt("0x%X", cur))
				break
			}
			return out, err
		}

		chunk := p.data[cur-base:]
		if want := n - len(out); len(chunk) > want {
			chunk = chunk[:want]
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// page returns the page at base, loading it on a cache miss. The lookup and
// the insert are each serialized by mu; two goroutines missing on the same
// page may both load it, which is harmless because pages are immutable.
func (as *AddressSpace) page(base uint64) (*Page, error) {
	as.mu.Lock()
	if as.cache == nil {
		as.cache = as.newCache()
	}
	p, ok := as.cache.Lookup(base)
	as.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := as.load(base)
	if err != nil {
		return nil, err
	}

	as.mu.Lock()
	if as.cache == nil {
		as.cache = as.newCache()
	}
	as.cache.Insert(p)
	as.mu.Unlock()
	return p, nil
}

func (as *AddressSpace) load(base uint64) (*Page, error) {
	s, err := as.FindSection(base)
	if err != nil {
		return nil, err
	}

	off := base - as.imageBase - uint64(s.VirtualAddress)
	if off >= uint64(s.SizeOfRawData) {
		as.zeroPages.Add(1)
		as.log.Trace("synthesized zero page",
			"base", hclog.Fmt("0x%X", base),
			"section", s.NameString())
		return &Page{Base: base, data: as.zero}, nil
	}

	data := make([]byte, as.pageSize)
	n := min(as.pageSize, uint64(s.SizeOfRawData)-off)
	foff := int64(s.PointerToRawData) + int64(off)
	if err := as.src.readFull(data[:n], foff); err != nil {
		as.log.Debug("page load failed",
			"base", hclog.Fmt("0x%X", base),
			"offset", hclog.Fmt("0x%X", foff),
			"error", err)
		return nil, &IOError{VA: base, Offset: foff, Err: err}
	}

	as.loads.Add(1)
	as.log.Trace("loaded page",
		"base", hclog.Fmt("0x%X", base),
		"section", s.NameString(),
		"offset", hclog.Fmt("0x%X", foff),
		"bytes", n)
	return &Page{Base: base, data: data}, nil
}

// Stats describes the work an AddressSpace has done so far.
type Stats struct {
	Pages     int    // pages currently cached
	Loads     uint64 // pages read from the file
	ZeroPages uint64 // pages synthesized without file I/O
}

func (as *AddressSpace) Stats() Stats {
	as.mu.Lock()
	var pages int
	if as.cache != nil {
		pages = as.cache.Len()
	}
	as.mu.Unlock()

	return Stats{
		Pages:     pages,
		Loads:     as.loads.Load(),
		ZeroPages: as.zeroPages.Load(),
	}
}

// CachedPages returns the base addresses of the pages currently cached, in
// ascending order.
func (as *AddressSpace) CachedPages() []uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.cache == nil {
		return nil
	}
	return as.cache.Bases()
}

func (as *AddressSpace) reset() {
	as.mu.Lock()
	as.cache = nil
	as.mu.Unlock()
}

// ReaderAt adapts as to io.ReaderAt, interpreting offsets as virtual
// addresses. A short read reports io.EOF unless a more specific error
// occurred.
func (as *AddressSpace) ReaderAt() io.ReaderAt {
	return vaReader{as}
}

type vaReader struct {
	as *AddressSpace
}

func (r vaReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, os.ErrInvalid
	}
	b, err := r.as.Read(uint64(off), len(p))
	n := copy(p, b)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
