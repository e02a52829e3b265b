// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"io"

	"github.com/dblohm7/peview/internal/buf"
)

const (
	offsetIMAGE_DOS_HEADERe_lfanew = 60
	sizeIMAGE_DOS_HEADER           = 64

	dosBlockSize     = 512
	dosParagraphSize = 16
	dosRelocSize     = 4
)

// DOSHeader is the MS-DOS EXE header that precedes every PE image, together
// with the pointer to the PE signature stored at offset 0x3C.
type DOSHeader struct {
	Magic                 uint16
	LastBlockBytes        uint16
	FileBlocks            uint16
	NumberOfRelocations   uint16
	HeaderParagraphs      uint16
	MinAllocParagraphs    uint16
	MaxAllocParagraphs    uint16
	InitialSS             uint16
	InitialSP             uint16
	Checksum              uint16
	InitialIP             uint16
	InitialCS             uint16
	RelocationTableOffset uint16
	OverlayNumber         uint16
	NewHeaderOffset       int32 // e_lfanew
}

func decodeDOSHeader(b []byte) DOSHeader {
	return DOSHeader{
		Magic:                 buf.U16LE(b),
		LastBlockBytes:        buf.U16LE(b[0x02:]),
		FileBlocks:            buf.U16LE(b[0x04:]),
		NumberOfRelocations:   buf.U16LE(b[0x06:]),
		HeaderParagraphs:      buf.U16LE(b[0x08:]),
		MinAllocParagraphs:    buf.U16LE(b[0x0A:]),
		MaxAllocParagraphs:    buf.U16LE(b[0x0C:]),
		InitialSS:             buf.U16LE(b[0x0E:]),
		InitialSP:             buf.U16LE(b[0x10:]),
		Checksum:              buf.U16LE(b[0x12:]),
		InitialIP:             buf.U16LE(b[0x14:]),
		InitialCS:             buf.U16LE(b[0x16:]),
		RelocationTableOffset: buf.U16LE(b[0x18:]),
		OverlayNumber:         buf.U16LE(b[0x1A:]),
		NewHeaderOffset:       int32(buf.U32LE(b[offsetIMAGE_DOS_HEADERe_lfanew:])),
	}
}

// ResidentSize is the number of bytes DOS would load, derived from the
// block count and the byte count of the last, possibly partial, block.
func (h *DOSHeader) ResidentSize() uint32 {
	n := uint32(h.FileBlocks) * dosBlockSize
	if h.LastBlockBytes != 0 && h.FileBlocks != 0 {
		n = n - dosBlockSize + uint32(h.LastBlockBytes)
	}
	return n
}

func (h *DOSHeader) HeaderSize() uint32 {
	return uint32(h.HeaderParagraphs) * dosParagraphSize
}

func (h *DOSHeader) RelocationTableSize() uint32 {
	return uint32(h.NumberOfRelocations) * dosRelocSize
}

// MinAlloc and MaxAlloc are the extra memory requested beyond the load
// image, in bytes.
func (h *DOSHeader) MinAlloc() uint32 {
	return uint32(h.MinAllocParagraphs) * dosParagraphSize
}

func (h *DOSHeader) MaxAlloc() uint32 {
	return uint32(h.MaxAllocParagraphs) * dosParagraphSize
}

// CanContainExtension reports whether the header is large enough to hold
// the pointer at 0x3C without it overlapping the relocation table.
func (h *DOSHeader) CanContainExtension() bool {
	return h.HeaderSize() >= sizeIMAGE_DOS_HEADER &&
		h.RelocationTableOffset >= sizeIMAGE_DOS_HEADER
}

// ReadDOSHeader decodes the MS-DOS header at the start of r. It fails with a
// *FormatError when the MZ signature is missing, when the header cannot
// contain the pointer to the PE signature, or when that pointer is not
// positive. NewFile validates what is found at the pointer.
func ReadDOSHeader(r io.ReaderAt) (DOSHeader, error) {
	const op = "DOS header"

	var raw [sizeIMAGE_DOS_HEADER]byte
	if n, err := r.ReadAt(raw[:], 0); n != len(raw) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return DOSHeader{}, formatErrorf(op, err, "reading %d bytes", len(raw))
	}
	if raw[0] != 'M' || raw[1] != 'Z' {
		return DOSHeader{}, formatErrorf(op, nil, "missing MZ signature")
	}

	h := decodeDOSHeader(raw[:])
	if !h.CanContainExtension() {
		return DOSHeader{}, formatErrorf(op, nil,
			"header of %d paragraphs with relocations at 0x%X cannot contain e_lfanew",
			h.HeaderParagraphs, h.RelocationTableOffset)
	}
	if h.NewHeaderOffset <= 0 {
		return DOSHeader{}, formatErrorf(op, nil, "bad e_lfanew %d", h.NewHeaderOffset)
	}
	return h, nil
}

// HeaderOffset follows the legacy MZ stub of an executable to the file
// offset of its PE signature.
func HeaderOffset(r io.ReaderAt) (int64, error) {
	h, err := ReadDOSHeader(r)
	if err != nil {
		return 0, err
	}
	return int64(h.NewHeaderOffset), nil
}
