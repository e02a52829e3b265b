// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"bytes"
	dpe "debug/pe"
	"io"

	"golang.org/x/text/encoding/charmap"

	"github.com/dblohm7/peview/internal/buf"
)

const (
	sizeSectionHeader  = 40
	defaultMaxSections = 4096
)

// SectionHeader is a decoded section table entry. Name is kept verbatim and
// is not necessarily NUL-terminated.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

func decodeSectionHeader(b []byte) SectionHeader {
	var s SectionHeader
	copy(s.Name[:], b[:8])
	s.VirtualSize = buf.U32LE(b[8:])
	s.VirtualAddress = buf.U32LE(b[12:])
	s.SizeOfRawData = buf.U32LE(b[16:])
	s.PointerToRawData = buf.U32LE(b[20:])
	s.PointerToRelocations = buf.U32LE(b[24:])
	s.PointerToLinenumbers = buf.U32LE(b[28:])
	s.NumberOfRelocations = buf.U16LE(b[32:])
	s.NumberOfLinenumbers = buf.U16LE(b[34:])
	s.Characteristics = buf.U32LE(b[36:])
	return s
}

// readSectionTable reads count consecutive descriptors from r.
func readSectionTable(r io.Reader, count, limit int) ([]SectionHeader, error) {
	if count == 0 || count > limit {
		return nil, formatErrorf("section table", nil, "implausible section count %d", count)
	}

	table := make([]byte, count*sizeSectionHeader)
	if _, err := io.ReadFull(r, table); err != nil {
		return nil, formatErrorf("section table", err, "reading %d descriptors", count)
	}

	sections := make([]SectionHeader, count)
	for i := range sections {
		sections[i] = decodeSectionHeader(table[i*sizeSectionHeader:])
	}
	return sections, nil
}

// NameString returns the section name up to the first NUL. Bytes outside
// ASCII are decoded as Windows-1252.
func (s *SectionHeader) NameString() string {
	name := s.Name[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(name)
	if err != nil {
		return string(name)
	}
	return string(decoded)
}

// EffectiveSize is the extent of the section's virtual range. Some sections
// (resource data in particular) declare a VirtualSize of zero, so the larger
// of VirtualSize and SizeOfRawData is used.
func (s *SectionHeader) EffectiveSize() uint32 {
	return max(s.VirtualSize, s.SizeOfRawData)
}

// containsRVA reports whether rva falls within [VirtualAddress,
// VirtualAddress+EffectiveSize).
func (s *SectionHeader) containsRVA(rva uint64) bool {
	start := uint64(s.VirtualAddress)
	return rva >= start && rva-start < uint64(s.EffectiveSize())
}

// Permissions renders the section's memory access flags as "rwx", with '-'
// for each missing permission.
func (s *SectionHeader) Permissions() string {
	perm := []byte("---")
	if s.Characteristics&dpe.IMAGE_SCN_MEM_READ != 0 {
		perm[0] = 'r'
	}
	if s.Characteristics&dpe.IMAGE_SCN_MEM_WRITE != 0 {
		perm[1] = 'w'
	}
	if s.Characteristics&dpe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perm[2] = 'x'
	}
	return string(perm)
}
