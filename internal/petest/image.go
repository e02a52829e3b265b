// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package petest builds small synthetic PE images for tests.
package petest

import "encoding/binary"

// LfaNew is the file offset at which Image.Bytes places the PE signature.
const LfaNew = 0x80

// MS-DOS header values written by Image.Bytes, as a typical linker emits
// them.
const (
	DOSLastBlockBytes        = 0x90
	DOSFileBlocks            = 3
	DOSHeaderParagraphs      = 4
	DOSRelocationTableOffset = 0x40
)

const (
	// NoOptionalHeader declares a SizeOfOptionalHeader of zero.
	NoOptionalHeader = -1
	// NoSections declares a NumberOfSections of zero.
	NoSections = -1
)

const (
	Magic32     = 0x010B
	Magic32Plus = 0x020B
	MagicROM    = 0x0107

	MachineI386  = 0x014C
	MachineAMD64 = 0x8664
)

// Section describes one section. Data is written at PointerToRawData and may
// be shorter than SizeOfRawData to simulate a truncated file.
type Section struct {
	Name             string
	VirtualAddress   uint32
	VirtualSize      uint32
	PointerToRawData uint32
	SizeOfRawData    uint32
	Characteristics  uint32
	Data             []byte
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// Image describes a PE image to synthesize. Zero fields take defaults that
// produce a well-formed PE32 image for the I386 machine.
type Image struct {
	Machine          uint16
	Magic            uint16
	TimeDateStamp    uint32
	ImageBase        uint64
	SectionAlignment uint32
	FileAlignment    uint32
	EntryPoint       uint32

	// NumberOfRvaAndSizes defaults to len(DataDirectories), or 16 when
	// DataDirectories is nil.
	NumberOfRvaAndSizes uint32
	DataDirectories     []DataDirectory

	// OptionalHeaderSize overrides SizeOfOptionalHeader; the header is
	// truncated or zero-padded to match. Zero selects the full size.
	OptionalHeaderSize int
	// NumberOfSections overrides the declared section count. Zero
	// selects len(Sections).
	NumberOfSections int

	Sections []Section
}

func (img *Image) is64() bool {
	return img.Magic == Magic32Plus
}

// OptionalHeader returns the optional header bytes, already truncated or
// padded to the declared size.
func (img *Image) OptionalHeader() []byte {
	magic := img.Magic
	if magic == 0 {
		magic = Magic32
	}
	imageBase := img.ImageBase
	if imageBase == 0 {
		imageBase = 0x400000
	}
	sectionAlign := img.SectionAlignment
	if sectionAlign == 0 {
		sectionAlign = 0x1000
	}
	fileAlign := img.FileAlignment
	if fileAlign == 0 {
		fileAlign = 0x200
	}

	nDirs := 16
	if img.DataDirectories != nil {
		nDirs = len(img.DataDirectories)
	}
	declaredDirs := img.NumberOfRvaAndSizes
	if declaredDirs == 0 {
		declaredDirs = uint32(nDirs)
	}

	fixed := 96
	if img.is64() {
		fixed = 112
	}
	oh := make([]byte, fixed+8*nDirs)
	le := binary.LittleEndian

	le.PutUint16(oh[0:], magic)
	oh[2], oh[3] = 14, 0
	le.PutUint32(oh[4:], 0x1000)
	le.PutUint32(oh[8:], 0x800)
	le.PutUint32(oh[12:], 0)
	le.PutUint32(oh[16:], img.EntryPoint)
	le.PutUint32(oh[20:], 0x1000)

	le.PutUint32(oh[32:], sectionAlign)
	le.PutUint32(oh[36:], fileAlign)
	le.PutUint16(oh[40:], 6)
	le.PutUint16(oh[42:], 0)
	le.PutUint16(oh[44:], 1)
	le.PutUint16(oh[46:], 2)
	le.PutUint16(oh[48:], 6)
	le.PutUint16(oh[50:], 1)
	le.PutUint32(oh[56:], img.sizeOfImage(sectionAlign))
	le.PutUint32(oh[60:], 0x400)
	le.PutUint32(oh[64:], 0)
	le.PutUint16(oh[68:], 3)
	le.PutUint16(oh[70:], 0x8160)

	if img.is64() {
		le.PutUint64(oh[24:], imageBase)
		le.PutUint64(oh[72:], 0x100000)
		le.PutUint64(oh[80:], 0x1000)
		le.PutUint64(oh[88:], 0x100000)
		le.PutUint64(oh[96:], 0x1000)
		le.PutUint32(oh[104:], 0)
		le.PutUint32(oh[108:], declaredDirs)
	} else {
		le.PutUint32(oh[24:], 0x2000)
		le.PutUint32(oh[28:], uint32(imageBase))
		le.PutUint32(oh[72:], 0x100000)
		le.PutUint32(oh[76:], 0x1000)
		le.PutUint32(oh[80:], 0x100000)
		le.PutUint32(oh[84:], 0x1000)
		le.PutUint32(oh[88:], 0)
		le.PutUint32(oh[92:], declaredDirs)
	}

	for i := 0; i < nDirs && img.DataDirectories != nil; i++ {
		d := img.DataDirectories[i]
		le.PutUint32(oh[fixed+8*i:], d.VirtualAddress)
		le.PutUint32(oh[fixed+8*i+4:], d.Size)
	}

	switch size := img.OptionalHeaderSize; {
	case size == NoOptionalHeader:
		return oh[:0]
	case size == 0:
		return oh
	case size <= len(oh):
		return oh[:size]
	default:
		return append(oh, make([]byte, size-len(oh))...)
	}
}

func (img *Image) sizeOfImage(align uint32) uint32 {
	end := uint32(0x1000)
	for _, s := range img.Sections {
		if e := s.VirtualAddress + max(s.VirtualSize, s.SizeOfRawData); e > end {
			end = e
		}
	}
	return (end + align - 1) &^ (align - 1)
}

// Bytes renders the image: an MZ header pointing at LfaNew, the PE signature,
// the COFF file header, the optional header, the section table and finally
// each section's Data at its PointerToRawData.
func (img *Image) Bytes() []byte {
	le := binary.LittleEndian
	oh := img.OptionalHeader()

	machine := img.Machine
	if machine == 0 {
		machine = MachineI386
	}
	nsec := len(img.Sections)
	switch img.NumberOfSections {
	case 0:
	case NoSections:
		nsec = 0
	default:
		nsec = img.NumberOfSections
	}
	characteristics := uint16(0x0102)
	if img.is64() {
		characteristics = 0x0022
	}

	out := make([]byte, LfaNew+4+20)
	out[0], out[1] = 'M', 'Z'
	le.PutUint16(out[0x02:], DOSLastBlockBytes)
	le.PutUint16(out[0x04:], DOSFileBlocks)
	le.PutUint16(out[0x08:], DOSHeaderParagraphs)
	le.PutUint16(out[0x0C:], 0xFFFF)
	le.PutUint16(out[0x10:], 0xB8)
	le.PutUint16(out[0x18:], DOSRelocationTableOffset)
	le.PutUint32(out[0x3C:], LfaNew)

	copy(out[LfaNew:], "PE\x00\x00")
	fh := out[LfaNew+4:]
	le.PutUint16(fh[0:], machine)
	le.PutUint16(fh[2:], uint16(nsec))
	le.PutUint32(fh[4:], img.TimeDateStamp)
	le.PutUint16(fh[16:], uint16(len(oh)))
	le.PutUint16(fh[18:], characteristics)

	out = append(out, oh...)
	for _, s := range img.Sections {
		var sh [40]byte
		copy(sh[:8], s.Name)
		le.PutUint32(sh[8:], s.VirtualSize)
		le.PutUint32(sh[12:], s.VirtualAddress)
		le.PutUint32(sh[16:], s.SizeOfRawData)
		le.PutUint32(sh[20:], s.PointerToRawData)
		le.PutUint32(sh[36:], s.Characteristics)
		out = append(out, sh[:]...)
	}

	for _, s := range img.Sections {
		end := int(s.PointerToRawData) + len(s.Data)
		if end > len(out) {
			out = append(out, make([]byte, end-len(out))...)
		}
		copy(out[s.PointerToRawData:], s.Data)
	}
	return out
}

// Pattern returns n bytes of a deterministic, non-repeating-per-page
// pattern seeded by seed.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) ^ byte(i>>8) ^ seed
	}
	return b
}
