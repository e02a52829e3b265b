// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"bytes"

	"golang.org/x/exp/slices"
)

// StandardFields is the field group common to every optional header
// variant. BaseOfData does not exist in PE32Plus headers.
type StandardFields struct {
	MajorLinkerVersion      Field[uint8]
	MinorLinkerVersion      Field[uint8]
	SizeOfCode              Field[uint32]
	SizeOfInitializedData   Field[uint32]
	SizeOfUninitializedData Field[uint32]
	AddressOfEntryPoint     Field[uint32]
	BaseOfCode              Field[uint32]
	BaseOfData              Field[uint32]
}

// PlatformFields is the Windows-specific field group. ImageBase and the
// stack and heap sizes are 32 bits wide in PE32 headers and 64 bits wide in
// PE32Plus headers; both are widened to uint64 here.
type PlatformFields struct {
	ImageBase                   Field[uint64]
	SectionAlignment            Field[uint32]
	FileAlignment               Field[uint32]
	MajorOperatingSystemVersion Field[uint16]
	MinorOperatingSystemVersion Field[uint16]
	MajorImageVersion           Field[uint16]
	MinorImageVersion           Field[uint16]
	MajorSubsystemVersion       Field[uint16]
	MinorSubsystemVersion       Field[uint16]
	Win32VersionValue           Field[uint32]
	SizeOfImage                 Field[uint32]
	SizeOfHeaders               Field[uint32]
	CheckSum                    Field[uint32]
	Subsystem                   Field[uint16]
	DllCharacteristics          Field[uint16]
	SizeOfStackReserve          Field[uint64]
	SizeOfStackCommit           Field[uint64]
	SizeOfHeapReserve           Field[uint64]
	SizeOfHeapCommit            Field[uint64]
	LoaderFlags                 Field[uint32]
	NumberOfRvaAndSizes         Field[uint32]
}

const (
	// Length of the fixed (standard + platform) fields; the data directory
	// array starts here.
	fixedSizePE32     = 96
	fixedSizePE32Plus = 112
)

type (
	stdField  = fieldDesc[StandardFields]
	platField = fieldDesc[PlatformFields]
)

var magicTable = []fieldDesc[OptionalHeader]{
	fieldOf("Magic", 0, 2, func(h *OptionalHeader) *Field[uint16] { return &h.Magic }),
}

var standardPE32 = []stdField{
	fieldOf("MajorLinkerVersion", 2, 1, func(s *StandardFields) *Field[uint8] { return &s.MajorLinkerVersion }),
	fieldOf("MinorLinkerVersion", 3, 1, func(s *StandardFields) *Field[uint8] { return &s.MinorLinkerVersion }),
	fieldOf("SizeOfCode", 4, 4, func(s *StandardFields) *Field[uint32] { return &s.SizeOfCode }),
	fieldOf("SizeOfInitializedData", 8, 4, func(s *StandardFields) *Field[uint32] { return &s.SizeOfInitializedData }),
	fieldOf("SizeOfUninitializedData", 12, 4, func(s *StandardFields) *Field[uint32] { return &s.SizeOfUninitializedData }),
	fieldOf("AddressOfEntryPoint", 16, 4, func(s *StandardFields) *Field[uint32] { return &s.AddressOfEntryPoint }),
	fieldOf("BaseOfCode", 20, 4, func(s *StandardFields) *Field[uint32] { return &s.BaseOfCode }),
	fieldOf("BaseOfData", 24, 4, func(s *StandardFields) *Field[uint32] { return &s.BaseOfData }),
}

// PE32Plus drops BaseOfData to make room for the wider ImageBase.
var standardPE32Plus = standardPE32[:len(standardPE32)-1]

var platformPE32 = []platField{
	fieldOf("ImageBase", 28, 4, func(p *PlatformFields) *Field[uint64] { return &p.ImageBase }),
	fieldOf("SectionAlignment", 32, 4, func(p *PlatformFields) *Field[uint32] { return &p.SectionAlignment }),
	fieldOf("FileAlignment", 36, 4, func(p *PlatformFields) *Field[uint32] { return &p.FileAlignment }),
	fieldOf("MajorOperatingSystemVersion", 40, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorOperatingSystemVersion }),
	fieldOf("MinorOperatingSystemVersion", 42, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorOperatingSystemVersion }),
	fieldOf("MajorImageVersion", 44, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorImageVersion }),
	fieldOf("MinorImageVersion", 46, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorImageVersion }),
	fieldOf("MajorSubsystemVersion", 48, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorSubsystemVersion }),
	fieldOf("MinorSubsystemVersion", 50, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorSubsystemVersion }),
	fieldOf("Win32VersionValue", 52, 4, func(p *PlatformFields) *Field[uint32] { return &p.Win32VersionValue }),
	fieldOf("SizeOfImage", 56, 4, func(p *PlatformFields) *Field[uint32] { return &p.SizeOfImage }),
	fieldOf("SizeOfHeaders", 60, 4, func(p *PlatformFields) *Field[uint32] { return &p.SizeOfHeaders }),
	fieldOf("CheckSum", 64, 4, func(p *PlatformFields) *Field[uint32] { return &p.CheckSum }),
	fieldOf("Subsystem", 68, 2, func(p *PlatformFields) *Field[uint16] { return &p.Subsystem }),
	fieldOf("DllCharacteristics", 70, 2, func(p *PlatformFields) *Field[uint16] { return &p.DllCharacteristics }),
	fieldOf("SizeOfStackReserve", 72, 4, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfStackReserve }),
	fieldOf("SizeOfStackCommit", 76, 4, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfStackCommit }),
	fieldOf("SizeOfHeapReserve", 80, 4, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfHeapReserve }),
	fieldOf("SizeOfHeapCommit", 84, 4, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfHeapCommit }),
	fieldOf("LoaderFlags", 88, 4, func(p *PlatformFields) *Field[uint32] { return &p.LoaderFlags }),
	fieldOf("NumberOfRvaAndSizes", 92, 4, func(p *PlatformFields) *Field[uint32] { return &p.NumberOfRvaAndSizes }),
}

var platformPE32Plus = []platField{
	fieldOf("ImageBase", 24, 8, func(p *PlatformFields) *Field[uint64] { return &p.ImageBase }),
	fieldOf("SectionAlignment", 32, 4, func(p *PlatformFields) *Field[uint32] { return &p.SectionAlignment }),
	fieldOf("FileAlignment", 36, 4, func(p *PlatformFields) *Field[uint32] { return &p.FileAlignment }),
	fieldOf("MajorOperatingSystemVersion", 40, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorOperatingSystemVersion }),
	fieldOf("MinorOperatingSystemVersion", 42, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorOperatingSystemVersion }),
	fieldOf("MajorImageVersion", 44, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorImageVersion }),
	fieldOf("MinorImageVersion", 46, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorImageVersion }),
	fieldOf("MajorSubsystemVersion", 48, 2, func(p *PlatformFields) *Field[uint16] { return &p.MajorSubsystemVersion }),
	fieldOf("MinorSubsystemVersion", 50, 2, func(p *PlatformFields) *Field[uint16] { return &p.MinorSubsystemVersion }),
	fieldOf("Win32VersionValue", 52, 4, func(p *PlatformFields) *Field[uint32] { return &p.Win32VersionValue }),
	fieldOf("SizeOfImage", 56, 4, func(p *PlatformFields) *Field[uint32] { return &p.SizeOfImage }),
	fieldOf("SizeOfHeaders", 60, 4, func(p *PlatformFields) *Field[uint32] { return &p.SizeOfHeaders }),
	fieldOf("CheckSum", 64, 4, func(p *PlatformFields) *Field[uint32] { return &p.CheckSum }),
	fieldOf("Subsystem", 68, 2, func(p *PlatformFields) *Field[uint16] { return &p.Subsystem }),
	fieldOf("DllCharacteristics", 70, 2, func(p *PlatformFields) *Field[uint16] { return &p.DllCharacteristics }),
	fieldOf("SizeOfStackReserve", 72, 8, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfStackReserve }),
	fieldOf("SizeOfStackCommit", 80, 8, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfStackCommit }),
	fieldOf("SizeOfHeapReserve", 88, 8, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfHeapReserve }),
	fieldOf("SizeOfHeapCommit", 96, 8, func(p *PlatformFields) *Field[uint64] { return &p.SizeOfHeapCommit }),
	fieldOf("LoaderFlags", 104, 4, func(p *PlatformFields) *Field[uint32] { return &p.LoaderFlags }),
	fieldOf("NumberOfRvaAndSizes", 108, 4, func(p *PlatformFields) *Field[uint32] { return &p.NumberOfRvaAndSizes }),
}

// OptionalHeader is the decoded optional header. Every field is decoded from
// a private copy of exactly SizeOfOptionalHeader bytes, so a header shorter
// than its variant's full layout yields absent fields rather than an error.
type OptionalHeader struct {
	Magic    Field[uint16]
	Variant  Variant
	Standard StandardFields
	Platform PlatformFields

	raw    []byte
	fields []FieldValue
}

func parseOptionalHeader(raw []byte) *OptionalHeader {
	oh := &OptionalHeader{raw: raw}
	decodeGroup("magic", raw, magicTable, oh)
	if oh.Magic.Present {
		oh.Variant = variantForMagic(oh.Magic.Value)
	}

	switch oh.Variant {
	case VariantPE32:
		oh.fields = append(oh.fields, decodeGroup("standard", raw, standardPE32, &oh.Standard)...)
		oh.fields = append(oh.fields, decodeGroup("platform", raw, platformPE32, &oh.Platform)...)
	case VariantPE32Plus:
		oh.fields = append(oh.fields, decodeGroup("standard", raw, standardPE32Plus, &oh.Standard)...)
		oh.fields = append(oh.fields, decodeGroup("platform", raw, platformPE32Plus, &oh.Platform)...)
	case VariantROM:
		// ROM headers share the PE32 standard layout but carry no platform group.
		oh.fields = append(oh.fields, decodeGroup("standard", raw, standardPE32, &oh.Standard)...)
	}
	return oh
}

// Len returns the declared length of the optional header.
func (oh *OptionalHeader) Len() int {
	return len(oh.raw)
}

// Raw returns a copy of the captured optional header bytes.
func (oh *OptionalHeader) Raw() []byte {
	return bytes.Clone(oh.raw)
}

// Fields lists the standard and platform fields of oh's variant in layout
// order, including absent ones.
func (oh *OptionalHeader) Fields() []FieldValue {
	return slices.Clone(oh.fields)
}

// fixedSize returns the offset at which the data directory begins, or false
// for variants that have no data directory.
func (oh *OptionalHeader) fixedSize() (int, bool) {
	switch oh.Variant {
	case VariantPE32:
		return fixedSizePE32, true
	case VariantPE32Plus:
		return fixedSizePE32Plus, true
	default:
		return 0, false
	}
}
