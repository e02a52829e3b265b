// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dblohm7/peview/internal/petest"
)

func TestTruncatedOptionalHeader(t *testing.T) {
	img := scenarioImage()
	img.OptionalHeaderSize = 70 // ends right after Subsystem
	f, _ := parseImage(t, img, nil)

	oh := f.OptionalHeader()
	assert.Equal(t, VariantPE32, oh.Variant)
	assert.Equal(t, 70, oh.Len())
	assert.True(t, oh.Standard.BaseOfData.Present)
	assert.True(t, oh.Platform.ImageBase.Present)
	assert.True(t, oh.Platform.CheckSum.Present)
	assert.Equal(t, Field[uint16]{Value: 3, Present: true}, oh.Platform.Subsystem)

	assert.Equal(t, Field[uint16]{}, oh.Platform.DllCharacteristics)
	assert.False(t, oh.Platform.SizeOfStackReserve.Present)
	assert.False(t, oh.Platform.NumberOfRvaAndSizes.Present)
	assert.Empty(t, f.DataDirectory())

	// Presence is decided by the last byte of each field.
	img.OptionalHeaderSize = 71
	f, _ = parseImage(t, img, nil)
	assert.False(t, f.OptionalHeader().Platform.DllCharacteristics.Present)
	img.OptionalHeaderSize = 72
	f, _ = parseImage(t, img, nil)
	assert.True(t, f.OptionalHeader().Platform.DllCharacteristics.Present)
}

func TestTruncatedOptionalHeaderPE32Plus(t *testing.T) {
	img := scenarioImage()
	img.Magic = petest.Magic32Plus
	img.ImageBase = 0x180000000
	img.OptionalHeaderSize = 31 // ImageBase occupies [24, 32)
	f, _ := parseImage(t, img, nil)

	oh := f.OptionalHeader()
	assert.Equal(t, VariantPE32Plus, oh.Variant)
	assert.True(t, oh.Standard.BaseOfCode.Present)
	assert.False(t, oh.Platform.ImageBase.Present)

	img.OptionalHeaderSize = 32
	f, _ = parseImage(t, img, nil)
	assert.Equal(t, Field[uint64]{Value: 0x180000000, Present: true}, f.OptionalHeader().Platform.ImageBase)
}

func TestEmptyOptionalHeader(t *testing.T) {
	img := scenarioImage()
	img.OptionalHeaderSize = petest.NoOptionalHeader
	f, _ := parseImage(t, img, nil)

	oh := f.OptionalHeader()
	assert.False(t, oh.Magic.Present)
	assert.Equal(t, VariantUnknown, oh.Variant)
	assert.Empty(t, oh.Fields())
	assert.Empty(t, f.DataDirectory())

	_, err := f.AddressSpace()
	assert.ErrorIs(t, err, ErrInvalidBinary)
	assert.ErrorIs(t, err, ErrNotPresent)
}

func TestROMAndUnknownVariants(t *testing.T) {
	tests := []struct {
		magic    uint16
		variant  Variant
		standard bool
	}{
		{petest.MagicROM, VariantROM, true},
		{0x1234, VariantUnknown, false},
	}
	for _, tc := range tests {
		t.Run(tc.variant.String(), func(t *testing.T) {
			img := scenarioImage()
			img.Magic = tc.magic
			f, _ := parseImage(t, img, nil)

			oh := f.OptionalHeader()
			assert.Equal(t, tc.variant, oh.Variant)
			assert.Equal(t, Field[uint16]{Value: tc.magic, Present: true}, oh.Magic)
			assert.Equal(t, tc.standard, oh.Standard.AddressOfEntryPoint.Present)
			assert.Equal(t, PlatformFields{}, oh.Platform, "platform fields must not be extracted")
			assert.Empty(t, f.DataDirectory())
			for _, fv := range oh.Fields() {
				assert.NotEqual(t, "platform", fv.Group)
			}
		})
	}
}

func TestDataDirectoryCount(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		declared uint32
		want     int
	}{
		{"full", 0, 16, 16},
		{"length bound", 96 + 8*4, 16, 4},
		{"declared bound", 0, 3, 3},
		{"partial entry", 96 + 8*2 + 5, 16, 2},
		{"ends inside fixed fields", 90, 16, 0},
		{"declared zero", 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := scenarioImage()
			img.DataDirectories = make([]petest.DataDirectory, 16)
			for i := range img.DataDirectories {
				img.DataDirectories[i] = petest.DataDirectory{VirtualAddress: uint32(0x1000 + i*0x10), Size: uint32(i + 1)}
			}
			img.OptionalHeaderSize = tc.size
			img.NumberOfRvaAndSizes = tc.declared
			data := img.Bytes()
			if tc.declared == 0 {
				// The builder treats 0 as "default"; patch it by hand.
				binary.LittleEndian.PutUint32(data[petest.LfaNew+24+92:], 0)
			}
			f, _ := parseBytes(t, data, nil)

			dd := f.DataDirectory()
			require.Len(t, dd, tc.want)
			oh := f.OptionalHeader()
			assert.LessOrEqual(t, len(dd), max(0, (oh.Len()-96)/8))
			if n, ok := oh.Platform.NumberOfRvaAndSizes.Get(); ok {
				assert.LessOrEqual(t, uint32(len(dd)), n)
			}
			for i, d := range dd {
				assert.Equal(t, uint32(0x1000+i*0x10), d.VirtualAddress)
				assert.Equal(t, uint32(i+1), d.Size)
			}
		})
	}
}

func TestFieldsListing(t *testing.T) {
	img := scenarioImage()
	img.OptionalHeaderSize = 60
	f, _ := parseImage(t, img, nil)

	fields := f.OptionalHeader().Fields()
	require.Len(t, fields, len(standardPE32)+len(platformPE32))

	byName := make(map[string]FieldValue)
	for _, fv := range fields {
		byName[fv.Name] = fv
	}
	assert.Equal(t, FieldValue{Group: "platform", Name: "SizeOfImage", Offset: 56, Width: 4, Value: 0x3000, Present: true}, byName["SizeOfImage"])
	assert.Equal(t, FieldValue{Group: "platform", Name: "SizeOfHeaders", Offset: 60, Width: 4}, byName["SizeOfHeaders"])

	raw := f.OptionalHeader().Raw()
	raw[0] = 0xFF
	assert.Equal(t, uint16(0x10B), f.OptionalHeader().Magic.Value, "Raw must return a copy")
}

func TestDecodeGroupBoundary(t *testing.T) {
	type group struct {
		A Field[uint16]
		B Field[uint32]
	}
	table := []fieldDesc[group]{
		fieldOf("A", 0, 2, func(g *group) *Field[uint16] { return &g.A }),
		fieldOf("B", 2, 4, func(g *group) *Field[uint32] { return &g.B }),
	}

	var g group
	list := decodeGroup("test", []byte{0x34, 0x12, 0x78, 0x56, 0x34}, table, &g)
	assert.Equal(t, Field[uint16]{Value: 0x1234, Present: true}, g.A)
	assert.Equal(t, Field[uint32]{}, g.B)
	require.Len(t, list, 2)
	assert.True(t, list[0].Present)
	assert.False(t, list[1].Present)
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "PE32", VariantPE32.String())
	assert.Equal(t, "PE32Plus", VariantPE32Plus.String())
	assert.Equal(t, "ROM", VariantROM.String())
	assert.Equal(t, "Unknown", VariantUnknown.String())
	assert.Equal(t, "Variant(9)", Variant(9).String())
}

func TestMachineString(t *testing.T) {
	assert.Equal(t, "I386", MachineI386.String())
	assert.Equal(t, "AMD64", MachineAMD64.String())
	assert.Equal(t, "Machine(0x1234)", Machine(0x1234).String())
}
