// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dblohm7/peview/internal/petest"
)

func writeImage(t *testing.T, img *petest.Image) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "image.exe")
	require.NoError(t, os.WriteFile(fname, img.Bytes(), 0o644))
	return fname
}

func TestOpeners(t *testing.T) {
	img := scenarioImage()
	fname := writeImage(t, img)

	openers := map[string]func(string, *Options) (*File, error){
		"FileName": NewFileFromFileName,
		"Mapped":   NewFileFromMapped,
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			f, err := open(fname, nil)
			require.NoError(t, err)

			assert.Equal(t, int64(petest.LfaNew), f.HeaderOffset())
			assert.Equal(t, VariantPE32, f.OptionalHeader().Variant)
			dos, err := f.DOSHeader()
			require.NoError(t, err)
			assert.Equal(t, int32(petest.LfaNew), dos.NewHeaderOffset)

			as, err := f.AddressSpace()
			require.NoError(t, err)
			got, err := as.Read(0x401500, 0x10)
			require.NoError(t, err)
			assert.Equal(t, img.Sections[0].Data[0x500:0x510], got)

			assert.NoError(t, f.Close())
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.exe")

	_, err := NewFileFromFileName(missing, nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = NewFileFromMapped(missing, nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenRejectsBadImage(t *testing.T) {
	data := scenarioImage().Bytes()
	copy(data[petest.LfaNew:], "NE\x00\x00")
	fname := filepath.Join(t.TempDir(), "bad.exe")
	require.NoError(t, os.WriteFile(fname, data, 0o644))

	_, err := NewFileFromFileName(fname, nil)
	assert.ErrorIs(t, err, ErrInvalidBinary)
	_, err = NewFileFromMapped(fname, nil)
	assert.ErrorIs(t, err, ErrInvalidBinary)
}

// dosStub returns a valid MZ header pointing at LfaNew, with the
// given header size and relocation table offset.
func dosStub(paragraphs, relocOffset uint16) []byte {
	data := scenarioImage().Bytes()
	binary.LittleEndian.PutUint16(data[0x08:], paragraphs)
	binary.LittleEndian.PutUint16(data[0x18:], relocOffset)
	return data
}

func TestHeaderOffset(t *testing.T) {
	good := scenarioImage().Bytes()

	off, err := HeaderOffset(bytes.NewReader(good))
	require.NoError(t, err)
	assert.Equal(t, int64(petest.LfaNew), off)

	noMZ := bytes.Clone(good)
	noMZ[0] = 'X'
	negative := bytes.Clone(good)
	copy(negative[offsetIMAGE_DOS_HEADERe_lfanew:], []byte{0xFF, 0xFF, 0xFF, 0xFF})

	tests := map[string][]byte{
		"short":                  good[:sizeIMAGE_DOS_HEADER-1],
		"no MZ":                  noMZ,
		"negative":               negative,
		"zero size":              nil,
		"two paragraph header":   dosStub(2, 0x1C),
		"small header":           dosStub(2, 0x40),
		"relocations overlap":    dosStub(4, 0x1C),
		"zero header paragraphs": dosStub(0, 0),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := HeaderOffset(bytes.NewReader(data))
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "DOS header", fe.Op)
		})
	}
}

func TestReadDOSHeader(t *testing.T) {
	h, err := ReadDOSHeader(bytes.NewReader(scenarioImage().Bytes()))
	require.NoError(t, err)

	assert.Equal(t, uint16(0x5A4D), h.Magic)
	assert.Equal(t, uint16(petest.DOSLastBlockBytes), h.LastBlockBytes)
	assert.Equal(t, uint16(petest.DOSFileBlocks), h.FileBlocks)
	assert.Equal(t, uint16(0xFFFF), h.MaxAllocParagraphs)
	assert.Equal(t, uint16(0xB8), h.InitialSP)
	assert.Equal(t, uint16(petest.DOSRelocationTableOffset), h.RelocationTableOffset)
	assert.Equal(t, int32(petest.LfaNew), h.NewHeaderOffset)

	// Two full blocks plus 0x90 bytes of the third.
	assert.Equal(t, uint32(2*512+0x90), h.ResidentSize())
	assert.Equal(t, uint32(0x40), h.HeaderSize())
	assert.Equal(t, uint32(0), h.MinAlloc())
	assert.Equal(t, uint32(0xFFFF0), h.MaxAlloc())
	assert.True(t, h.CanContainExtension())
}

func TestDOSHeaderDerivedSizes(t *testing.T) {
	tests := []struct {
		name string
		h    DOSHeader
		want uint32
	}{
		{"full last block", DOSHeader{FileBlocks: 3}, 3 * 512},
		{"partial last block", DOSHeader{FileBlocks: 3, LastBlockBytes: 0x10}, 2*512 + 0x10},
		{"no blocks", DOSHeader{LastBlockBytes: 0x10}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.h.ResidentSize())
		})
	}

	h := DOSHeader{NumberOfRelocations: 5, MinAllocParagraphs: 2, HeaderParagraphs: 0x20}
	assert.Equal(t, uint32(20), h.RelocationTableSize())
	assert.Equal(t, uint32(0x20), h.MinAlloc())
	assert.Equal(t, uint32(0x200), h.HeaderSize())
}

func TestDOSHeaderOnlyFromStub(t *testing.T) {
	f, _ := parseImage(t, scenarioImage(), nil)
	_, err := f.DOSHeader()
	assert.ErrorIs(t, err, ErrNotPresent)
}
