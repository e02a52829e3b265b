// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package pe parses the headers of PE images and COFF objects and serves
// reads from an image's virtual address space without loading it.
package pe

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dblohm7/peview/internal/buf"
)

const (
	sizeSignature  = 4
	sizeFileHeader = 20
)

var peSignature = []byte{'P', 'E', 0, 0}

// FileHeader is the COFF file header.
type FileHeader struct {
	Machine              Machine
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

func decodeFileHeader(b []byte) FileHeader {
	return FileHeader{
		Machine:              Machine(buf.U16LE(b)),
		NumberOfSections:     buf.U16LE(b[2:]),
		TimeDateStamp:        buf.U32LE(b[4:]),
		PointerToSymbolTable: buf.U32LE(b[8:]),
		NumberOfSymbols:      buf.U32LE(b[12:]),
		SizeOfOptionalHeader: buf.U16LE(b[16:]),
		Characteristics:      buf.U16LE(b[18:]),
	}
}

// File holds the parsed headers of one image together with the stream they
// were read from. A File is an ordinary value owned by its caller; distinct
// Files share nothing.
type File struct {
	src    *source
	closer io.Closer
	opts   Options
	log    hclog.Logger

	dosHeader      *DOSHeader
	headerOffset   int64
	object         bool
	fileHeader     FileHeader
	optionalHeader *OptionalHeader
	dataDirectory  []DataDirectory
	sections       []SectionHeader

	mu sync.Mutex
	as *AddressSpace
}

// NewFile parses a PE image from r, which must be positioned at the PE
// signature. r is retained for address space reads and must not be
// repositioned by anyone else while the File is in use.
// Upon success it returns a non-nil *File, otherwise it returns a nil *File
// and a non-nil error.
func NewFile(r io.ReadSeeker, opts *Options) (*File, error) {
	off, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var hdr [sizeSignature + sizeFileHeader]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, formatErrorf("PE header", err, "reading at offset 0x%X", off)
	}
	if !bytes.Equal(hdr[:sizeSignature], peSignature) {
		return nil, formatErrorf("PE header", nil, "bad signature % X", hdr[:sizeSignature])
	}

	return load(r, off, off+sizeSignature, decodeFileHeader(hdr[sizeSignature:]), false, opts)
}

// NewObjectFile parses a COFF object from r, which must be positioned at its
// file header. Objects carry no signature and usually no optional header,
// so every optional header field reports absent.
func NewObjectFile(r io.ReadSeeker, opts *Options) (*File, error) {
	off, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var hdr [sizeFileHeader]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, formatErrorf("COFF header", err, "reading at offset 0x%X", off)
	}

	return load(r, off, off, decodeFileHeader(hdr[:]), true, opts)
}

func load(r io.ReadSeeker, headerOffset, fileHeaderOffset int64, fh FileHeader, object bool, opts *Options) (*File, error) {
	o := opts.withDefaults()

	ohSize := int(fh.SizeOfOptionalHeader)
	if ohSize > o.MaxOptionalHeaderSize {
		return nil, formatErrorf("optional header", nil, "implausible size %d", ohSize)
	}
	raw := make([]byte, ohSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, formatErrorf("optional header", err, "reading %d bytes", ohSize)
	}
	oh := parseOptionalHeader(raw)

	sectionTableOffset := fileHeaderOffset + sizeFileHeader + int64(ohSize)
	if _, err := r.Seek(sectionTableOffset, io.SeekStart); err != nil {
		return nil, err
	}
	sections, err := readSectionTable(r, int(fh.NumberOfSections), o.MaxSections)
	if err != nil {
		return nil, err
	}

	f := &File{
		src:            newSource(r),
		opts:           o,
		log:            o.Logger,
		headerOffset:   headerOffset,
		object:         object,
		fileHeader:     fh,
		optionalHeader: oh,
		dataDirectory:  parseDataDirectory(oh),
		sections:       sections,
	}
	f.log.Debug("parsed headers",
		"offset", hclog.Fmt("0x%X", headerOffset),
		"machine", fh.Machine.String(),
		"variant", oh.Variant.String(),
		"optional_header_size", ohSize,
		"data_directories", len(f.dataDirectory),
		"sections", len(sections))
	return f, nil
}

// Close releases the page cache and, for Files created by one of the
// NewFileFrom* constructors, the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	as := f.as
	f.as = nil
	f.mu.Unlock()

	if as != nil {
		as.reset()
	}
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// DOSHeader returns the MS-DOS header that led to the PE headers. It is
// ErrNotPresent for Files that were handed an already positioned stream.
func (f *File) DOSHeader() (DOSHeader, error) {
	if f.dosHeader == nil {
		return DOSHeader{}, ErrNotPresent
	}
	return *f.dosHeader, nil
}

// HeaderOffset returns the file offset of the PE signature (or, for COFF
// objects, of the file header).
func (f *File) HeaderOffset() int64 {
	return f.headerOffset
}

// IsObject reports whether f was parsed as a bare COFF object.
func (f *File) IsObject() bool {
	return f.object
}

func (f *File) FileHeader() FileHeader {
	return f.fileHeader
}

func (f *File) OptionalHeader() *OptionalHeader {
	return f.optionalHeader
}

// DataDirectory returns a copy of the data directory entries.
func (f *File) DataDirectory() []DataDirectory {
	return append([]DataDirectory(nil), f.dataDirectory...)
}

// DataDirectoryEntry returns the data directory entry at index idx, which is
// normally one of the IMAGE_DIRECTORY_ENTRY_* constants.
func (f *File) DataDirectoryEntry(idx int) (DataDirectory, error) {
	if idx < 0 || idx >= len(f.dataDirectory) {
		return DataDirectory{}, ErrIndexOutOfRange
	}

	dde := f.dataDirectory[idx]
	if dde.VirtualAddress == 0 || dde.Size == 0 {
		return DataDirectory{}, ErrNotPresent
	}
	return dde, nil
}

// Sections returns a copy of the section table.
func (f *File) Sections() []SectionHeader {
	return append([]SectionHeader(nil), f.sections...)
}

// Section returns the first section whose NameString is name.
func (f *File) Section(name string) (SectionHeader, error) {
	for _, s := range f.sections {
		if s.NameString() == name {
			return s, nil
		}
	}
	return SectionHeader{}, fmt.Errorf("section %q: %w", name, ErrNotPresent)
}

// AddressSpace returns the virtual address space view of f, creating it on
// first use. The same *AddressSpace is returned until f is closed.
func (f *File) AddressSpace() (*AddressSpace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.as != nil {
		return f.as, nil
	}
	as, err := newAddressSpace(f)
	if err != nil {
		return nil, err
	}
	f.as = as
	return as, nil
}
