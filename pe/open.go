// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"bytes"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
)

// NewFileFromFileName opens the executable located at filename, follows its
// MZ stub to the PE headers and parses them.
// Call Close() on the returned *File when it is no longer needed.
func NewFileFromFileName(filename string, opts *Options) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	pef, err := newFileFromOSFile(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return pef, nil
}

func newFileFromOSFile(f *os.File, opts *Options) (*File, error) {
	pef, err := newFileFromStub(f, opts)
	if err != nil {
		return nil, err
	}
	pef.closer = f
	return pef, nil
}

// NewFileFromMapped maps the executable located at filename read-only and
// parses it from memory. Page loads become copies out of the mapping.
// Call Close() on the returned *File to unmap it.
func NewFileFromMapped(filename string, opts *Options) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	// The mapping outlives the descriptor.
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}

	pef, err := newFileFromStub(bytes.NewReader(m), opts)
	if err != nil {
		m.Unmap()
		return nil, err
	}
	pef.closer = closerFunc(m.Unmap)
	return pef, nil
}

type stubReader interface {
	io.ReadSeeker
	io.ReaderAt
}

func newFileFromStub(r stubReader, opts *Options) (*File, error) {
	dos, err := ReadDOSHeader(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(dos.NewHeaderOffset), io.SeekStart); err != nil {
		return nil, err
	}
	pef, err := NewFile(r, opts)
	if err != nil {
		return nil, err
	}
	pef.dosHeader = &dos
	return pef, nil
}

type closerFunc func() error

func (fn closerFunc) Close() error {
	return fn()
}
