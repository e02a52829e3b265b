// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dblohm7/peview/internal/petest"
)

// countingReader counts positionless reads, which only page loads perform.
type countingReader struct {
	*bytes.Reader
	reads atomic.Int64
	// Reads that touch offsets at or beyond failAt fail when failAt > 0.
	failAt int64
}

var errInjected = errors.New("injected read failure")

func newCountingReader(b []byte) *countingReader {
	return &countingReader{Reader: bytes.NewReader(b)}
}

func (c *countingReader) ReadAt(p []byte, off int64) (int, error) {
	c.reads.Add(1)
	if c.failAt > 0 && off+int64(len(p)) > c.failAt {
		return 0, errInjected
	}
	return c.Reader.ReadAt(p, off)
}

// seekOnly hides bytes.Reader's ReadAt so pages load through Seek+Read.
type seekOnly struct {
	r     *bytes.Reader
	seeks int
}

func (s *seekOnly) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *seekOnly) Seek(off int64, whence int) (int64, error) {
	s.seeks++
	return s.r.Seek(off, whence)
}

func parseImage(t *testing.T, img *petest.Image, opts *Options) (*File, *countingReader) {
	t.Helper()
	return parseBytes(t, img.Bytes(), opts)
}

func parseBytes(t *testing.T, data []byte, opts *Options) (*File, *countingReader) {
	t.Helper()
	cr := newCountingReader(data)
	_, err := cr.Seek(petest.LfaNew, io.SeekStart)
	require.NoError(t, err)
	f, err := NewFile(cr, opts)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, cr
}

func parseImageErr(img *petest.Image) error {
	r := bytes.NewReader(img.Bytes())
	if _, err := r.Seek(petest.LfaNew, io.SeekStart); err != nil {
		return err
	}
	_, err := NewFile(r, nil)
	return err
}

// scenarioImage is a single-section PE32 image at 0x400000. .text covers
// RVA [0x1000, 0x3000) with 0x1800 bytes of raw data at file offset 0x400,
// of which only the first 0x1000 are non-zero.
func scenarioImage() *petest.Image {
	data := append(petest.Pattern(0x1000, 0x5A), make([]byte, 0x800)...)
	return &petest.Image{
		ImageBase:        0x400000,
		SectionAlignment: 0x1000,
		FileAlignment:    0x200,
		EntryPoint:       0x1000,
		Sections: []petest.Section{
			{
				Name:             ".text",
				VirtualAddress:   0x1000,
				VirtualSize:      0x2000,
				PointerToRawData: 0x400,
				SizeOfRawData:    0x1800,
				Characteristics:  0x60000020,
				Data:             data,
			},
		},
	}
}
