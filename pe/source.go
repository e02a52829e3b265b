// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"io"
	"sync"
)

// source reads page data from the stream a File was parsed from. Streams
// that implement io.ReaderAt are read positionlessly; anything else is
// repositioned with Seek under mu.
type source struct {
	rs io.ReadSeeker
	ra io.ReaderAt

	mu sync.Mutex
}

func newSource(rs io.ReadSeeker) *source {
	ra, _ := rs.(io.ReaderAt)
	return &source{rs: rs, ra: ra}
}

// readFull fills p from offset off. A short read is an error.
func (s *source) readFull(p []byte, off int64) error {
	if s.ra != nil {
		n, err := s.ra.ReadAt(p, off)
		if n == len(p) {
			return nil
		}
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(s.rs, p)
	return err
}
