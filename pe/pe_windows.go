// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"os"

	"golang.org/x/sys/windows"
)

// NewFileFromFileHandle parses the PE headers from hfile, an open Win32 file
// handle. It does *not* consume hfile.
// Upon success it returns a non-nil *File, otherwise it returns a nil *File
// and a non-nil error.
// Call Close() on the returned *File when it is no longer needed.
func NewFileFromFileHandle(hfile windows.Handle, opts *Options) (*File, error) {
	// Duplicate hfile so that we don't consume it.
	var hfileDup windows.Handle
	cp := windows.CurrentProcess()
	if err := windows.DuplicateHandle(
		cp,
		hfile,
		cp,
		&hfileDup,
		0,
		false,
		windows.DUPLICATE_SAME_ACCESS,
	); err != nil {
		return nil, err
	}

	f := os.NewFile(uintptr(hfileDup), "PEFromFileHandle")
	pef, err := newFileFromOSFile(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return pef, nil
}
