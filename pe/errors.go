// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBinary   = errors.New("invalid PE binary")
	ErrNotPresent      = errors.New("not present in this PE image")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNotMapped       = errors.New("virtual address is not mapped by any section")
	ErrBelowImageBase  = errors.New("virtual address is below the image base")
)

// FormatError reports a structural defect that prevents a header or table
// from being parsed. errors.Is(err, ErrInvalidBinary) reports true for every
// FormatError.
type FormatError struct {
	Op  string // structure being parsed, e.g. "section table"
	Msg string
	Err error // underlying cause, if any
}

func formatErrorf(op string, cause error, format string, args ...any) *FormatError {
	return &FormatError{Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidBinary
}

// TranslationError is returned when a virtual address cannot be converted to
// an RVA because it lies below the image base.
type TranslationError struct {
	VA        uint64
	ImageBase uint64
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("va 0x%X: %v 0x%X", e.VA, ErrBelowImageBase, e.ImageBase)
}

func (e *TranslationError) Is(target error) bool {
	return target == ErrBelowImageBase
}

// IOError wraps a failure of the underlying file while a page was being
// loaded. Pages cached before the failure remain valid.
type IOError struct {
	VA     uint64 // base address of the page being loaded
	Offset int64  // file offset of the failed read
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("loading page at va 0x%X from file offset 0x%X: %v", e.VA, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
