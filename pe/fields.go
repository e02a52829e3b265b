// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	"golang.org/x/exp/constraints"

	"github.com/dblohm7/peview/internal/buf"
)

// Field is a header value that may be absent because the declared header
// length ends before the field does. An absent field has a zero Value.
type Field[T constraints.Unsigned] struct {
	Value   T
	Present bool
}

// Get returns the field's value and whether it was present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Present
}

// FieldValue describes one decoded header field for presentation.
type FieldValue struct {
	Group   string // "standard" or "platform"
	Name    string
	Offset  int // from the start of the optional header
	Width   int // in bytes
	Value   uint64
	Present bool
}

// fieldDesc is one row of a declarative layout table: a field lives at
// [off, off+width) of the captured header and is stored by set.
type fieldDesc[G any] struct {
	name  string
	off   int
	width int
	set   func(g *G, v uint64)
}

func fieldOf[G any, T constraints.Unsigned](name string, off, width int, dst func(*G) *Field[T]) fieldDesc[G] {
	return fieldDesc[G]{
		name:  name,
		off:   off,
		width: width,
		set: func(g *G, v uint64) {
			*dst(g) = Field[T]{Value: T(v), Present: true}
		},
	}
}

// decodeGroup evaluates table against raw, storing each field that fits
// entirely within raw into g. Fields that do not fit are left absent.
func decodeGroup[G any](group string, raw []byte, table []fieldDesc[G], g *G) []FieldValue {
	list := make([]FieldValue, 0, len(table))
	for _, d := range table {
		fv := FieldValue{Group: group, Name: d.name, Offset: d.off, Width: d.width}
		if b, ok := buf.Slice(raw, d.off, d.width); ok {
			fv.Value = buf.UintLE(b)
			fv.Present = true
			d.set(g, fv.Value)
		}
		list = append(list, fv)
	}
	return list
}
