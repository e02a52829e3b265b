// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

//go:generate go run golang.org/x/tools/cmd/stringer -type=Variant -trimprefix=Variant

// Variant is the optional header format selected by its magic value.
type Variant int

const (
	VariantUnknown Variant = iota
	VariantPE32
	VariantPE32Plus
	VariantROM
)

const (
	magicPE32     = 0x010B
	magicPE32Plus = 0x020B
	magicROM      = 0x0107
)

func variantForMagic(magic uint16) Variant {
	switch magic {
	case magicPE32:
		return VariantPE32
	case magicPE32Plus:
		return VariantPE32Plus
	case magicROM:
		return VariantROM
	default:
		return VariantUnknown
	}
}
