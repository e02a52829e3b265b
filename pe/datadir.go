// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	dpe "debug/pe"

	"github.com/dblohm7/peview/internal/buf"
)

// DataDirectory is one (location, size) entry of the data directory. For
// IMAGE_DIRECTORY_ENTRY_SECURITY the location is a file offset rather than
// an RVA; no other index is interpreted here.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

const sizeDataDirectory = 8

const (
	IMAGE_DIRECTORY_ENTRY_EXPORT         = dpe.IMAGE_DIRECTORY_ENTRY_EXPORT
	IMAGE_DIRECTORY_ENTRY_IMPORT         = dpe.IMAGE_DIRECTORY_ENTRY_IMPORT
	IMAGE_DIRECTORY_ENTRY_RESOURCE       = dpe.IMAGE_DIRECTORY_ENTRY_RESOURCE
	IMAGE_DIRECTORY_ENTRY_EXCEPTION      = dpe.IMAGE_DIRECTORY_ENTRY_EXCEPTION
	IMAGE_DIRECTORY_ENTRY_SECURITY       = dpe.IMAGE_DIRECTORY_ENTRY_SECURITY
	IMAGE_DIRECTORY_ENTRY_BASERELOC      = dpe.IMAGE_DIRECTORY_ENTRY_BASERELOC
	IMAGE_DIRECTORY_ENTRY_DEBUG          = dpe.IMAGE_DIRECTORY_ENTRY_DEBUG
	IMAGE_DIRECTORY_ENTRY_ARCHITECTURE   = dpe.IMAGE_DIRECTORY_ENTRY_ARCHITECTURE
	IMAGE_DIRECTORY_ENTRY_GLOBALPTR      = dpe.IMAGE_DIRECTORY_ENTRY_GLOBALPTR
	IMAGE_DIRECTORY_ENTRY_TLS            = dpe.IMAGE_DIRECTORY_ENTRY_TLS
	IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG    = dpe.IMAGE_DIRECTORY_ENTRY_LOAD_CONFIG
	IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT   = dpe.IMAGE_DIRECTORY_ENTRY_BOUND_IMPORT
	IMAGE_DIRECTORY_ENTRY_IAT            = dpe.IMAGE_DIRECTORY_ENTRY_IAT
	IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT   = dpe.IMAGE_DIRECTORY_ENTRY_DELAY_IMPORT
	IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR = dpe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR
)

// parseDataDirectory decodes the entries that follow the fixed fields of oh.
// The count is bounded both by the whole entries that fit in the captured
// header and by NumberOfRvaAndSizes; an absent count means no entries.
func parseDataDirectory(oh *OptionalHeader) []DataDirectory {
	start, ok := oh.fixedSize()
	if !ok || !buf.Has(oh.raw, start, 0) {
		return nil
	}
	declared, ok := oh.Platform.NumberOfRvaAndSizes.Get()
	if !ok {
		return nil
	}

	cnt := (len(oh.raw) - start) / sizeDataDirectory
	if uint64(declared) < uint64(cnt) {
		cnt = int(declared)
	}

	dd := make([]DataDirectory, cnt)
	for i := range dd {
		b := oh.raw[start+i*sizeDataDirectory:]
		dd[i] = DataDirectory{
			VirtualAddress: buf.U32LE(b),
			Size:           buf.U32LE(b[4:]),
		}
	}
	return dd
}
