// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/dblohm7/peview/pe"
)

type dosHeaderJSON struct {
	FileSize              int64  `json:"file_size"`
	LastBlockBytes        uint16 `json:"last_block_bytes"`
	FileBlocks            uint16 `json:"file_blocks"`
	ResidentSize          uint32 `json:"resident_size"`
	NumberOfRelocations   uint16 `json:"number_of_relocations"`
	RelocationTableSize   uint32 `json:"relocation_table_size"`
	HeaderParagraphs      uint16 `json:"header_paragraphs"`
	HeaderSize            uint32 `json:"header_size"`
	MinAllocParagraphs    uint16 `json:"min_alloc_paragraphs"`
	MinAlloc              uint32 `json:"min_alloc"`
	MaxAllocParagraphs    uint16 `json:"max_alloc_paragraphs"`
	MaxAlloc              uint32 `json:"max_alloc"`
	InitialSS             uint16 `json:"initial_ss"`
	InitialSP             uint16 `json:"initial_sp"`
	Checksum              uint16 `json:"checksum"`
	InitialCS             uint16 `json:"initial_cs"`
	InitialIP             uint16 `json:"initial_ip"`
	RelocationTableOffset uint16 `json:"relocation_table_offset"`
	OverlayNumber         uint16 `json:"overlay_number"`
	NewHeaderOffset       int32  `json:"new_header_offset"`
}

type fileHeaderJSON struct {
	Machine              string `json:"machine"`
	NumberOfSections     uint16 `json:"number_of_sections"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	PointerToSymbolTable uint32 `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32 `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16 `json:"size_of_optional_header"`
	Characteristics      uint16 `json:"characteristics"`
}

type fieldJSON struct {
	Group  string  `json:"group"`
	Name   string  `json:"name"`
	Offset int     `json:"offset"`
	Width  int     `json:"width"`
	Value  *uint64 `json:"value"` // null when absent
}

type optionalHeaderJSON struct {
	Variant string      `json:"variant"`
	Size    int         `json:"size"`
	Fields  []fieldJSON `json:"fields"`
}

type dataDirJSON struct {
	Index          int    `json:"index"`
	VirtualAddress uint32 `json:"virtual_address"`
	Size           uint32 `json:"size"`
}

type sectionJSON struct {
	Name             string `json:"name"`
	VirtualAddress   uint32 `json:"virtual_address"`
	VirtualSize      uint32 `json:"virtual_size"`
	PointerToRawData uint32 `json:"pointer_to_raw_data"`
	SizeOfRawData    uint32 `json:"size_of_raw_data"`
	Characteristics  uint32 `json:"characteristics"`
	Permissions      string `json:"permissions"`
}

type readJSON struct {
	VA        uint64 `json:"va"`
	Requested int    `json:"requested"`
	Data      string `json:"data"` // hex
	Error     string `json:"error,omitempty"`
}

type report struct {
	File           string              `json:"file"`
	HeaderOffset   int64               `json:"header_offset"`
	DOSHeader      *dosHeaderJSON      `json:"dos_header,omitempty"`
	FileHeader     *fileHeaderJSON     `json:"file_header,omitempty"`
	OptionalHeader *optionalHeaderJSON `json:"optional_header,omitempty"`
	DataDirectory  []dataDirJSON       `json:"data_directory,omitempty"`
	Sections       []sectionJSON       `json:"sections,omitempty"`
	Read           *readJSON           `json:"read,omitempty"`
}

func runDump(out, errOut io.Writer, path string) error {
	logger := newLogger(errOut)

	var rr *readRange
	if readArg != "" {
		r, err := parseReadRange(readArg)
		if err != nil {
			return err
		}
		rr = &r
	}

	// Nothing selected means everything except a read.
	all := !dumpDOS && !dumpHeaders && !dumpSections && !dumpDataDirs && rr == nil

	open := pe.NewFileFromFileName
	if useMmap {
		open = pe.NewFileFromMapped
	}
	pef, err := open(path, &pe.Options{Logger: logger.Named("pe")})
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer pef.Close()

	rep := report{File: path, HeaderOffset: pef.HeaderOffset()}
	if all || dumpDOS {
		dos, err := pef.DOSHeader()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %q: %w", path, err)
		}
		rep.DOSHeader = dosHeaderReport(&dos, fi.Size())
	}
	if all || dumpHeaders {
		rep.FileHeader = fileHeaderReport(pef.FileHeader())
		rep.OptionalHeader = optionalHeaderReport(pef.OptionalHeader())
	}
	if all || dumpDataDirs {
		for i, dd := range pef.DataDirectory() {
			rep.DataDirectory = append(rep.DataDirectory, dataDirJSON{
				Index:          i,
				VirtualAddress: dd.VirtualAddress,
				Size:           dd.Size,
			})
		}
	}
	if all || dumpSections {
		for _, s := range pef.Sections() {
			rep.Sections = append(rep.Sections, sectionJSON{
				Name:             s.NameString(),
				VirtualAddress:   s.VirtualAddress,
				VirtualSize:      s.VirtualSize,
				PointerToRawData: s.PointerToRawData,
				SizeOfRawData:    s.SizeOfRawData,
				Characteristics:  s.Characteristics,
				Permissions:      s.Permissions(),
			})
		}
	}

	var data []byte
	var readErr error
	if rr != nil {
		as, err := pef.AddressSpace()
		if err != nil {
			return fmt.Errorf("%s has no address space: %w", path, err)
		}
		data, readErr = as.Read(rr.va, rr.n)
		st := as.Stats()
		logger.Debug("address space stats",
			"va", hclog.Fmt("0x%X", rr.va),
			"pages", st.Pages,
			"loads", st.Loads,
			"zero_pages", st.ZeroPages)
		if logger.IsTrace() {
			bases := as.CachedPages()
			pages := make([]string, len(bases))
			for i, b := range bases {
				pages[i] = fmt.Sprintf("0x%X", b)
			}
			logger.Trace("cached pages", "bases", strings.Join(pages, ","))
		}

		rep.Read = &readJSON{VA: rr.va, Requested: rr.n, Data: hex.EncodeToString(data)}
		if readErr != nil {
			rep.Read.Error = readErr.Error()
		}
	}

	if jsonOut {
		if err := printJSON(out, rep); err != nil {
			return err
		}
		return readErr
	}

	printReport(out, &rep, data)
	return readErr
}

func dosHeaderReport(h *pe.DOSHeader, fileSize int64) *dosHeaderJSON {
	return &dosHeaderJSON{
		FileSize:              fileSize,
		LastBlockBytes:        h.LastBlockBytes,
		FileBlocks:            h.FileBlocks,
		ResidentSize:          h.ResidentSize(),
		NumberOfRelocations:   h.NumberOfRelocations,
		RelocationTableSize:   h.RelocationTableSize(),
		HeaderParagraphs:      h.HeaderParagraphs,
		HeaderSize:            h.HeaderSize(),
		MinAllocParagraphs:    h.MinAllocParagraphs,
		MinAlloc:              h.MinAlloc(),
		MaxAllocParagraphs:    h.MaxAllocParagraphs,
		MaxAlloc:              h.MaxAlloc(),
		InitialSS:             h.InitialSS,
		InitialSP:             h.InitialSP,
		Checksum:              h.Checksum,
		InitialCS:             h.InitialCS,
		InitialIP:             h.InitialIP,
		RelocationTableOffset: h.RelocationTableOffset,
		OverlayNumber:         h.OverlayNumber,
		NewHeaderOffset:       h.NewHeaderOffset,
	}
}

func fileHeaderReport(fh pe.FileHeader) *fileHeaderJSON {
	return &fileHeaderJSON{
		Machine:              fh.Machine.String(),
		NumberOfSections:     fh.NumberOfSections,
		TimeDateStamp:        fh.TimeDateStamp,
		PointerToSymbolTable: fh.PointerToSymbolTable,
		NumberOfSymbols:      fh.NumberOfSymbols,
		SizeOfOptionalHeader: fh.SizeOfOptionalHeader,
		Characteristics:      fh.Characteristics,
	}
}

func optionalHeaderReport(oh *pe.OptionalHeader) *optionalHeaderJSON {
	ohj := &optionalHeaderJSON{Variant: oh.Variant.String(), Size: oh.Len()}
	if oh.Magic.Present {
		v := uint64(oh.Magic.Value)
		ohj.Fields = append(ohj.Fields, fieldJSON{Group: "magic", Name: "Magic", Width: 2, Value: &v})
	}
	for _, fv := range oh.Fields() {
		fj := fieldJSON{Group: fv.Group, Name: fv.Name, Offset: fv.Offset, Width: fv.Width}
		if fv.Present {
			v := fv.Value
			fj.Value = &v
		}
		ohj.Fields = append(ohj.Fields, fj)
	}
	return ohj
}

func printReport(w io.Writer, rep *report, data []byte) {
	fmt.Fprintf(w, "%s: PE header at offset 0x%X\n", rep.File, rep.HeaderOffset)

	if dh := rep.DOSHeader; dh != nil {
		fmt.Fprintf(w, "\nFile size: %d bytes\n", dh.FileSize)
		fmt.Fprintf(w, "MS-DOS EXE header:\n")
		fmt.Fprintf(w, "  %-28s %d bytes\n", "LastBlockBytes", dh.LastBlockBytes)
		fmt.Fprintf(w, "  %-28s %d blocks\n", "FileBlocks", dh.FileBlocks)
		fmt.Fprintf(w, "  %-28s %d bytes\n", "* ResidentSize", dh.ResidentSize)
		fmt.Fprintf(w, "  %-28s %d entries\n", "NumberOfRelocations", dh.NumberOfRelocations)
		fmt.Fprintf(w, "  %-28s %d bytes\n", "* RelocationTableSize", dh.RelocationTableSize)
		fmt.Fprintf(w, "  %-28s %d paragraphs\n", "HeaderParagraphs", dh.HeaderParagraphs)
		fmt.Fprintf(w, "  %-28s %d bytes\n", "* HeaderSize", dh.HeaderSize)
		fmt.Fprintf(w, "  %-28s %d paragraphs\n", "MinAllocParagraphs", dh.MinAllocParagraphs)
		fmt.Fprintf(w, "  %-28s %d bytes\n", "* MinAlloc", dh.MinAlloc)
		fmt.Fprintf(w, "  %-28s %d paragraphs\n", "MaxAllocParagraphs", dh.MaxAllocParagraphs)
		fmt.Fprintf(w, "  %-28s %d bytes\n", "* MaxAlloc", dh.MaxAlloc)
		fmt.Fprintf(w, "  %-28s base_seg+0x%04X:0x%04X\n", "Initial SS:SP", dh.InitialSS, dh.InitialSP)
		fmt.Fprintf(w, "  %-28s 0x%04X\n", "Checksum", dh.Checksum)
		fmt.Fprintf(w, "  %-28s base_seg+0x%04X:0x%04X\n", "Initial CS:IP", dh.InitialCS, dh.InitialIP)
		fmt.Fprintf(w, "  %-28s 0x%04X\n", "RelocationTableOffset", dh.RelocationTableOffset)
		fmt.Fprintf(w, "  %-28s %d\n", "OverlayNumber", dh.OverlayNumber)
		fmt.Fprintf(w, "  %-28s 0x%X\n", "NewHeaderOffset", dh.NewHeaderOffset)
	}

	if fh := rep.FileHeader; fh != nil {
		fmt.Fprintf(w, "\nFile header:\n")
		fmt.Fprintf(w, "  %-28s %s\n", "Machine", fh.Machine)
		fmt.Fprintf(w, "  %-28s %d\n", "NumberOfSections", fh.NumberOfSections)
		fmt.Fprintf(w, "  %-28s 0x%08X\n", "TimeDateStamp", fh.TimeDateStamp)
		fmt.Fprintf(w, "  %-28s 0x%08X\n", "PointerToSymbolTable", fh.PointerToSymbolTable)
		fmt.Fprintf(w, "  %-28s %d\n", "NumberOfSymbols", fh.NumberOfSymbols)
		fmt.Fprintf(w, "  %-28s %d\n", "SizeOfOptionalHeader", fh.SizeOfOptionalHeader)
		fmt.Fprintf(w, "  %-28s 0x%04X\n", "Characteristics", fh.Characteristics)
	}

	if oh := rep.OptionalHeader; oh != nil {
		fmt.Fprintf(w, "\nOptional header (%s, %d bytes):\n", oh.Variant, oh.Size)
		for _, f := range oh.Fields {
			if f.Value == nil {
				fmt.Fprintf(w, "  %-8s %-28s <absent>\n", f.Group, f.Name)
				continue
			}
			fmt.Fprintf(w, "  %-8s %-28s 0x%0*X\n", f.Group, f.Name, 2*f.Width, *f.Value)
		}
	}

	if rep.DataDirectory != nil {
		fmt.Fprintf(w, "\nData directory (%d entries):\n", len(rep.DataDirectory))
		for _, dd := range rep.DataDirectory {
			fmt.Fprintf(w, "  %2d: VA 0x%08X  Size 0x%08X\n", dd.Index, dd.VirtualAddress, dd.Size)
		}
	}

	if rep.Sections != nil {
		fmt.Fprintf(w, "\n%d sections:\n", len(rep.Sections))
		for i, s := range rep.Sections {
			fmt.Fprintf(w, "  %2d: %-8s VA 0x%08X VS 0x%08X  Raw 0x%08X+0x%08X  %s\n",
				i, s.Name, s.VirtualAddress, s.VirtualSize, s.PointerToRawData, s.SizeOfRawData, s.Permissions)
		}
	}

	if rd := rep.Read; rd != nil {
		fmt.Fprintf(w, "\nVA 0x%X, %d of %d bytes:\n", rd.VA, len(data), rd.Requested)
		if len(data) > 0 {
			fmt.Fprint(w, hex.Dump(data))
		}
		if len(data) < rd.Requested && rd.Error == "" {
			fmt.Fprintf(w, "(not mapped beyond VA 0x%X)\n", rd.VA+uint64(len(data)))
		}
	}
}
