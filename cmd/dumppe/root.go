// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	dumpHeaders  bool
	dumpSections bool
	dumpDataDirs bool
	dumpDOS      bool
	readArg      string
	useMmap      bool
	verbose      bool
	jsonOut      bool
)

var rootCmd = &cobra.Command{
	Use:   "dumppe <file>",
	Short: "Dump the headers of a PE image",
	Long: `dumppe parses the headers of a PE image and prints them. With no
selection flags it prints the MS-DOS header, the PE headers, the data
directory and the section table. --read hexdumps a range of the image's
virtual address space, as the loader would lay it out, without loading
the image.

Example:
  dumppe --sections kernel32.dll
  dumppe --dos app.exe
  dumppe --read 0x180001000:0x40 kernel32.dll
  dumppe --json --mmap app.exe`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dumpHeaders, "headers", false, "Dump the file and optional headers")
	rootCmd.PersistentFlags().BoolVar(&dumpSections, "sections", false, "Dump the section table")
	rootCmd.PersistentFlags().BoolVar(&dumpDataDirs, "datadirs", false, "Dump the data directory")
	rootCmd.PersistentFlags().BoolVar(&dumpDOS, "dos", false, "Dump the MS-DOS header")
	rootCmd.PersistentFlags().StringVar(&readArg, "read", "", "Hexdump LEN bytes of the address space at VA:LEN")
	rootCmd.PersistentFlags().BoolVar(&useMmap, "mmap", false, "Map the file into memory instead of reading it")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log parsing and page loads to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) hclog.Logger {
	level := hclog.Warn
	if verbose {
		level = hclog.Trace
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "dumppe",
		Level:  level,
		Output: w,
	})
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
