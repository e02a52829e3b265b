// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Command dumppe prints the headers, section table and data directory of a
// PE image, and hexdumps ranges of its virtual address space.
package main

func main() {
	execute()
}
