// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package pe

import (
	dpe "debug/pe"
	"fmt"
)

// Machine identifies the target CPU of an image.
type Machine uint16

const (
	MachineUnknown Machine = dpe.IMAGE_FILE_MACHINE_UNKNOWN
	MachineI386    Machine = dpe.IMAGE_FILE_MACHINE_I386
	MachineAMD64   Machine = dpe.IMAGE_FILE_MACHINE_AMD64
	MachineARM     Machine = dpe.IMAGE_FILE_MACHINE_ARM
	MachineARMNT   Machine = dpe.IMAGE_FILE_MACHINE_ARMNT
	MachineARM64   Machine = dpe.IMAGE_FILE_MACHINE_ARM64
	MachineIA64    Machine = dpe.IMAGE_FILE_MACHINE_IA64
	MachineRISCV64 Machine = dpe.IMAGE_FILE_MACHINE_RISCV64
)

var machineNames = map[Machine]string{
	MachineUnknown: "UNKNOWN",
	MachineI386:    "I386",
	MachineAMD64:   "AMD64",
	MachineARM:     "ARM",
	MachineARMNT:   "ARMNT",
	MachineARM64:   "ARM64",
	MachineIA64:    "IA64",
	MachineRISCV64: "RISCV64",
}

func (m Machine) String() string {
	if name, ok := machineNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Machine(0x%04X)", uint16(m))
}
