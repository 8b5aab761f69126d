// Package rom exposes the mask-ROM entry points of the board that the
// firmware calls directly.
package rom

// ResetFunc reboots the chip into its USB bootloader.
//
// gpioActivityMask selects the pin the bootloader pulses on mass-storage
// activity (0 for none). disableInterfaceMask selects the bootloader
// interfaces to turn off: bit 0 mass storage, bit 1 PicoBoot.
//
// A ResetFunc never returns. Callers treat a return as a broken invariant.
type ResetFunc func(gpioActivityMask, disableInterfaceMask uint32)

// Disable interface mask bits understood by the bootloader.
const (
	DisableMassStorage uint32 = 1 << 0
	DisablePicoBoot    uint32 = 1 << 1
)

var _ ResetFunc = ResetToUSBBoot
