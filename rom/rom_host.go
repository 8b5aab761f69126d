//go:build !(tinygo && rp2040)

package rom

import (
	"os"

	"github.com/ardnew/picoreset/pkg"
)

// ExitCode is the process status used when an emulated device resets into
// its bootloader.
const ExitCode = 3

// exit terminates the process. Tests replace it.
var exit = os.Exit

// ResetToUSBBoot stands in for the bootloader jump on hosted builds: it logs
// the request and terminates the process, the way the real device drops off
// the bus.
func ResetToUSBBoot(gpioActivityMask, disableInterfaceMask uint32) {
	pkg.LogWarn(pkg.ComponentROM, "reset to USB boot",
		"gpioActivityMask", gpioActivityMask,
		"disableInterfaceMask", disableInterfaceMask)
	exit(ExitCode)
	panic("rom: exit returned")
}
