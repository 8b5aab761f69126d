// Command epdsim emulates the e-paper display board on a FIFO bus.
//
// The emulated board exposes the picotool reset interface. Resetting it
// into the bootloader ends the process. SIGUSR1 stands in for a press of
// the BOOTSEL button when --bootsel is set.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.3.0"

var (
	// Global flags
	cfgFile string
	verbose bool
	jsonLog bool
)

var rootCmd = &cobra.Command{
	Use:   "epdsim",
	Short: "E-paper display board emulator",
	Long: `Runs the board's USB device stack on a FIFO bus so host tools can find
it and reset it into the bootloader without hardware.

Examples:
  epdsim                                  # Attach to the default bus
  epdsim --bus /tmp/usb-bus --bootsel     # Reboot on SIGUSR1
  epdsim --led 25 --disable msc           # Advertise activity LED on GPIO25`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runSim,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.picoreset.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json", false, "log in JSON")

	rootCmd.Flags().String("bus", "", "FIFO bus directory")
	rootCmd.Flags().Bool("bootsel", false, "reboot into the bootloader on SIGUSR1")
	rootCmd.Flags().Int("led", -1, "activity LED GPIO passed to the bootloader (-1 for none)")
	rootCmd.Flags().String("disable", "", "bootloader interface to disable (none, msc, picoboot)")
	rootCmd.Flags().Bool("strict", false, "reject reset requests that carry a data stage")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
