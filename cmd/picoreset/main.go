// Command picoreset lists boards exposing the picotool reset interface and
// reboots them into the USB bootloader.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardnew/picoreset/internal/config"
)

const version = "v0.3.0"

var (
	// Global flags
	cfgFile string
	verbose bool
	jsonLog bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "picoreset",
	Short: "Reboot boards into the USB bootloader",
	Long: `Finds boards that expose the vendor reset interface and asks them to
reboot into the mask-ROM bootloader.

Examples:
  picoreset list                                  # Boards on USB
  picoreset list --transport fifo                 # Emulated boards
  picoreset reset --device 2e8a:000a              # Reset the only Pico
  picoreset reset --device serial=E6614C --pin 25 --disable-picoboot`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flags := rootCmd.PersistentFlags()
		var err error
		cfg, err = config.Load(cfgFile,
			config.WithFlag("host.transport", flags.Lookup("transport")),
			config.WithFlag("host.timeout", flags.Lookup("timeout")),
			config.WithFlag("fifo.bus_dir", flags.Lookup("bus")),
		)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if jsonLog {
			cfg.Log.Format = "json"
		}
		return cfg.ApplyLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.picoreset.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json", false, "log in JSON")
	rootCmd.PersistentFlags().StringP("transport", "t", "", "board transport (libusb, fifo)")
	rootCmd.PersistentFlags().String("bus", "", "FIFO bus directory")
	rootCmd.PersistentFlags().Duration("timeout", 0, "control transfer timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
