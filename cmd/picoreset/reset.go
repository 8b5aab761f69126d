package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ardnew/picoreset/device/class/picoreset"
	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/pkg"
)

var (
	resetPin         int
	resetDisableMSC  bool
	resetDisableBoot bool
	resetFlags       uint8
	resetDevice      string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reboot a board into the USB bootloader",
	Long: `Sends the BOOTSEL request to the reset interface of one board.

--device selects the board when more than one is attached:
  2e8a:000a          vendor and product ID (either may be omitted)
  serial=E6614C      serial number
  1.4                ID from picoreset list (a unique prefix is enough)

Examples:
  picoreset reset
  picoreset reset --pin 25 --disable-msc
  picoreset reset --transport fifo --device 3f2a`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().IntVarP(&resetPin, "pin", "p", -1,
		"bootloader activity LED GPIO (-1 keeps the board's default)")
	resetCmd.Flags().BoolVar(&resetDisableMSC, "disable-msc", false,
		"disable the bootloader mass-storage interface")
	resetCmd.Flags().BoolVar(&resetDisableBoot, "disable-picoboot", false,
		"disable the bootloader PICOBOOT interface")
	resetCmd.Flags().Uint8Var(&resetFlags, "flags", 0,
		"raw bootloader flag bits (0-127)")
	resetCmd.Flags().StringVarP(&resetDevice, "device", "d", "",
		"board selector (vid:pid, serial=S or ID)")

	resetCmd.MarkFlagsMutuallyExclusive("disable-msc", "disable-picoboot")
}

// newRequest builds the BOOTSEL request from the command-line flags.
func newRequest(pin int, disableMSC, disablePicoBoot bool, flags uint8) (picoreset.Request, error) {
	req := picoreset.Request{Flags: flags}
	switch {
	case disableMSC && disablePicoBoot:
		return req, fmt.Errorf("%w: cannot disable both bootloader interfaces", pkg.ErrInvalidParameter)
	case disableMSC:
		req.DisableInterface = picoreset.DisableMassStorage
	case disablePicoBoot:
		req.DisableInterface = picoreset.DisablePicoBoot
	}
	if pin >= 0 {
		if pin > picoreset.MaxActivityPin {
			return req, fmt.Errorf("%w: activity pin %d", pkg.ErrInvalidParameter, pin)
		}
		req.ActivityPin = picoreset.LED(uint8(pin))
	}
	return req, req.Validate()
}

func runReset(cmd *cobra.Command, args []string) error {
	req, err := newRequest(resetPin, resetDisableMSC, resetDisableBoot, resetFlags)
	if err != nil {
		return err
	}
	sel, err := host.ParseSelector(resetDevice)
	if err != nil {
		return err
	}

	tr, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	ctx := cmd.Context()
	infos, err := tr.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list boards: %w", err)
	}
	info, err := host.Select(infos, sel)
	if err != nil {
		return err
	}

	conn, err := tr.Open(ctx, info)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", info.ID, err)
	}
	defer conn.Close()

	if err := host.Reset(ctx, conn, info.Interface, req); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "rebooting %s into BOOTSEL (%s)\n", info.ID, req.String())
	return nil
}
