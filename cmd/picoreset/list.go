package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ardnew/picoreset/host"
	"github.com/ardnew/picoreset/internal/usbid"
	"github.com/ardnew/picoreset/pkg"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List boards with a reset interface",
	Long: `Lists the boards that expose the vendor reset interface, with the ID to
pass to reset --device.

Examples:
  picoreset list
  picoreset list --transport fifo --bus /tmp/usb-bus`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	tr, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	infos, err := tr.Devices(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list boards: %w", err)
	}

	ids := usbid.New()
	if err := ids.Load(); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "error loading usb.ids",
			"error", err)
	}
	return printBoards(cmd.OutOrStdout(), infos, ids)
}

// printBoards renders infos as a table.
func printBoards(w io.Writer, infos []host.Info, ids *usbid.Database) error {
	if len(infos) == 0 {
		color.New(color.FgYellow).Fprintln(w, "no boards with a reset interface")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "VID:PID", "Name", "Serial", "Interface")
	for _, info := range infos {
		name := ids.Describe(info.VendorID, info.ProductID)
		if info.Product != "" {
			name = info.Manufacturer + " " + info.Product
		}
		row := []string{
			info.ID,
			fmt.Sprintf("%04x:%04x", info.VendorID, info.ProductID),
			name,
			info.SerialNumber,
			fmt.Sprintf("%d", info.Interface),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(w, "%d board(s)\n", len(infos))
	return nil
}
