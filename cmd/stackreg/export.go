package main

import(
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abworrall/stackreg/pkg/eregister"
	"github.com/abworrall/stackreg/pkg/estore"
)

var(
	fFormat string
	fRaw    bool
)

var exportCmd = &cobra.Command{
	Use:   "export <sample> <scan_type> <channel> <dir>",
	Short: "Write the registered frames of a channel out as image files",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := eregister.StackKey{Sample: args[0], ScanType: args[1]}
		channel, dir := args[2], args[3]

		format, err := estore.ParseFormat(fFormat)
		if err != nil {
			return err
		}

		get := Store.GetRegistered
		if fRaw {
			get = Store.GetStack
		}
		stack, err := get(cmd.Context(), key, channel)
		if err != nil {
			return err
		}

		files, err := estore.Export(stack, dir, channel, format)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %d files to %s\n", len(files), dir)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&fFormat, "format", "tiff", "tiff (16-bit), png (false color) or hdr (raw values)")
	exportCmd.Flags().BoolVar(&fRaw, "raw", false, "export the unregistered frames instead")
	rootCmd.AddCommand(exportCmd)
}
