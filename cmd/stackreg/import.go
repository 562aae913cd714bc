package main

import(
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/abworrall/stackreg/pkg/eregister"
	"github.com/abworrall/stackreg/pkg/estore"
)

var importCmd = &cobra.Command{
	Use:   "import <sample> <scan_type> <channel> <dir>",
	Short: "Load a directory of TIFF frames as one channel of a stack",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := eregister.StackKey{Sample: args[0], ScanType: args[1]}
		channel, dir := args[2], args[3]

		stack, err := estore.LoadTIFFDir(dir)
		if err != nil {
			return err
		}
		if err := Store.ImportStack(cmd.Context(), key, channel, stack); err != nil {
			return err
		}

		log.Printf("imported %d frames of %dx%d into %s %s\n", stack.Len(),
			stack.Frames[0].Dx(), stack.Frames[0].Dy(), key, channel)
		if Cfg.Verbosity > 0 {
			for i := range stack.Frames {
				fmt.Printf("  %3d %-30s %s\n", i, stack.Label(i), stack.Frames[i].Stats())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
