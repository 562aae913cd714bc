package main

import(
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abworrall/stackreg/pkg/eplot"
	"github.com/abworrall/stackreg/pkg/eregister"
)

var fPlotStem string

var reportCmd = &cobra.Command{
	Use:   "report <sample> <scan_type>",
	Short: "Show the most recent registration of a stack",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := eregister.StackKey{Sample: args[0], ScanType: args[1]}

		run, err := Store.LatestRun(cmd.Context(), key)
		if err != nil {
			return err
		}

		fmt.Printf("run %s, %s, reference %s, policy %s, crop %v\n",
			run.ID, run.Created.Local().Format("2006-01-02 15:04"), run.Reference, run.Policy, run.Crop)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FRAME\tLABEL\tOUTCOME\tSTRATEGY\tRHO\tITER\tDRIFT X\tDRIFT Y\tERROR")
		for _, s := range run.Report.Pairs {
			rho := "-"
			if !math.IsNaN(s.Correlation) && s.Outcome != eregister.OutcomeReference.String() {
				rho = fmt.Sprintf("%.4f", s.Correlation)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%s\n",
				s.Index, s.Label, s.Outcome, s.Strategy, rho, s.Iterations, s.DriftX, s.DriftY, s.Error)
		}
		w.Flush()
		fmt.Print(run.Report)

		if fPlotStem != "" {
			files, err := eplot.SaveReportPlots(key.String(), fPlotStem, run.Report)
			if err != nil {
				return err
			}
			fmt.Printf("plots: %v\n", files)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Print the effective configuration, after flags, as YAML",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noStore: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(Cfg.AsYaml())
	},
}

func init() {
	reportCmd.Flags().StringVar(&fPlotStem, "plot", "", "also write drift and correlation plots, with this filename stem")
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
}
