package main

import(
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/abworrall/stackreg/pkg/eplot"
	"github.com/abworrall/stackreg/pkg/eregister"
)

var(
	fSample   string
	fScanType string
	fPlotDir  string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register every matching stack, and store the registered channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		keys, err := Store.ListStacks(ctx, fSample, fScanType)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no stacks match sample=%q scan_type=%q", fSample, fScanType)
		}

		failed := 0
		for _, key := range keys {
			if err := registerOne(cmd, key); err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.Printf("%s: %v\n", key, err)
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d stacks failed to register", failed, len(keys))
		}
		return nil
	},
}

func registerOne(cmd *cobra.Command, key eregister.StackKey) error {
	pr := &progressReporter{}
	defer pr.finish()

	reg := eregister.NewRegistrar(Cfg)
	reg.Progress = pr.update

	res, err := reg.Register(cmd.Context(), Store, key)
	if err != nil {
		return err
	}
	pr.finish()

	id, err := Store.SaveRun(cmd.Context(), Cfg, res)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	fmt.Printf("%s run %s\n%s", key, id, res.Report)

	if fPlotDir != "" {
		if err := os.MkdirAll(fPlotDir, 0755); err != nil {
			return err
		}
		stem := filepath.Join(fPlotDir, strings.ReplaceAll(key.String(), "/", "_"))
		files, err := eplot.SaveReportPlots(key.String(), stem, res.Report)
		if err != nil {
			return err
		}
		log.Printf("plots written: %v\n", files)
	}
	return nil
}

// progressReporter shows one bar per stage of a registration
type progressReporter struct {
	stage string
	bar   *progressbar.ProgressBar
}

func (p *progressReporter)update(stage string, done, total int) {
	if p.bar == nil || stage != p.stage {
		p.finish()
		p.stage = stage
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(stage),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
	}
	p.bar.Set(done)
}

func (p *progressReporter)finish() {
	if p.bar != nil {
		p.bar.Finish()
		fmt.Fprintln(os.Stderr)
		p.bar = nil
	}
}

func init() {
	registerCmd.Flags().StringVar(&fSample, "sample", "", "only register stacks of this sample")
	registerCmd.Flags().StringVar(&fScanType, "scan-type", "", "only register stacks of this scan type")
	registerCmd.Flags().StringVar(&fPlotDir, "plot-dir", "", "write drift and correlation plots here")
	rootCmd.AddCommand(registerCmd)
}
