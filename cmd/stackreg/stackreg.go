package main

// stackreg registers drifting stacks of microscopy frames, and warps
// every channel of each stack onto the first frame.

import(
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abworrall/stackreg/pkg/eregister"
	"github.com/abworrall/stackreg/pkg/estore"
)

var(
	Store *estore.Store
	Cfg   eregister.Config

	fDBPath     string
	fConfigFile string
	fVerbosity  int
	fReference  string
	fPolicy     string
	fWorkers    int
	fCropOutput bool
	fDebugDir   string
)

// Commands with this annotation don't touch the database
const noStore = "nostore"

var rootCmd = &cobra.Command{
	Use:           "stackreg",
	Short:         "Register drifting image stacks, and warp all their channels into alignment",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if Cfg, err = loadConfig(cmd); err != nil {
			return err
		}
		if _, skip := cmd.Annotations[noStore]; skip {
			return nil
		}
		if Store, err = estore.Open(fDBPath); err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		Store.Verbosity = Cfg.Verbosity
		return nil
	},
}

// run executes one command line. The store is closed whether or not
// the command succeeded; cobra skips post-run hooks after an error.
func run(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if Store != nil {
		if cerr := Store.Close(); cerr != nil {
			log.Printf("closing %s: %v\n", Store.Path, cerr)
		}
	}
	return err
}

// loadConfig reads the config file if there is one, and lets any flags
// that were set override it.
func loadConfig(cmd *cobra.Command) (eregister.Config, error) {
	cfg := eregister.NewConfig()
	if fConfigFile != "" {
		var err error
		if cfg, err = eregister.LoadConfig(fConfigFile); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("verbose")   { cfg.Verbosity = fVerbosity }
	if flags.Changed("reference") { cfg.ReferenceChannel = fReference }
	if flags.Changed("policy")    { cfg.OnFailure = eregister.FailurePolicy(fPolicy) }
	if flags.Changed("workers")   { cfg.Workers = fWorkers }
	if flags.Changed("crop")      { cfg.CropRegistered = fCropOutput }
	if flags.Changed("debug-dir") { cfg.DebugDir = fDebugDir }

	if err := cfg.Finalize(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fDBPath, "db", "stackreg.db", "SQLite database holding the stacks")
	pf.StringVarP(&fConfigFile, "config", "c", "", "YAML registration config")
	pf.CountVarP(&fVerbosity, "verbose", "v", "more logging; -vv also dumps debug images")
	pf.StringVar(&fReference, "reference", "", "channel to align on (overrides config)")
	pf.StringVar(&fPolicy, "policy", "", "what to do when a pair fails: abort, carry-forward")
	pf.IntVar(&fWorkers, "workers", 0, "goroutines used for warping")
	pf.BoolVar(&fCropOutput, "crop", false, "crop registered frames to the area every frame covers")
	pf.StringVar(&fDebugDir, "debug-dir", "", "where -vv writes conditioned frame PNGs")
}

func main() {
	log.SetFlags(log.Ldate|log.Ltime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
