package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/domforge/domhost/dispatch"
	"github.com/domforge/domhost/engine"
	"github.com/domforge/domhost/linker"
	"github.com/domforge/domhost/manifest"
	"github.com/domforge/domhost/runtime"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "domhost",
		Short: "Host for composed wasm components",
		Long: "domhost loads component binaries described by an HCL composition\n" +
			"manifest, links their imports and runs exported functions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging to stderr")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	if !verbose {
		return nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	runtime.SetLogger(l)
	linker.SetLogger(l)
	dispatch.SetLogger(l)
	engine.SetLogger(l)
	manifest.SetLogger(l)
	return nil
}
