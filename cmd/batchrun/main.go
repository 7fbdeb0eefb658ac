// Command batchrun runs synthetic CPU workloads on executors defined in a
// YAML file and serves their metrics over HTTP.
//
//	batchrun validate --config executors.yaml
//	batchrun run --config executors.yaml --tasks 20 --duration 2s --work 5ms --max-cpu 2
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-executors/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "batchrun",
		Short:        "Run batches of tasks spread over time under a CPU ceiling",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "executor definitions (YAML); a single cpu executor when empty")

	root.AddCommand(newRunCmd(&configPath), newValidateCmd(&configPath))
	return root
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and print it with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFile(*configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(f)
		},
	}
}

// loadFile reads path, or returns a single default cpu executor when path is
// empty.
func loadFile(path string) (*config.File, error) {
	if path != "" {
		return config.Load(path)
	}
	f, err := config.Parse(nil)
	if err != nil {
		return nil, err
	}
	e, err := config.New("batchrun", config.KindCPU)
	if err != nil {
		return nil, fmt.Errorf("default executor: %w", err)
	}
	f.Executors = []config.Executor{e}
	return f, nil
}
