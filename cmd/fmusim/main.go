package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tianwei1989/EstimationPy/internal/config"
)

var (
	dataDir  string
	logLevel string

	configFile string
	preset     string
	sweep      string
	workers    int

	asJSON bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "fmusim",
		Short:         "inspect and run simulation models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultResultsDir, "results directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (debug, info, warning, error)")

	inspectCmd := &cobra.Command{
		Use:   "inspect [description]",
		Short: "show a model's metadata and variables",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectModel,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation from a config file",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "time grid preset")
	runCmd.Flags().StringVar(&sweep, "sweep", "", "run once per value, e.g. b=1,2,4")
	runCmd.Flags().IntVar(&workers, "workers", 4, "parallel runs for --sweep")
	_ = runCmd.MarkFlagRequired("config")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print metadata and trajectories as JSON")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list time grid presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				r, _ := config.GetPreset(name)
				switch {
				case r.Step > 0:
					fmt.Printf("  %-8s step %s\n", name, r.Step)
				case r.Intervals > 0:
					fmt.Printf("  %-8s %d intervals\n", name, r.Intervals)
				default:
					fmt.Printf("  %-8s input sample times\n", name)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(inspectCmd, runCmd, listCmd, showCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
