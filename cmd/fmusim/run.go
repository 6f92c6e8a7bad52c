package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tianwei1989/EstimationPy/internal/config"
	"github.com/tianwei1989/EstimationPy/internal/metrics"
	"github.com/tianwei1989/EstimationPy/internal/model"
	"github.com/tianwei1989/EstimationPy/internal/storage"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if preset != "" {
		if err := cfg.ApplyPreset(preset); err != nil {
			return err
		}
	}
	if !cmd.Flags().Changed("data") && cfg.ResultsDir != "" {
		dataDir = cfg.ResultsDir
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	m, err := cfg.Open()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobs, err := parseSweep(sweep)
	if err != nil {
		return err
	}

	fmt.Printf("running %s...\n", m.GetFmuName())
	start := time.Now()

	var runs []model.Run
	if jobs == nil {
		t, res, err := m.SimulateContext(ctx, opts)
		if err != nil {
			return err
		}
		runs = []model.Run{{Time: t, Results: res}}
		jobs = []model.Job{{}}
	} else {
		pool, err := model.NewPool(m, workers)
		if err != nil {
			return err
		}
		if runs, err = pool.Run(ctx, opts, jobs); err != nil {
			return err
		}
	}
	fmt.Printf("completed in %v\n", time.Since(start))

	for i, r := range runs {
		params := make(map[string]float64, len(cfg.Parameters)+len(jobs[i].Parameters))
		for k, v := range cfg.Parameters {
			params[k] = v
		}
		for k, v := range jobs[i].Parameters {
			params[k] = v
		}

		fit, err := measuredFit(m, r)
		if err != nil {
			return err
		}

		runID, err := st.Save(storage.Run{
			Model:       m.GetFmuName(),
			Description: cfg.Model,
			Parameters:  params,
			Metrics:     fit,
			Outputs:     m.GetOutputNames(),
			Times:       r.Time,
			Results:     r.Results,
		})
		if err != nil {
			return err
		}
		logrus.Infof("stored run %s in %s", runID, dataDir)

		fmt.Printf("\nrun id: %s\n", runID)
		fmt.Printf("steps: %d\n", len(r.Time)-1)
		for _, name := range m.GetOutputNames() {
			v := r.Results[name]
			fmt.Printf("  %s(final) = %.6f\n", name, v[len(v)-1])
		}
		for _, name := range sortedNames(fit) {
			fmt.Printf("  %s = %.6f\n", name, fit[name])
		}
	}
	return nil
}

// measuredFit scores every measured output of a run, keyed "output.metric".
func measuredFit(m *model.Model, r model.Run) (map[string]float64, error) {
	fit := make(map[string]float64)
	for _, o := range m.GetMeasuredOutputs() {
		data, err := o.GetMeasuredDataSeries()
		if err != nil {
			return nil, err
		}
		scores, err := metrics.Compare(r.Time, r.Results[o.Name()], data, metrics.Defaults()...)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", o.Name(), err)
		}
		for k, v := range scores {
			fit[o.Name()+"."+k] = v
		}
	}
	return fit, nil
}

// parseSweep turns "b=1,2,4" into one job per value.
func parseSweep(arg string) ([]model.Job, error) {
	if arg == "" {
		return nil, nil
	}
	name, list, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || list == "" {
		return nil, fmt.Errorf("invalid sweep %q, want name=v1,v2,...", arg)
	}

	var jobs []model.Job
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sweep value %q: %w", field, err)
		}
		jobs = append(jobs, model.Job{Parameters: map[string]float64{name: v}})
	}
	return jobs, nil
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
