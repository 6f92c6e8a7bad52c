package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tianwei1989/EstimationPy/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCREATED\tSTART\tFINAL\tSTEPS")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.StartTime.Format("2006-01-02 15:04:05"),
			run.FinalTime.Format("2006-01-02 15:04:05"),
			run.Steps,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	if asJSON {
		return st.Export(os.Stdout, runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	times, results, err := st.LoadTrajectories(runID)
	if err != nil {
		return err
	}

	lines := []string{
		titleStyle.Render(meta.ID),
		field("model", meta.Model),
		field("description", meta.Description),
		field("created", meta.Timestamp.Local().Format("2006-01-02 15:04:05")),
		field("interval", fmt.Sprintf("%s .. %s", meta.StartTime.Format("2006-01-02 15:04:05"), meta.FinalTime.Format("2006-01-02 15:04:05"))),
		field("steps", fmt.Sprintf("%d", meta.Steps)),
	}
	for _, name := range sortedNames(meta.Parameters) {
		lines = append(lines, field(name, fmt.Sprintf("%g", meta.Parameters[name])))
	}
	for _, name := range sortedNames(meta.Metrics) {
		lines = append(lines, field(name, fmt.Sprintf("%.6g", meta.Metrics[name])))
	}
	fmt.Println(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "OUTPUT\tINITIAL\tFINAL\tMIN\tMAX\n")
	for _, name := range meta.Outputs {
		v := results[name]
		if len(v) == 0 {
			continue
		}
		lo, hi := v[0], v[0]
		for _, x := range v {
			lo = min(lo, x)
			hi = max(hi, x)
		}
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.6f\t%.6f\n", name, v[0], v[len(v)-1], lo, hi)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println(subtleStyle.Render(fmt.Sprintf("%d samples", len(times))))
	return nil
}
