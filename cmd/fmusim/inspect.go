package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tianwei1989/EstimationPy/internal/engine"
	"github.com/tianwei1989/EstimationPy/internal/model"
)

func inspectModel(cmd *cobra.Command, args []string) error {
	m, err := model.Open(args[0])
	if err != nil {
		return err
	}
	props := m.GetProperties()

	info := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(props.Name),
		field("file", m.GetFmuFilePath()),
		field("author", props.Author),
		field("description", props.Description),
		field("type", props.Type),
		field("version", props.Version),
		field("guid", props.GUID),
		field("tool", props.Tool),
		field("states", strconv.Itoa(props.NumStates)),
	)

	table, err := variableTable(m.GetFMU().Variables())
	if err != nil {
		return err
	}

	summary := subtleStyle.Render(fmt.Sprintf("%d inputs, %d outputs, %d parameters, %d free variables",
		m.GetNumInputs(), m.GetNumOutputs(), m.GetNumParameters(), m.GetNumVariables()))

	fmt.Println(panelStyle.Render(info))
	fmt.Println(panelStyle.Render(table + "\n\n" + summary))
	return nil
}

// variableTable lays the variables out in columns. The header is styled
// after alignment so escape codes do not count towards column widths.
func variableTable(vars []engine.ScalarVariable) (string, error) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCAUSALITY\tREF\tSTART\tDESCRIPTION")
	for _, v := range vars {
		causality := v.Causality.String()
		if v.IsState {
			causality += " (state)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%s\n", v.Name, causality, v.ValueReference, v.Start, v.Description)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	lines[0] = headerStyle.Render(lines[0])
	return strings.Join(lines, "\n"), nil
}
