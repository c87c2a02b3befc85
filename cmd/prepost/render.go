package main

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/lsd"
	"prepost/internal/pipeline"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	significantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	headerStyle      = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
)

func printLine(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}

// printMarkdown renders md for the terminal unless --plain is set
func printMarkdown(cmd *cobra.Command, md string) error {
	if plain {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := renderer.Render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("Run "+s.RunID.String()))
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("wide rows:     "), s.Wide)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("paired records:"), s.Records)
	fmt.Fprintf(w, "%s %d\n", labelStyle.Render("unmatched:     "), s.Dropped)
	fmt.Fprintf(w, "%s %d analysed, %d skipped\n", labelStyle.Render("slices:        "),
		len(s.Analysis.Slices), len(s.Analysis.Skipped))

	significant := 0
	for _, sl := range s.Analysis.Slices {
		for _, r := range sl.Results {
			if r.Verdict == survey.Significant {
				significant++
			}
		}
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("significant:   "),
		significantStyle.Render(fmt.Sprintf("%d pairs", significant)))
	for _, f := range s.Files {
		fmt.Fprintln(w, labelStyle.Render("  "+f))
	}
}

// runSingleSlice compares the treatment groups of one slice and prints the
// table
func runSingleSlice(cmd *cobra.Command, long *frame.Frame, value, figurePath string) error {
	a := cfg.Analysis
	cmp, err := lsd.New(long, a.Treatment, a.Response, a.Groupby, value, lsd.WithConfidence(a.Confidence))
	if err != nil {
		return err
	}
	c, err := cmp.Compare()
	if err != nil {
		return err
	}
	anova, results := c.ANOVA, c.Results

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s %s by %s (confidence %g)", a.Groupby, value, a.Treatment, cmp.Confidence())))
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("F(%d, %d) = %.4g, p = %.4g, MSE = %.4g",
		anova.BetweenDF, anova.WithinDF, anova.F, anova.PValue, anova.MSE)))

	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{r.Pair, fmt.Sprintf("%.4f", r.AbsMeanDiff), fmt.Sprintf("%.4f", r.CriticalValue), string(r.Verdict)}
	}
	if plain {
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r[0], r[1], r[2], r[3])
		}
	} else {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers(lsd.ColumnPairs, lsd.ColumnAbsDiff, lsd.ColumnCriticalValue, lsd.ColumnSignificance).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 3 && row >= 0 && row < len(rows) && rows[row][3] == string(survey.Significant) {
					return cellStyle.Foreground(lipgloss.Color("42"))
				}
				return cellStyle
			})
		fmt.Fprintln(w, t.Render())
	}

	if figurePath != "" {
		if err := writeFigure(figurePath, c.Figure); err != nil {
			return err
		}
		printLine(cmd, "figure written to %s", figurePath)
	}
	return nil
}
