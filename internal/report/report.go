// Package report renders the results of a run as a Markdown document and as
// a standalone HTML page.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"prepost/domain/survey"
	"prepost/internal/lsd"
)

// Section is the analysis of one slice
type Section struct {
	GroupbyValue string
	ANOVA        lsd.AnovaTable
	Results      []survey.PairwiseResult
	Summaries    []survey.GroupSummary
}

// Skipped records a slice that could not be analysed
type Skipped struct {
	GroupbyValue string
	Reason       string
}

// Report collects every analysed slice of a run
type Report struct {
	RunID      string
	Title      string
	Treatment  string
	Response   string
	Groupby    string
	Confidence float64
	Records    int
	Dropped    int
	Sections   []Section
	Skipped    []Skipped
}

// Markdown renders the report with one table of pairwise comparisons and one
// table of group summaries per slice
func (r *Report) Markdown() string {
	var b strings.Builder

	title := r.Title
	if title == "" {
		title = "Fisher's LSD"
	}
	b.WriteString(fmt.Sprintf("# %s\n\n", title))
	if r.RunID != "" {
		b.WriteString(fmt.Sprintf("Run `%s`\n\n", r.RunID))
	}
	b.WriteString(fmt.Sprintf("- Treatment: %s\n", safe(r.Treatment)))
	b.WriteString(fmt.Sprintf("- Response: %s\n", safe(r.Response)))
	b.WriteString(fmt.Sprintf("- Slices by: %s\n", safe(r.Groupby)))
	b.WriteString(fmt.Sprintf("- Confidence: %g\n", r.Confidence))
	b.WriteString(fmt.Sprintf("- Paired records: %d (unmatched pairs dropped: %d)\n\n", r.Records, r.Dropped))

	for _, s := range r.Sections {
		b.WriteString(fmt.Sprintf("## %s %s\n\n", safe(r.Groupby), safe(s.GroupbyValue)))
		b.WriteString(fmt.Sprintf("F(%d, %d) = %.4g, p = %.4g, MSE = %.4g\n\n",
			s.ANOVA.BetweenDF, s.ANOVA.WithinDF, s.ANOVA.F, s.ANOVA.PValue, s.ANOVA.MSE))

		writeRow(&b, "Pair", "Abs. mean diff", "Critical value", "Verdict")
		writeRule(&b, 4)
		for _, res := range s.Results {
			writeRow(&b, res.Pair,
				fmt.Sprintf("%.4f", res.AbsMeanDiff),
				fmt.Sprintf("%.4f", res.CriticalValue),
				string(res.Verdict))
		}
		b.WriteString("\n")

		if len(s.Summaries) > 0 {
			writeRow(&b, r.Treatment, "n", "Mean", "Median", "Q1", "Q3", "SD")
			writeRule(&b, 7)
			for _, g := range s.Summaries {
				writeRow(&b, g.Label,
					fmt.Sprintf("%d", g.N),
					fmt.Sprintf("%.3f", g.Mean),
					fmt.Sprintf("%.3f", g.Median),
					fmt.Sprintf("%.3f", g.Q1),
					fmt.Sprintf("%.3f", g.Q3),
					fmt.Sprintf("%.3f", g.StdDev))
			}
			b.WriteString("\n")
		}
	}

	if len(r.Skipped) > 0 {
		b.WriteString("## Skipped\n\n")
		for _, s := range r.Skipped {
			b.WriteString(fmt.Sprintf("- %s %s: %s\n", safe(r.Groupby), safe(s.GroupbyValue), safe(s.Reason)))
		}
	}
	return b.String()
}

// HTML renders the Markdown as a complete page
func (r *Report) HTML() []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(r.Markdown()))

	title := r.Title
	if title == "" {
		title = "Fisher's LSD"
	}
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

func writeRow(b *strings.Builder, cells ...string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(safe(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func writeRule(b *strings.Builder, n int) {
	b.WriteString("|")
	for i := 0; i < n; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
}

// safe keeps labels from breaking table rows
func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
