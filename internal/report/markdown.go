package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/techscan/internal/crawler"
)

// maxChartSlices bounds the pie chart; the remainder is folded into "Other".
const maxChartSlices = 8

// MarkdownWriter renders a human-readable summary of a run.
type MarkdownWriter struct {
	path string
}

// NewMarkdownWriter returns a writer targeting path.
func NewMarkdownWriter(path string) *MarkdownWriter {
	return &MarkdownWriter{path: path}
}

// Name identifies the sink in logs and metrics.
func (*MarkdownWriter) Name() string { return "markdown" }

// Write replaces the summary file.
func (w *MarkdownWriter) Write(ctx context.Context, summary crawler.RunSummary, results crawler.AggregateResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return writeFileAtomic(w.path, func(out io.Writer) error {
		return RenderMarkdown(out, summary, results)
	})
}

// TechCount is how many pages a technology was detected on.
type TechCount struct {
	Name  string
	Pages int
}

// CountTechnologies tallies detections, most frequent first, ties by name.
func CountTechnologies(results crawler.AggregateResult) []TechCount {
	counts := map[string]int{}
	for _, r := range results {
		for _, tech := range r.Technologies {
			counts[tech]++
		}
	}
	out := make([]TechCount, 0, len(counts))
	for name, pages := range counts {
		out = append(out, TechCount{Name: name, Pages: pages})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pages != out[j].Pages {
			return out[i].Pages > out[j].Pages
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// RenderMarkdown writes the summary document to out.
func RenderMarkdown(out io.Writer, summary crawler.RunSummary, results crawler.AggregateResult) error {
	md := markdown.NewMarkdown(out)
	counts := CountTechnologies(results)

	md.H1("techscan report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run", "`" + summary.RunID + "`"},
			{"Started", summary.StartedAt.UTC().Format(time.RFC3339)},
			{"Duration", summary.Duration.Round(time.Millisecond).String()},
			{"Workers", strconv.Itoa(summary.Workers)},
			{"URLs", strconv.Itoa(summary.URLs)},
			{"Captured", strconv.Itoa(summary.Captured)},
			{"Failed", strconv.Itoa(summary.Failed)},
		},
	})
	md.PlainText("")

	if summary.Failed > 0 {
		md.Warningf("%d page(s) could not be captured and are missing from the results.", summary.Failed)
		md.PlainText("")
	}

	md.H2("Technologies")
	md.PlainText("")
	if len(counts) == 0 {
		md.PlainText("No technologies detected.")
		md.PlainText("")
	} else {
		rows := make([][]string, 0, len(counts))
		for _, c := range counts {
			rows = append(rows, []string{c.Name, strconv.Itoa(c.Pages)})
		}
		md.Table(markdown.TableSet{Header: []string{"Technology", "Pages"}, Rows: rows})
		md.PlainText("")
		writePieChart(md, counts)
	}

	md.H2("Pages")
	md.PlainText("")
	if len(results) == 0 {
		md.PlainText("No pages captured.")
	} else {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			techs := "-"
			if len(r.Technologies) > 0 {
				techs = strings.Join(r.Technologies, ", ")
			}
			rows = append(rows, []string{r.URL, techs})
		}
		md.Table(markdown.TableSet{Header: []string{"URL", "Technologies"}, Rows: rows})
	}
	md.PlainText("")

	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return nil
}

func writePieChart(md *markdown.Markdown, counts []TechCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Detections by technology"),
		piechart.WithShowData(true),
	)
	other := 0
	for i, c := range counts {
		if i >= maxChartSlices {
			other += c.Pages
			continue
		}
		chart.LabelAndIntValue(c.Name, uint64(c.Pages))
	}
	if other > 0 {
		chart.LabelAndIntValue("Other", uint64(other))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}
