// Package observability provides formatted output for the CLI commands.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jonathan/payslip-crawler/internal/crawler"
	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/progress"
	"github.com/jonathan/payslip-crawler/internal/rename"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxRunsToShow bounds the run history table
	maxRunsToShow = 10
)

// Printer writes human-readable reports.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func (p *Printer) render(t table.Writer) {
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// PrintRunSummary outputs the counters of a finished crawl.
func (p *Printer) PrintRunSummary(s *crawler.Summary) {
	if s == nil {
		return
	}

	t := table.NewWriter()
	t.SetTitle("CRAWL SUMMARY")
	t.AppendRows([]table.Row{
		{"Status", string(s.Status)},
		{"Started at index", s.StartIndex},
		{"Next index", s.NextIndex},
		{"Processed", s.Processed},
		{"Succeeded", s.Succeeded},
		{"Failed", s.Failed},
		{"Total completed", s.TotalCompleted},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Files", s.Files},
		{"Renamed", s.Renamed},
		{"Duplicates", s.Duplicates},
		{"Unresolved dates", s.Unresolved},
		{"Duration", s.Duration.Round(time.Second).String()},
	})
	p.render(t)
}

// PrintRenameReport outputs the counters of a rename pass.
func (p *Printer) PrintRenameReport(r rename.Report) {
	t := table.NewWriter()
	t.SetTitle("RENAME SUMMARY")
	t.AppendHeader(table.Row{"", "Files"})
	t.AppendRows([]table.Row{
		{"Scanned", r.Scanned},
		{"XML renamed", r.XMLRenamed},
		{"PDF renamed", r.PDFRenamed},
		{"Duplicates removed", r.Duplicates},
		{"Unresolved", r.Unresolved},
	})
	t.AppendFooter(table.Row{"Total renamed", r.Renamed()})
	p.render(t)
	if r.Interrupted {
		fmt.Fprintln(p.out, "Interrupted before every file was processed.") //nolint:errcheck
	}
}

// PrintProgress outputs the saved resume point.
func (p *Printer) PrintProgress(source string, rec progress.Record) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:          %s\n", source))
	if rec.IsZero() {
		sb.WriteString("No saved progress; the next crawl starts at item 1.")
		p.printBox("PROGRESS", sb.String())
		return
	}
	sb.WriteString(fmt.Sprintf("Next index:      %d (item %d)\n", rec.LastIndex, rec.LastIndex+1))
	sb.WriteString(fmt.Sprintf("Total completed: %d\n", rec.TotalCompleted))
	if !rec.UpdatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Last updated:    %s", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05")))
	}
	p.printBox("PROGRESS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLedgerSummary outputs artifact outcome totals and recent runs.
func (p *Printer) PrintLedgerSummary(s *ledger.Summary, runs []ledger.RunInfo) {
	if s == nil {
		return
	}

	outcomes := table.NewWriter()
	outcomes.SetTitle(fmt.Sprintf("LEDGER: %d runs, %d artifacts", s.Runs, s.Artifacts))
	outcomes.AppendHeader(table.Row{"Outcome", "Artifacts"})
	keys := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		outcomes.AppendRow(table.Row{k, s.Outcomes[k]})
	}
	p.render(outcomes)

	if len(runs) == 0 {
		return
	}
	history := table.NewWriter()
	history.SetTitle("RECENT RUNS")
	history.AppendHeader(table.Row{"Started", "Kind", "Status", "Processed", "OK", "Failed", "Files"})
	for i, r := range runs {
		if i == maxRunsToShow {
			history.AppendFooter(table.Row{fmt.Sprintf("... and %d more", len(runs)-maxRunsToShow)})
			break
		}
		history.AppendRow(table.Row{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Kind,
			r.Status,
			r.Stats.Processed,
			r.Stats.Succeeded,
			r.Stats.Failed,
			r.Stats.Files,
		})
	}
	p.render(history)
}
