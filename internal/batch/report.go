package batch

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ytbatch/internal/model"
	"ytbatch/internal/resolve"
)

const (
	OutcomeError     = "error"
	OutcomeCompleted = "completed"
	OutcomePotential = "potential"
	OutcomeNoFiles   = "no_files"
	OutcomeDryRun    = "dry_run"
)

type Report struct {
	RunID   string            `json:"run_id"`
	Learned []resolve.Learned `json:"learned_aliases,omitempty"`
	Entries []Entry           `json:"entries"`
}

type Entry struct {
	Line           int          `json:"line"`
	URL            string       `json:"url"`
	Source         model.Source `json:"source"`
	Extractor      string       `json:"extractor,omitempty"`
	Profile        string       `json:"profile"`
	Args           []string     `json:"args,omitempty"`
	Errors         []string     `json:"errors,omitempty"`
	Files          []string     `json:"files,omitempty"`
	PotentialFiles []string     `json:"potential_files,omitempty"`
	Completed      bool         `json:"completed"`
	Outcome        string       `json:"outcome"`
}

// Failures counts entries that ended in an error or produced nothing.
func (r Report) Failures() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == OutcomeError || e.Outcome == OutcomeNoFiles {
			n++
		}
	}
	return n
}

// ReportWriter prints the bordered per-URL blocks. The rule is sized to the
// longest URL in the batch so every block lines up.
type ReportWriter struct {
	w     io.Writer
	width int

	rule  lipgloss.Style
	label lipgloss.Style
	err   lipgloss.Style
	muted lipgloss.Style
	ok    lipgloss.Style
}

func NewReportWriter(w io.Writer, records []*model.Record) *ReportWriter {
	width := 0
	for _, rec := range records {
		if len(rec.URL) > width {
			width = len(rec.URL)
		}
	}
	return newReportWriter(w, width)
}

// WriteBlock renders a single entry with a rule of the given width.
func WriteBlock(w io.Writer, width int, e Entry) {
	if width < len(e.URL) {
		width = len(e.URL)
	}
	newReportWriter(w, width).Block(e)
}

func newReportWriter(w io.Writer, width int) *ReportWriter {
	r := lipgloss.NewRenderer(w)
	return &ReportWriter{
		w:     w,
		width: width,
		rule:  r.NewStyle().Foreground(lipgloss.Color("245")),
		label: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		err:   r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (rw *ReportWriter) Header(url string) {
	border := "+" + strings.Repeat("-", rw.width+2) + "+"
	fmt.Fprintln(rw.w, rw.rule.Render(border))
	fmt.Fprintf(rw.w, "%s %-*s%s\n", rw.rule.Render("|"), rw.width+1, url, rw.rule.Render("|"))
	fmt.Fprintln(rw.w, rw.rule.Render(border))
}

func (rw *ReportWriter) Error(label, msg string) {
	fmt.Fprintf(rw.w, "%s %s\n", rw.tag(label), rw.err.Render(msg))
}

func (rw *ReportWriter) Downloading(label, url string) {
	fmt.Fprintf(rw.w, "%s Downloading %s\n", rw.tag(label), url)
}

func (rw *ReportWriter) DryRun(label string, args []string, url string) {
	fmt.Fprintf(rw.w, "%s %s %s\n", rw.tag(label), rw.muted.Render("dry run:"), strings.Join(append(append([]string{}, args...), url), " "))
}

func (rw *ReportWriter) Files(label string, files, potential []string) {
	if len(files) == 0 && len(potential) == 0 {
		fmt.Fprintf(rw.w, "%s %s\n", rw.tag(label), rw.muted.Render("no files found"))
		return
	}
	for _, f := range files {
		fmt.Fprintf(rw.w, "  %s\n", rw.ok.Render(f))
	}
	for _, f := range potential {
		fmt.Fprintf(rw.w, "  %s %s\n", f, rw.muted.Render("(potential)"))
	}
}

// Block writes a whole entry at once.
func (rw *ReportWriter) Block(e Entry) {
	rw.Header(e.URL)
	label := e.Extractor
	switch e.Outcome {
	case OutcomeError:
		for _, msg := range e.Errors {
			rw.Error(label, msg)
		}
	case OutcomeDryRun:
		rw.DryRun(label, e.Args, e.URL)
	default:
		rw.Downloading(label, e.URL)
		rw.Files(label, e.Files, e.PotentialFiles)
	}
}

func (rw *ReportWriter) tag(label string) string {
	if strings.TrimSpace(label) == "" {
		label = "unknown"
	}
	return "[" + rw.label.Render(label) + "]"
}
