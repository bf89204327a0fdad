package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/statuscolor"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

// Console prints human readable traces.
type Console struct {
	w io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Writer returns the underlying writer.
func (c *Console) Writer() io.Writer { return c.w }

// PrintScanHeader announces a target.
func (c *Console) PrintScanHeader(target string) {
	fmt.Fprintf(c.w, "\n[+] Tracing: %s\n", target)
}

// PrintProgress prints the newest state of a live trace: a pending hop is
// announced once and every resolved hop is printed in full.
func (c *Console) PrintProgress(chain trace.Chain) {
	last, ok := chain.Last()
	if !ok {
		return
	}
	if last.Pending() {
		fmt.Fprintf(c.w, "  %s %s\n", statuscolor.Gray("..."), statuscolor.Gray(last.URL))
		return
	}
	fmt.Fprintf(c.w, "  ↪ %s → %s\n", last.URL, statuscolor.Sprint(last.Status))
}

// PrintResult prints a finished trace with its notes and outcome.
func (c *Console) PrintResult(res model.Result) {
	for i, h := range res.Chain {
		fmt.Fprintf(c.w, "  %s\n", statuscolor.FormatHop(h, i == len(res.Chain)-1))
	}
	c.PrintNotes(res)
	c.PrintOutcome(res)
}

// PrintNotes lists the notes attached to a trace.
func (c *Console) PrintNotes(res model.Result) {
	for _, n := range res.Notes {
		fmt.Fprintf(c.w, "  - [%s] %s: %s\n", strings.ToUpper(n.Severity), n.Type, n.Detail)
	}
}

// PrintOutcome prints the one-line verdict of a trace.
func (c *Console) PrintOutcome(res model.Result) {
	if res.Error != "" {
		_, _ = errColor.Fprintf(c.w, "  [!] %s\n", trace.FailureMessage)
		fmt.Fprintf(c.w, "      %s\n", statuscolor.Gray(res.Error))
		return
	}
	last, ok := res.Last()
	if !ok {
		return
	}
	switch trace.Reason(res.Reason) {
	case trace.ReasonNoLocation:
		_, _ = warnColor.Fprintln(c.w, "  [!] Redirect without Location header")
	case trace.ReasonCeiling:
		_, _ = warnColor.Fprintf(c.w, "  [!] Stopped after %d redirects\n", len(res.Chain)-1)
	default:
		_, _ = okColor.Fprintf(c.w, "  ✔ Final URL reached: %s (%d)\n", last.URL, last.Status)
	}
}

// PrintSummary prints one line per target.
func (c *Console) PrintSummary(i, total int, res model.Result) {
	rec := BuildRecord(res)
	fmt.Fprintf(c.w, "[%d/%d] %s -> %s | status=%d | redirects=%d | type=%s | %dms\n",
		i+1, total, rec.InputURL, rec.FinalURL, rec.StatusCode, rec.Redirects, rec.Type, rec.DurationMs)
	if rec.Error != "" {
		fmt.Fprintf(c.w, "    error: %s\n", rec.Error)
	}
}
