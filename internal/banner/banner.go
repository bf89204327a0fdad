package banner

import (
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// Print writes the CLI banner to w.
func Print(w io.Writer) {
	fig := figure.NewFigure("WhereGoes", "doom", true)
	_, _ = color.New(color.FgRed).Fprint(w, fig.String())

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
	_, _ = green.Fprintln(w, "    Follow every hop of a redirect chain")
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}
