package statuscolor

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"

	"github.com/selimozcann/WhereGoes/internal/model"
)

// PendingMark is shown in place of a status that has not arrived yet.
const PendingMark = "..."

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	gray   = color.New(color.FgHiBlack)
)

func colorFor(status int) *color.Color {
	switch {
	case status == model.StatusPending:
		return gray
	case status >= 200 && status < 300:
		return green
	case status >= 300 && status < 400:
		return yellow
	case status >= 400:
		return red
	default:
		return gray
	}
}

// Sprint returns a colorized status code string.
func Sprint(status int) string {
	if status == model.StatusPending {
		return gray.Sprint(PendingMark)
	}
	return colorFor(status).Sprint(strconv.Itoa(status))
}

// WrapByStatus wraps the provided text with the color that corresponds to the
// supplied status code.
func WrapByStatus(text string, status int) string {
	return colorFor(status).Sprint(text)
}

// Gray wraps the provided text with a gray color.
func Gray(text string) string {
	return gray.Sprint(text)
}

// Label names the role of a hop the way the result timeline shows it.
func Label(h model.Hop, final bool) string {
	switch {
	case h.Pending():
		return "Tracing"
	case final:
		return "Final Destination"
	default:
		return "Redirect"
	}
}

// FormatHop renders one hop line.
func FormatHop(h model.Hop, final bool) string {
	return fmt.Sprintf("[%d] %s %s %s", h.Index, Sprint(h.Status), WrapByStatus(h.URL, h.Status), Gray("("+Label(h, final)+")"))
}
