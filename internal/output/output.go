// Package output formats CLI output: status lines, search results and JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/chatsearch/internal/render"
	"github.com/Aman-CERP/chatsearch/internal/search"
)

// snippetRunes caps the message text shown per hit.
const snippetRunes = 160

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
	loc *time.Location
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out, loc: time.Local}
}

// WithLocation sets the zone used for hit timestamps.
func (w *Writer) WithLocation(loc *time.Location) *Writer {
	if loc != nil {
		w.loc = loc
	}
	return w
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Result prints one page of search hits for the terminal.
func (w *Writer) Result(res *search.Result) {
	if res.Empty() {
		w.Status("🔍", fmt.Sprintf("no result found for %q", queryOf(res)))
		return
	}

	pages := (res.Total + res.PageSize - 1) / res.PageSize
	w.Statusf("🔍", "%d results for %q (page %d/%d)", res.Total, res.Query, res.Page, pages)
	w.Newline()

	for i, hit := range res.Hits {
		n := (res.Page-1)*res.PageSize + i + 1
		_, _ = fmt.Fprintf(w.out, "%3d. [%s] %s\n", n, hit.Timestamp.In(w.loc).Format(render.TimeLayout), hit.Author)
		_, _ = fmt.Fprintf(w.out, "     %s\n", snippet(hit.Text))
		if hit.Permalink != "" {
			_, _ = fmt.Fprintf(w.out, "     %s\n", hit.Permalink)
		}
	}

	if res.Page < pages {
		w.Newline()
		w.Statusf("", "more: --page %d", res.Page+1)
	}
}

func queryOf(res *search.Result) string {
	if res == nil {
		return ""
	}
	return res.Query
}

// snippet flattens text to one line and truncates it at a rune boundary.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "…"
}
