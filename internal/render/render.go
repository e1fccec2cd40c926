// Package render turns a page of search results into chat message text
// plus the inline controls that page through it.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/chatsearch/internal/pagination"
	"github.com/Aman-CERP/chatsearch/internal/search"
)

// TimeLayout formats hit timestamps.
const TimeLayout = "2006/01/02 15:04"

// NoResults is the body of an empty page.
const NoResults = "no result found"

// Control labels.
const (
	LabelPrevious = "« previous"
	LabelNext     = "next »"
	LabelClose    = "❌ close"
)

// Button is one inline control. Data is a pagination token.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Message is a rendered result page.
type Message struct {
	Text     string
	Controls Keyboard
}

// Host identifies the message that will carry the controls. The zero Host
// is used before the message has been sent.
type Host struct {
	ChannelID int64
	MessageID int64
}

// Renderer renders result pages. Safe for concurrent use.
type Renderer struct {
	codec *pagination.Codec
	loc   *time.Location
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLocation sets the time zone of rendered timestamps. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// New creates a Renderer encoding controls with codec.
func New(codec *pagination.Codec, opts ...Option) *Renderer {
	if codec == nil {
		codec = pagination.NewCodec("")
	}
	r := &Renderer{codec: codec, loc: time.Local}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the text and controls for res.
func (r *Renderer) Render(res *search.Result, host Host) Message {
	return Message{
		Text:     r.Text(res),
		Controls: r.Controls(res, host),
	}
}

// Text returns the message body for res.
func (r *Renderer) Text(res *search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\"*%s*\" search results (page %d):\n\n", Escape(res.Query), pageOf(res))

	if res.Empty() {
		sb.WriteString(NoResults)
		return sb.String()
	}

	for i, hit := range res.Hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s - %s](%s): %s",
			r.formatTime(hit.Timestamp), Escape(hit.Author), hit.Permalink, Escape(hit.Text))
	}
	return sb.String()
}

// Controls returns the paging row and the close row. The next button is
// omitted once the page reaches the last match.
func (r *Renderer) Controls(res *search.Result, host Host) Keyboard {
	page := pageOf(res)

	var paging []Button
	if page > 1 {
		paging = append(paging, Button{Label: LabelPrevious, Data: r.codec.EncodePage(page-1, res.Query)})
	}
	if HasMore(res) {
		paging = append(paging, Button{Label: LabelNext, Data: r.codec.EncodePage(page+1, res.Query)})
	}

	return Keyboard{
		paging,
		{{Label: LabelClose, Data: r.codec.EncodeDelete(host.ChannelID, host.MessageID)}},
	}
}

// HasMore reports whether pages follow res.
func HasMore(res *search.Result) bool {
	return pageOf(res)*res.PageSize < res.Total
}

func pageOf(res *search.Result) int {
	if res.Page < 1 {
		return 1
	}
	return res.Page
}

func (r *Renderer) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(r.loc).Format(TimeLayout)
}

var escaper = strings.NewReplacer("*", `\*`, "_", `\_`)

// Escape backslash-escapes Markdown emphasis characters.
func Escape(s string) string {
	return escaper.Replace(s)
}
