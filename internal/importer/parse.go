// Package importer loads a Telegram Desktop HTML chat export into the
// search index.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DateLayout is the format of the export's date tooltips.
const DateLayout = "02.01.2006 15:04:05"

var (
	fileRe    = regexp.MustCompile(`^messages(\d*)\.html$`)
	messageRe = regexp.MustCompile(`^message(\d+)$`)
	offsetRe  = regexp.MustCompile(`UTC([+-]\d{2}):(\d{2})$`)
)

// Message is one exported chat message.
type Message struct {
	ID        int64
	Text      string
	Author    string
	Timestamp time.Time
}

// FindExportFiles returns the messages*.html files in dir in export order:
// messages.html, messages2.html, messages3.html, ...
func FindExportFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		path string
		n    int
	}
	var files []numbered
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n := 1
		if m[1] != "" {
			n, _ = strconv.Atoi(m[1])
		}
		files = append(files, numbered{path: filepath.Join(dir, e.Name()), n: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].n < files[j].n })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Parse extracts the messages of one export page. Dates without a UTC
// offset are read in loc. Messages without text are skipped; "joined"
// messages without an author inherit the previous one.
func Parse(r io.Reader, loc *time.Location) ([]Message, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	var (
		messages []Message
		author   string
		parseErr error
	)
	doc.Find("div.history > div.message").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, ok := sel.Attr("id")
		if !ok {
			return true
		}
		m := messageRe.FindStringSubmatch(id)
		if m == nil {
			return true
		}

		body := sel.ChildrenFiltered("div.body").First()
		if name := strings.TrimSpace(body.ChildrenFiltered("div.from_name").First().Text()); name != "" {
			author = name
		}

		textSel := body.ChildrenFiltered("div.text").First()
		textSel.Find("br").ReplaceWithHtml("\n")
		text := strings.TrimSpace(textSel.Text())
		if text == "" {
			return true
		}

		msgID, _ := strconv.ParseInt(m[1], 10, 64)
		title, _ := body.ChildrenFiltered("div.date").First().Attr("title")
		ts, err := parseDate(title, loc)
		if err != nil {
			parseErr = fmt.Errorf("message %d: %w", msgID, err)
			return false
		}

		messages = append(messages, Message{
			ID:        msgID,
			Text:      text,
			Author:    author,
			Timestamp: ts,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return messages, nil
}

// parseDate reads "02.01.2006 15:04:05", optionally followed by
// " UTC+03:00".
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(DateLayout) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}

	if m := offsetRe.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		offset := hours*3600 + sign(hours)*minutes*60
		if strings.HasPrefix(m[1], "-") && hours == 0 {
			offset = -minutes * 60
		}
		loc = time.FixedZone("", offset)
	}

	ts, err := time.ParseInLocation(DateLayout, s[:len(DateLayout)], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return ts, nil
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}
