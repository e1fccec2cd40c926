package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// maxLineBytes bounds one log line read by the viewer.
const maxLineBytes = 1024 * 1024

// followInterval is how often Follow polls for appended lines.
const followInterval = 100 * time.Millisecond

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any

	// Raw is the original line; Valid is false when it was not JSON.
	Raw   string
	Valid bool
}

// ViewerConfig configures a Viewer.
type ViewerConfig struct {
	// Level drops entries below this level when set.
	Level string

	// Pattern keeps only lines matching it when set.
	Pattern *regexp.Regexp

	// Channel keeps only entries whose channel_id attribute equals it when non-zero.
	Channel int64

	NoColor bool
}

// Viewer reads, filters and formats the JSON log written by Setup.
type Viewer struct {
	cfg    ViewerConfig
	out    io.Writer
	levels map[string]lipgloss.Style
}

// NewViewer creates a viewer printing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	v := &Viewer{cfg: cfg, out: out}
	if !cfg.NoColor {
		v.levels = map[string]lipgloss.Style{
			"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		}
	}
	return v
}

// Tail returns the matching entries among the last n lines of path.
func (v *Viewer) Tail(path string, n int) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Ring of the last n lines.
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var entries []LogEntry
	for _, line := range ring {
		if e := ParseLine(line); v.Match(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Follow sends matching lines appended to path until ctx is done. A file
// that shrinks (rotation) is reopened from the start.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- LogEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	reader := bufio.NewReaderSize(f, 64*1024)

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if info, err := os.Stat(path); err == nil && info.Size() < offset {
			slog.Debug("log_file_rotated", slog.String("path", path))
			_ = f.Close()
			if f, err = os.Open(path); err != nil {
				return fmt.Errorf("failed to reopen log file: %w", err)
			}
			reader.Reset(f)
			offset, partial = 0, ""
		}

		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				// Keep an unterminated tail for the next tick.
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			if e := ParseLine(line); v.Match(e) {
				select {
				case entries <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Print writes entries, one per line.
func (v *Viewer) Print(entries []LogEntry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.Format(e))
	}
}

// Format renders an entry as "15:04:05.000 LEVEL msg k=v ...". Attributes
// are sorted by key. Lines that are not JSON are returned unchanged.
func (v *Viewer) Format(e LogEntry) string {
	if !e.Valid {
		return e.Raw
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(v.formatLevel(e.Level))
	b.WriteByte(' ')
	b.WriteString(e.Msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func (v *Viewer) formatLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	padded := fmt.Sprintf("%-5s", label)
	if style, ok := v.levels[label]; ok {
		return style.Render(padded)
	}
	return padded
}

// Match reports whether e passes the level, channel and pattern filters.
func (v *Viewer) Match(e LogEntry) bool {
	if v.cfg.Level != "" && e.Valid {
		if LevelFromString(e.Level) < LevelFromString(v.cfg.Level) {
			return false
		}
	}
	if v.cfg.Channel != 0 {
		id, ok := e.Attrs["channel_id"].(float64)
		if !ok || int64(id) != v.cfg.Channel {
			return false
		}
	}
	if v.cfg.Pattern != nil && !v.cfg.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// ParseLine parses one line of slog JSON output.
func ParseLine(line string) LogEntry {
	e := LogEntry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.Valid = true

	if t, ok := data[slog.TimeKey].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			e.Time = parsed
		}
	}
	e.Level, _ = data[slog.LevelKey].(string)
	e.Msg, _ = data[slog.MessageKey].(string)

	delete(data, slog.TimeKey)
	delete(data, slog.LevelKey)
	delete(data, slog.MessageKey)
	e.Attrs = data
	return e
}
