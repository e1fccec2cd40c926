package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// StatusInfo describes the search daemon and its indexes.
type StatusInfo struct {
	DaemonStatus string    `json:"daemon_status"` // "running", "stopped"
	PID          int       `json:"pid,omitempty"`
	Uptime       string    `json:"uptime,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	SocketPath   string    `json:"socket_path"`
	StartedAt    time.Time `json:"started_at,omitzero"`

	DocumentsAdded int64 `json:"documents_added"`
	DuplicatesSeen int64 `json:"duplicates_seen"`
	IngestFailures int64 `json:"ingest_failures"`
	QueriesServed  int64 `json:"queries_served"`
	QueryFailures  int64 `json:"query_failures"`

	// Indexes maps index name to document count.
	Indexes map[string]int `json:"indexes,omitempty"`
}

// StatusRenderer displays daemon status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("chatsearch status"))

	_, _ = fmt.Fprintf(r.out, "  Daemon:  %s\n", r.renderStatus(info.DaemonStatus))
	_, _ = fmt.Fprintf(r.out, "  Socket:  %s\n", info.SocketPath)
	if info.DaemonStatus != "running" {
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  PID:     %d\n", info.PID)
	_, _ = fmt.Fprintf(r.out, "  Uptime:  %s\n", info.Uptime)
	if !info.StartedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Started: %s\n", formatTime(info.StartedAt))
	}
	if info.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "  Backend: %s\n", info.Backend)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Since start:")
	_, _ = fmt.Fprintf(r.out, "    Added:      %d\n", info.DocumentsAdded)
	_, _ = fmt.Fprintf(r.out, "    Duplicates: %d\n", info.DuplicatesSeen)
	_, _ = fmt.Fprintf(r.out, "    Queries:    %d\n", info.QueriesServed)
	if info.IngestFailures > 0 || info.QueryFailures > 0 {
		_, _ = fmt.Fprintf(r.out, "    Failures:   %s\n",
			r.styles.Error.Render(fmt.Sprintf("%d ingest, %d query", info.IngestFailures, info.QueryFailures)))
	}
	_, _ = fmt.Fprintln(r.out)

	names := make([]string, 0, len(info.Indexes))
	total := 0
	for name, n := range info.Indexes {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)

	_, _ = fmt.Fprintf(r.out, "  Indexes: %d (%d messages)\n", len(names), total)
	for _, name := range names {
		_, _ = fmt.Fprintf(r.out, "    %-24s %d\n", name, info.Indexes[name])
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "running":
		return r.styles.Success.Render(status)
	case "stopped":
		return r.styles.Warning.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
