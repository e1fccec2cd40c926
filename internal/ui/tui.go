package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws an interactive progress bar using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *importModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. Returns an error for non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newImportModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	opts = append(opts, tea.WithContext(ctx))

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Update(event)
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program == nil {
		return nil
	}

	// Let the completion view render before quitting.
	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		r.program.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type completeMsg CompletionStats
type tickMsg time.Time

// importModel is the bubbletea model for import progress.
type importModel struct {
	tracker     *ProgressTracker
	title       string
	width       int
	quitting    bool
	complete    bool
	stats       CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newImportModel(tracker *ProgressTracker, title string) *importModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	p := progress.New(
		progress.WithSolidFill(ColorLime),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &importModel{
		tracker:     tracker,
		title:       title,
		width:       80,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m *importModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update implements tea.Model.
func (m *importModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-20, 20)

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		if m.complete {
			return m, nil
		}
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *importModel) View() string {
	if m.complete {
		return m.renderComplete()
	}
	if m.quitting {
		return "Cancelled.\n"
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	var sections []string
	if stats.Total == 0 {
		sections = append(sections, fmt.Sprintf("%s %s", m.spinner.View(), m.styles.Dim.Render("Reading export...")))
	} else {
		bar := m.progressBar.ViewAs(stats.Progress)
		pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))
		sections = append(sections, fmt.Sprintf("%s  %s", bar, pct))
		sections = append(sections, m.styles.Label.Render(
			fmt.Sprintf("%d / %d messages from %d files", stats.Done, stats.Total, stats.Files)))
	}

	speed := fmt.Sprintf("Speed: %.0f/s", stats.Speed)
	if stats.Peak > 0 {
		speed += fmt.Sprintf(" (peak: %.0f)", stats.Peak)
	}
	parts := []string{m.styles.Label.Render(speed)}
	if stats.ETA > 0 {
		parts = append(parts, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	sections = append(sections, strings.Join(parts, m.styles.Dim.Render("  •  ")))

	title := "chatsearch import"
	if m.title != "" {
		title += " • " + m.title
	}
	panel := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Width(width).Render(strings.Join(sections, "\n")),
	)

	return panel + "\n" + m.renderStatusBar() + "\n"
}

func (m *importModel) renderStatusBar() string {
	failed := m.tracker.Stats().Failed
	if failed == 0 {
		return m.styles.Dim.Render("q to quit")
	}
	return m.styles.Error.Render(fmt.Sprintf("✗ %d failed", failed)) + m.styles.Dim.Render("  │  q to quit")
}

func (m *importModel) renderComplete() string {
	s := m.stats
	lines := []string{
		m.styles.Success.Render("✓ Import complete"),
		fmt.Sprintf("  %s %s", m.styles.Label.Render("Chat:    "), m.styles.Value.Render(fmt.Sprint(s.ChannelID))),
		fmt.Sprintf("  %s %s", m.styles.Label.Render("Files:   "), m.styles.Value.Render(fmt.Sprint(s.Files))),
		fmt.Sprintf("  %s %s", m.styles.Label.Render("Messages:"), m.styles.Value.Render(fmt.Sprint(s.Messages))),
		fmt.Sprintf("  %s %s", m.styles.Label.Render("Duration:"), m.styles.Value.Render(formatDuration(s.Duration))),
	}
	if s.Failed > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("  %d messages failed", s.Failed)))
	}
	return strings.Join(lines, "\n") + "\n"
}
