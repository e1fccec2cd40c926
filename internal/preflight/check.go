package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/chatsearch/internal/config"
	"github.com/Aman-CERP/chatsearch/internal/daemon"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs preflight checks against one configuration.
type Checker struct {
	cfg *config.Config
}

// New creates a Checker for cfg.
func New(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckConfig(),
		c.CheckBotToken(),
		c.CheckOwner(),
	}

	if c.cfg.Store.Path == "" {
		results = append(results, CheckResult{
			Name:    "data_dir",
			Status:  StatusWarn,
			Message: "store.path is empty, indexes are kept in memory",
			Details: "Messages are lost on restart",
		})
	} else {
		results = append(results,
			CheckWritable("data_dir", c.cfg.Store.Path),
			CheckDiskSpace(c.cfg.Store.Path),
		)
	}

	if c.cfg.Logging.File != "" {
		results = append(results, CheckWritable("log_dir", filepath.Dir(c.cfg.Logging.File)))
	}
	results = append(results,
		CheckFileDescriptors(),
		c.CheckDaemon(ctx),
	)
	return results
}

// CheckConfig validates the merged configuration.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{Name: "config", Required: true}
	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s store, %s analyzer", c.cfg.Store.Backend, c.cfg.Store.Language)
	return result
}

// CheckBotToken reports whether a bot token is configured. Only the bot
// needs it, so a missing token is a warning.
func (c *Checker) CheckBotToken() CheckResult {
	result := CheckResult{Name: "bot_token"}
	if c.cfg.Bot.Token == "" {
		result.Status = StatusWarn
		result.Message = "not set, 'run' and 'bot' will refuse to start"
		result.Details = "Set bot.token or CHATSEARCH_BOT_TOKEN"
		return result
	}
	result.Status = StatusPass
	result.Message = "set"
	return result
}

// CheckOwner reports whether anyone may run /enable and /disable.
func (c *Checker) CheckOwner() CheckResult {
	result := CheckResult{Name: "owner"}
	if c.cfg.Bot.OwnerID == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("not set, only the %d configured chats can be searched", len(c.cfg.Bot.EnabledChats))
		result.Details = "Set bot.owner_id to your Telegram user id"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("user %d, %d chats enabled at start", c.cfg.Bot.OwnerID, len(c.cfg.Bot.EnabledChats))
	return result
}

// CheckDaemon reports whether the search daemon answers on its socket.
func (c *Checker) CheckDaemon(ctx context.Context) CheckResult {
	result := CheckResult{Name: "daemon"}
	dc := daemon.DefaultConfig()
	dc.SocketPath = c.cfg.Daemon.SocketPath
	dc.PIDPath = c.cfg.Daemon.PIDPath
	dc.Timeout = c.cfg.DaemonTimeout()
	client := daemon.NewClient(dc)

	if !client.IsRunning() {
		result.Status = StatusPass
		result.Message = "not running, commands open the store directly"
		if pid, ok := daemon.RunningPID(c.cfg.Daemon.PIDPath); ok {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("process %d holds the lock but the socket is down", pid)
			result.Details = "Run 'chatsearch daemon stop' and start it again"
		}
		return result
	}

	if err := client.Ping(ctx); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("socket accepts connections but ping failed: %v", err)
		return result
	}
	result.Status = StatusPass
	result.Message = "running at " + c.cfg.Daemon.SocketPath
	return result
}

// CheckWritable checks that dir exists (creating it if needed) and accepts
// new files.
func CheckWritable(name, dir string) CheckResult {
	result := CheckResult{Name: name, Required: true}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".chatsearch-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "ready", "ready_with_warnings" or "failed".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a human-readable report. Details are shown for
// anything that did not pass, and for everything when verbose is set.
func PrintResults(w io.Writer, results []CheckResult, verbose bool) {
	_, _ = fmt.Fprintln(w, "chatsearch system check")
	_, _ = fmt.Fprintln(w, "=======================")
	_, _ = fmt.Fprintln(w)

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(w, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Status: %s\n", strings.ToUpper(SummaryStatus(results)))
}
