package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatsearch/internal/config"
	"github.com/Aman-CERP/chatsearch/internal/daemon"
	cserrors "github.com/Aman-CERP/chatsearch/internal/errors"
	"github.com/Aman-CERP/chatsearch/pkg/version"
)

const testChat = "-1001234567890"

const testExport = `<html><body><div class="history">
 <div class="message default clearfix" id="message1">
  <div class="body">
   <div class="pull_right date details" title="01.03.2024 12:00:00 UTC+00:00">12:00</div>
   <div class="from_name">Alice</div>
   <div class="text">my cat is asleep</div>
  </div>
 </div>
 <div class="message default clearfix" id="message2">
  <div class="body">
   <div class="pull_right date details" title="01.03.2024 12:01:00 UTC+00:00">12:01</div>
   <div class="from_name">Bob</div>
   <div class="text">the dog barks</div>
  </div>
 </div>
 <div class="message default clearfix" id="message3">
  <div class="body">
   <div class="pull_right date details" title="01.03.2024 12:02:00 UTC+00:00">12:02</div>
   <div class="from_name">Carol</div>
   <div class="text">cat food is expensive</div>
  </div>
 </div>
</div></body></html>`

// testEnv isolates HOME, the user config and the working directory, and
// writes a config file whose store and socket live in temp dirs.
type testEnv struct {
	configFile string
	storeDir   string
	socketPath string
	pidPath    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"CHATSEARCH_BOT_TOKEN", "CHATSEARCH_STORE_PATH", "CHATSEARCH_SOCKET", "CHATSEARCH_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())

	env := testEnv{
		configFile: filepath.Join(t.TempDir(), "chatsearch.yaml"),
		storeDir:   t.TempDir(),
		// Unix socket paths must stay short.
		socketPath: filepath.Join("/tmp", fmt.Sprintf("chatsearch-cmd-%d.sock", time.Now().UnixNano())),
		pidPath:    filepath.Join(t.TempDir(), "daemon.pid"),
	}
	t.Cleanup(func() { _ = os.Remove(env.socketPath) })

	yaml := fmt.Sprintf(`version: 1
bot:
  token: "123:secret"
search:
  page_size: 10
  signing_key: "hush"
store:
  backend: bleve
  path: %s
  language: english
daemon:
  socket_path: %s
  pid_path: %s
  timeout: 2s
logging:
  level: warn
  file: %s
`, env.storeDir, env.socketPath, env.pidPath, filepath.Join(t.TempDir(), "server.log"))
	require.NoError(t, os.WriteFile(env.configFile, []byte(yaml), 0o600))
	return env
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeExportDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "messages.html"), []byte(testExport), 0o600))
	return dir
}

func TestRootCmd_HasCommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sc := range cmd.Commands() {
		names[sc.Name()] = true
	}

	for _, want := range []string{"run", "daemon", "bot", "search", "import", "status", "doctor", "config", "mcp", "logs", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestImportThenSearch_Local(t *testing.T) {
	// Given: a config with an on-disk store and an export of three messages
	env := newTestEnv(t)
	dir := writeExportDir(t)

	// When: importing the export
	out, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", "--tz", "UTC", dir)

	// Then: every message is imported
	require.NoError(t, err, out)
	assert.Contains(t, out, "Complete: 3 messages from 1 files imported into chat "+testChat)

	// When: searching for cat
	out, err = execute(t, "--config", env.configFile, "search", "--chat="+testChat, "--local", "cat")

	// Then: both cat messages are listed, newest first
	require.NoError(t, err, out)
	assert.Contains(t, out, `2 results for "cat" (page 1/1)`)
	assert.Contains(t, out, "Carol")
	assert.Contains(t, out, "Alice")
	assert.Less(t, bytes.Index([]byte(out), []byte("Carol")), bytes.Index([]byte(out), []byte("Alice")))
	assert.NotContains(t, out, "Bob")
}

func TestImport_IsRepeatable(t *testing.T) {
	env := newTestEnv(t)
	dir := writeExportDir(t)

	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", dir)
	require.NoError(t, err)
	_, err = execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", dir)
	require.NoError(t, err)

	out, err := execute(t, "--config", env.configFile, "search", "--chat="+testChat, "--json", "cat")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 2`)
}

func TestImport_MissingExport(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no messages*.html files found")
}

func TestImport_BadTimeZone(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--tz", "Mars/Olympus", writeExportDir(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown time zone")
}

func TestSearch_UnknownChatIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "search", "--chat=42", "cat")

	require.NoError(t, err)
	assert.Contains(t, out, `no result found for "cat"`)
}

func TestSearch_RequiresChat(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(t, "--config", env.configFile, "search", "cat")

	require.Error(t, err)
}

func TestSearch_PagesThroughResults(t *testing.T) {
	env := newTestEnv(t)
	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", writeExportDir(t))
	require.NoError(t, err)

	first, err := execute(t, "--config", env.configFile, "search", "--chat="+testChat, "--page-size", "1", "cat")
	require.NoError(t, err)
	second, err := execute(t, "--config", env.configFile, "search", "--chat="+testChat, "--page-size", "1", "--page", "2", "cat")
	require.NoError(t, err)

	assert.Contains(t, first, "(page 1/2)")
	assert.Contains(t, first, "more: --page 2")
	assert.Contains(t, first, "Carol")
	assert.Contains(t, second, "(page 2/2)")
	assert.NotContains(t, second, "more:")
	assert.Contains(t, second, "Alice")
}

func TestEngine_StoreLockIsExclusive(t *testing.T) {
	// Given: an engine holding the on-disk store
	env := newTestEnv(t)
	cfg, err := config.Load(env.configFile)
	require.NoError(t, err)
	eng, err := openEngine(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	// When: a second engine opens the same store
	_, err = openEngine(cfg, nil)

	// Then: it is refused
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use by another process")
}

// startTestDaemon serves the configured store over the socket until the
// test ends.
func startTestDaemon(t *testing.T, env testEnv) {
	t.Helper()
	cfg, err := config.Load(env.configFile)
	require.NoError(t, err)
	eng, err := openEngine(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	dc := daemonConfig(cfg)
	go func() { errCh <- daemon.Serve(ctx, dc, eng.service, cfg.Store.Backend) }()
	require.Eventually(t, daemon.NewClient(dc).IsRunning, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
		_ = eng.Close()
	})
}

func TestImportAndSearch_ThroughDaemon(t *testing.T) {
	// Given: a running daemon that owns the store
	env := newTestEnv(t)
	startTestDaemon(t, env)

	// When: importing and searching without --local
	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", writeExportDir(t))
	require.NoError(t, err)
	out, err := execute(t, "--config", env.configFile, "search", "--chat="+testChat, "cat")

	// Then: both go through the socket, since the store lock is held
	require.NoError(t, err)
	assert.Contains(t, out, `2 results for "cat"`)

	// When: a local search is forced
	_, err = execute(t, "--config", env.configFile, "search", "--chat="+testChat, "--local", "cat")

	// Then: the store is busy
	require.Error(t, err)
}

func TestStatusCmd_Running(t *testing.T) {
	env := newTestEnv(t)
	startTestDaemon(t, env)
	_, err := execute(t, "--config", env.configFile, "import", "--chat="+testChat, "--no-tui", writeExportDir(t))
	require.NoError(t, err)

	out, err := execute(t, "--config", env.configFile, "status", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "Daemon:  running")
	assert.Contains(t, out, "Backend: bleve")
	assert.Contains(t, out, "chat_index_"+testChat)
	assert.Contains(t, out, "Indexes: 1 (3 messages)")
}

func TestStatusCmd_Stopped(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "status", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "Daemon:  stopped")
	assert.Contains(t, out, env.socketPath)
	assert.Contains(t, out, "chatsearch daemon start")
}

func TestStatusCmd_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "status", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"daemon_status": "stopped"`)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "language: english")
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "123:secret")
	assert.NotContains(t, out, "hush")
}

func TestConfigShow_JSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "config", "show", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"backend": "bleve"`)
	assert.NotContains(t, out, "123:secret")
}

func TestConfigInit_CreatesAndBacksUp(t *testing.T) {
	newTestEnv(t)
	path := config.GetUserConfigPath()

	// When: creating the user config
	out, err := execute(t, "config", "init")

	// Then: the template is written and loads cleanly
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration")
	_, err = config.LoadFile(path)
	require.NoError(t, err)

	// When: running init again without --force
	out, err = execute(t, "config", "init")

	// Then: the file is kept
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	// When: forcing
	out, err = execute(t, "config", "init", "--force")

	// Then: a backup is kept
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigPath(t *testing.T) {
	newTestEnv(t)

	out, err := execute(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath()+"\n", out)
}

func TestBotCmd_RemoteNeedsDaemon(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(t, "--config", env.configFile, "bot", "--remote")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search daemon is not running")
}

func TestDaemonStop_NotRunning(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configFile, "daemon", "stop")

	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestLogsCmd_FiltersByChat(t *testing.T) {
	// Given: a log file with entries for two chats
	env := newTestEnv(t)
	logFile := filepath.Join(t.TempDir(), "chatsearch.log")
	require.NoError(t, os.WriteFile(logFile, []byte(
		`{"time":"2024-03-01T12:00:00Z","level":"INFO","msg":"search_completed","channel_id":`+testChat+`}`+"\n"+
			`{"time":"2024-03-01T12:00:01Z","level":"INFO","msg":"search_completed","channel_id":-1009}`+"\n"), 0o600))

	// When: showing the log for one chat
	cmd := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{"--config", env.configFile, "logs", "--file", logFile, "--chat=" + testChat})
	require.NoError(t, cmd.Execute())

	// Then: only that chat's entry is printed
	assert.Equal(t, 1, strings.Count(stdout.String(), "search_completed"))
	assert.Contains(t, stdout.String(), "channel_id="+testChat)
	assert.Contains(t, stderr.String(), logFile)
}

func TestLogsCmd_RejectsBadLevel(t *testing.T) {
	env := newTestEnv(t)

	_, err := execute(t, "--config", env.configFile, "logs", "--level", "loud")

	require.Error(t, err)
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	// Given: a CPU and a heap profile requested for a quick command
	newTestEnv(t)
	dir := t.TempDir()
	cpu, heap := filepath.Join(dir, "cpu.prof"), filepath.Join(dir, "heap.prof")

	// When: running it
	_, err := execute(t, "--profile-cpu", cpu, "--profile-mem", heap, "version", "--short")

	// Then: both profiles are written
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}

func TestVersionCmd_Outputs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"version"}, "chatsearch"},
		{[]string{"version", "--short"}, version.Version},
		{[]string{"version", "--json"}, `"version"`},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestDoctorCmd_JSONReport(t *testing.T) {
	// Given: a valid config and no daemon
	env := newTestEnv(t)

	// When: running doctor with JSON output
	out, _ := execute(t, "--config", env.configFile, "doctor", "--json")

	// Then: the report lists the checks by name with their status
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.NotEmpty(t, report.Status)

	statuses := make(map[string]string)
	for _, c := range report.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, "pass", statuses["config"])
	assert.Equal(t, "pass", statuses["bot_token"])
	assert.Equal(t, "warn", statuses["owner"])
	assert.Equal(t, "pass", statuses["data_dir"])
	assert.Equal(t, "pass", statuses["daemon"])
}

func TestDoctorCmd_InvalidConfigFails(t *testing.T) {
	// Given: a config with an unknown store backend
	newTestEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("store:\n  backend: postgres\n"), 0o600))

	// When: running doctor
	out, err := execute(t, "--config", bad, "doctor")

	// Then: the config check fails and the command reports failure
	require.ErrorIs(t, err, errDoctorFailed)
	assert.Contains(t, out, "[FAIL] config")
	assert.Contains(t, out, "Status: FAILED")
}

func TestRunCmd_BotFailureStopsServers(t *testing.T) {
	// Given a config without a bot token
	env := newTestEnv(t)
	data, err := os.ReadFile(env.configFile)
	require.NoError(t, err)
	data = bytes.Replace(data, []byte(`token: "123:secret"`), []byte(`token: ""`), 1)
	require.NoError(t, os.WriteFile(env.configFile, data, 0o600))

	// When run fails to start the bot
	_, err = execute(t, "--config", env.configFile, "run")

	// Then the error is returned only after the socket server has shut down
	require.Error(t, err)
	assert.True(t, cserrors.HasCode(err, cserrors.ErrCodeMissingToken))
	assert.NoFileExists(t, env.socketPath)

	lock := daemon.NewInstanceLock(env.pidPath)
	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
}
