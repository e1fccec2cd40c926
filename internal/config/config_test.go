package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir and moves into another.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 10, cfg.Search.PageSize)
	assert.Equal(t, "bleve", cfg.Store.Backend)
	assert.Equal(t, "chinese", cfg.Store.Language)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout())
	assert.Equal(t, 30*time.Second, cfg.PollTimeout())
	assert.Equal(t, 10*time.Second, cfg.DaemonTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_PrecedenceUserThenFileThenEnv(t *testing.T) {
	dir := isolate(t)

	// Given: a user config
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte(`
bot:
  owner_id: 42
  enabled_chats: [1, 2]
search:
  page_size: 5
`), 0o600))

	// And: a local chatsearch.yaml overriding page size
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatsearch.yaml"), []byte(`
search:
  page_size: 7
store:
  backend: sqlite
`), 0o600))

	// And: an env override for the language
	t.Setenv("CHATSEARCH_LANGUAGE", "english")

	// When
	cfg, err := Load("")
	require.NoError(t, err)

	// Then
	assert.Equal(t, int64(42), cfg.Bot.OwnerID)
	assert.Equal(t, []int64{1, 2}, cfg.Bot.EnabledChats)
	assert.Equal(t, 7, cfg.Search.PageSize)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "english", cfg.Store.Language)
}

func TestLoad_ExplicitPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bot:\n  token: abc\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Bot.Token)
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CHATSEARCH_BOT_TOKEN", "tok")
	t.Setenv("CHATSEARCH_OWNER_ID", "99")
	t.Setenv("CHATSEARCH_ENABLED_CHATS", "-1001, 5")
	t.Setenv("CHATSEARCH_PAGE_SIZE", "3")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.Bot.Token)
	assert.Equal(t, int64(99), cfg.Bot.OwnerID)
	assert.Equal(t, []int64{-1001, 5}, cfg.Bot.EnabledChats)
	assert.Equal(t, 3, cfg.Search.PageSize)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatsearch.yaml"), []byte("search: [oops"), 0o600))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"bad language", func(c *Config) { c.Store.Language = "klingon" }, "store.language"},
		{"zero page size", func(c *Config) { c.Search.PageSize = 0 }, "search.page_size"},
		{"bad duration", func(c *Config) { c.Search.StoreTimeout = "soon" }, "search.store_timeout"},
		{"negative duration", func(c *Config) { c.Daemon.Timeout = "-1s" }, "daemon.timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"zero rate", func(c *Config) { c.Bot.RateLimit = 0 }, "bot.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseChatIDs(t *testing.T) {
	ids, err := ParseChatIDs(" 1, -1001234567890 ,,")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -1001234567890}, ids)

	_, err = ParseChatIDs("1,x")
	require.Error(t, err)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := NewConfig()
	cfg.Bot.OwnerID = 7
	cfg.Bot.EnabledChats = []int64{-100555}
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.Bot.OwnerID)
	assert.Equal(t, []int64{-100555}, loaded.Bot.EnabledChats)
}

func TestBackupFile_PrunesOldBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// No file, no backup
	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}

func TestLoadFile_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "chatsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: ~/data\ndaemon:\n  socket_path: /run/cs.sock\n"), 0o600))

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), cfg.Store.Path)
	assert.Equal(t, "/run/cs.sock", cfg.Daemon.SocketPath)
}
