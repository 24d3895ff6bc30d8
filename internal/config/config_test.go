package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexanderramin/streak/internal/decision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.UndoWindow())
	assert.Zero(t, cfg.DedupWindow())
	assert.Equal(t, 128, cfg.PolicyCacheSize)
	assert.Equal(t, 10*time.Second, cfg.PolicyCacheTTL())
	assert.Nil(t, cfg.SingleActiveTimer)
	assert.Contains(t, cfg.DBPath, "streak.db")
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAK_CONFIG", "")
	t.Setenv("STREAK_DB", "/tmp/x.db")
	t.Setenv("STREAK_TICK_MS", "250")
	t.Setenv("STREAK_SINGLE_ACTIVE_TIMER", "false")
	t.Setenv("STREAK_DEDUP_WINDOW_MS", "400")
	t.Setenv("STREAK_TIMEZONE", "Asia/Tokyo")
	t.Setenv("STREAK_LOG_LEVEL", "debug")
	t.Setenv("STREAK_METRICS_ADDR", ":9105")
	t.Setenv("STREAK_POLICY_CACHE_TTL_MS", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	require.NotNil(t, cfg.SingleActiveTimer)
	assert.False(t, *cfg.SingleActiveTimer)
	assert.Nil(t, cfg.AskBeforeSkippingTimer)
	assert.Equal(t, 400*time.Millisecond, cfg.DedupWindow())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, ":9105", cfg.MetricsAddr)
	assert.Zero(t, cfg.PolicyCacheTTL())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	t.Setenv("STREAK_CONFIG", "")
	t.Setenv("STREAK_TICK_MS", "-5")
	t.Setenv("STREAK_UNDO_WINDOW_MS", "soon")
	t.Setenv("STREAK_ASK_BEFORE_SKIP", "perhaps")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.UndoWindow())
	assert.Nil(t, cfg.AskBeforeSkippingTimer)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /data/habits.db
tick_ms: 500
single_active_timer: false
ask_before_skipping_timer: false
timezone: Europe/Berlin
log_level: warn
`), 0o600))

	t.Setenv("STREAK_CONFIG", path)
	t.Setenv("STREAK_TICK_MS", "2000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/data/habits.db", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.TickInterval(), "env wins over file")
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	require.NotNil(t, cfg.AskBeforeSkippingTimer)
	assert.False(t, *cfg.AskBeforeSkippingTimer)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("STREAK_CONFIG", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tick_ms: [oops"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parsing config file")

	t.Setenv("STREAK_TIMEZONE", "Mars/Olympus")
	t.Setenv("STREAK_LOG_LEVEL", "chatty")
	_, err = Load("")
	assert.ErrorContains(t, err, "Mars/Olympus")
	assert.ErrorContains(t, err, "chatty")
}

func TestSeedFlags(t *testing.T) {
	stored := decision.Flags{SingleActiveTimer: true, AskBeforeSkippingTimer: true}

	assert.Equal(t, stored, DefaultConfig().SeedFlags(stored))

	off := false
	cfg := DefaultConfig()
	cfg.AskBeforeSkippingTimer = &off
	got := cfg.SeedFlags(stored)
	assert.True(t, got.SingleActiveTimer)
	assert.False(t, got.AskBeforeSkippingTimer)
}
