package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresHostAndUser(t *testing.T) {
	t.Setenv("MC_HOST", "")
	t.Setenv("MC_USER", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MC_HOST", "play.example.net")
	_, err = Load()
	require.EqualError(t, err, "MC_USER is required")
}

func TestLoadOfflineSkipsGameKeys(t *testing.T) {
	t.Setenv("MC_HOST", "")
	t.Setenv("MC_USER", "")
	t.Setenv("RULES_PATH", "/etc/nickguard/rules.json")
	cfg, err := LoadOffline()
	require.NoError(t, err)
	assert.Equal(t, "/etc/nickguard/rules.json", cfg.RulesPath)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MC_HOST", "play.example.net")
	t.Setenv("MC_USER", "Guard")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25565, cfg.MCPort)
	assert.Equal(t, 47, cfg.MCProtocol)
	assert.Equal(t, 3*time.Second, cfg.WaitAfterSpawn)
	assert.Equal(t, 2500*time.Millisecond, cfg.CompletionTimeout)
	assert.Equal(t, "/msg ", cfg.CompletionCommand)
	assert.Equal(t, 30, cfg.AIBudget)
	assert.Equal(t, 0.75, cfg.AIBanConf)
	assert.Equal(t, 0.75, cfg.AIOKConf)
	assert.Equal(t, 3900, cfg.MessageLimit)
	assert.Len(t, cfg.Prefixes(), 37)
	assert.False(t, cfg.AIAvailable())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MC_HOST", "play.example.net")
	t.Setenv("MC_USER", "Guard")
	t.Setenv("MC_PORT", "25570")
	t.Setenv("SCAN_PREFIXES", "ab, cd ,,ef")
	t.Setenv("SCAN_DELAY_MS", "0")
	t.Setenv("AI_BUDGET_PER_AI_CLICK", "0")
	t.Setenv("AI_MIN_CONF_FOR_BAN", "0.9")
	t.Setenv("AI_MIN_CONF_FOR_OK", "1.5")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("AUTO_SCAN_INTERVAL", "15m")
	t.Setenv("PORT", "8080")
	t.Setenv("COMPLETION_COMMAND", "/tell ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25570, cfg.MCPort)
	assert.Equal(t, []string{"ab", "cd", "ef"}, cfg.Prefixes())
	assert.Equal(t, time.Duration(0), cfg.ScanDelay)
	assert.Equal(t, 0, cfg.AIBudget)
	assert.Equal(t, 0.9, cfg.AIBanConf)
	assert.Equal(t, 0.75, cfg.AIOKConf)
	assert.Equal(t, 15*time.Minute, cfg.AutoScanInterval)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "/tell ", cfg.CompletionCommand)
	assert.True(t, cfg.AIAvailable())
}

func TestSplitPrefixes(t *testing.T) {
	assert.Nil(t, splitPrefixes("  "))
	assert.Equal(t, []string{"a", "b", "_"}, splitPrefixes("ab_"))
}
