package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/park285/nickguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `{
  "version": 3,
  "rules": [{"id": "staff", "action": "BAN", "reason": "staff name", "words": ["admin"]}],
  "review": ["hack"],
  "whitelist_exact": ["adminbot"]
}`

func writeRules(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestNewStoreMissingFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")

	st, err := NewStore(path, nil)
	require.NotNil(t, st)

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)

	snap := st.Snapshot()
	assert.Equal(t, 2, snap.Version)
	assert.Equal(t, domain.ActionOK, snap.Classify("Admin").Action)
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	st, _ := NewStore(path, nil)
	old := st.Snapshot()

	writeRules(t, path, sampleRules)
	require.NoError(t, st.Reload())

	cur := st.Snapshot()
	assert.Equal(t, 3, cur.Version)
	assert.Equal(t, domain.ActionBan, cur.Classify("Admin_2").Action)
	assert.Equal(t, domain.ActionOK, cur.Classify("AdminBot").Action)

	// snapshots handed out earlier keep their rules
	assert.Equal(t, domain.ActionOK, old.Classify("Admin_2").Action)
}

func TestStoreReloadParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	writeRules(t, path, sampleRules)

	st, err := NewStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBan, st.Snapshot().Classify("admin").Action)

	writeRules(t, path, `{"rules": [`)
	err = st.Reload()

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, domain.ActionOK, st.Snapshot().Classify("admin").Action)
}

func TestParseKeepsDefaultNormalization(t *testing.T) {
	rs, err := Parse([]byte(`{"version": 1, "rules": []}`))
	require.NoError(t, err)
	require.NotNil(t, rs.Normalization)
	assert.True(t, rs.Normalization.Lowercase)
	assert.Equal(t, defaultSeparators, rs.Normalization.SeparatorsRegex)
}

func TestNewStaticStore(t *testing.T) {
	rs, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	st := NewStaticStore(rs, nil)
	assert.Equal(t, domain.ActionReview, st.Snapshot().Classify("h4ck").Action)
}
