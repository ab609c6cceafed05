package rules

import (
	"testing"

	"github.com/park285/nickguard/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert := assert.New(t)

	s := Compile(&RuleSet{
		Version:       2,
		Normalization: DefaultNormalization(),
		Rules: []Rule{
			{ID: "staff", Action: "BAN", Reason: "impersonating staff", Words: []string{"admin", "moderator"}},
			{ID: "soft", Action: "REVIEW", Words: []string{"cheat"}},
			{ID: "hard", Action: "BAN", Words: []string{"cheater"}},
		},
		Review:         []string{"Hack", "admin"},
		WhitelistExact: []string{"admin"},
	}, nil)

	fixtures := []struct {
		raw    string
		action domain.Action
		reason string
		ruleID string
	}{
		{raw: "Admin", action: domain.ActionOK, reason: "whitelist", ruleID: "whitelist"},
		{raw: "a.d.m.i.n", action: domain.ActionOK, reason: "whitelist", ruleID: "whitelist"},
		{raw: "xX_Adm1n_Xx", action: domain.ActionBan, reason: "impersonating staff", ruleID: "staff"},
		{raw: "мoderator", action: domain.ActionBan, reason: "impersonating staff", ruleID: "staff"},
		{raw: "Cheater99", action: domain.ActionReview, reason: "soft", ruleID: "soft"},
		{raw: "h4ck3r", action: domain.ActionReview, reason: "suspicious word: Hack", ruleID: "review"},
		{raw: "Steve", action: domain.ActionOK, reason: "clean"},
	}

	for _, fix := range fixtures {
		v := s.Classify(fix.raw)
		assert.Equal(fix.action, v.Action, "raw=%q", fix.raw)
		assert.Equal(fix.reason, v.Reason, "raw=%q", fix.raw)
		assert.Equal(fix.ruleID, v.RuleID, "raw=%q", fix.raw)
		assert.Equal(domain.SourceRules, v.Source, "raw=%q", fix.raw)
	}
}

func TestClassifyLeetExample(t *testing.T) {
	s := Compile(&RuleSet{
		Normalization: &Normalization{
			Lowercase:       true,
			SeparatorsRegex: defaultSeparators,
			LeetMap:         map[string]string{"4": "a"},
		},
		Rules: []Rule{{ID: "r1", Action: "BAN", Words: []string{"adm1n"}}},
	}, nil)

	v := s.Classify("Adm1n_123")
	assert.Equal(t, domain.ActionBan, v.Action)
	assert.Equal(t, "r1", v.RuleID)
}

func TestClassifySkipsWordsThatNormalizeToNothing(t *testing.T) {
	s := Compile(&RuleSet{
		Normalization: DefaultNormalization(),
		Rules:         []Rule{{ID: "blank", Words: []string{"", "___", "§"}}},
		Review:        []string{" ", "..."},
	}, nil)

	assert.Equal(t, domain.ActionOK, s.Classify("anything").Action)
	assert.Equal(t, 0, s.Stats().RuleWords)
	assert.Equal(t, 0, s.Stats().ReviewWords)
}

func TestClassifyEmptyRuleSet(t *testing.T) {
	s := Compile(DefaultRuleSet(), nil)
	for _, nick := range []string{"", "Notch", "xXx_DarkLord_xXx", "§cRed"} {
		v := s.Classify(nick)
		assert.Equal(t, domain.ActionOK, v.Action, "nick=%q", nick)
		assert.Equal(t, "clean", v.Reason)
	}
}

func TestCompileActionDefaults(t *testing.T) {
	assert := assert.New(t)
	s := Compile(&RuleSet{
		Normalization: DefaultNormalization(),
		Rules: []Rule{
			{Words: []string{"griefer"}},
			{ID: "odd", Action: "MUTE", Words: []string{"spammer"}},
		},
	}, nil)

	v := s.Classify("TheGriefer")
	assert.Equal(domain.ActionBan, v.Action)
	assert.Equal("rule-1", v.RuleID)
	assert.Equal("rule-1", v.Reason)

	v = s.Classify("spammer")
	assert.Equal(domain.ActionReview, v.Action)
	assert.Equal("odd", v.RuleID)
	assert.Len(s.Warnings, 1)
}

func TestStats(t *testing.T) {
	s := Compile(&RuleSet{
		Version:        7,
		Normalization:  DefaultNormalization(),
		Rules:          []Rule{{ID: "a", Words: []string{"x1", "x2"}}, {ID: "b", Words: []string{"y"}}},
		Review:         []string{"z"},
		WhitelistExact: []string{"ok1", "ok2"},
	}, nil)

	assert.Equal(t, Stats{Version: 7, Rules: 2, RuleWords: 3, ReviewWords: 1, Whitelist: 2}, s.Stats())
}
