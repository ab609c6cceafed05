package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/park285/nickguard/internal/domain"
)

// Normalization is the "normalization" block of the rule file.
type Normalization struct {
	Lowercase            bool              `json:"lowercase"`
	StripInvisiblesRegex string            `json:"strip_invisibles_regex"`
	SeparatorsRegex      string            `json:"separators_regex"`
	LeetMap              map[string]string `json:"leet_map"`
	CollapseRepeats      bool              `json:"collapse_repeats"`
	MaxRepeat            int               `json:"max_repeat"`

	// Optional folds; absent means enabled.
	FoldHomoglyphs *bool `json:"fold_homoglyphs,omitempty"`
	FoldDiacritics *bool `json:"fold_diacritics,omitempty"`
}

// Rule is one hard rule: any word hit yields Action.
type Rule struct {
	ID     string   `json:"id"`
	Action string   `json:"action"`
	Reason string   `json:"reason"`
	Words  []string `json:"words"`
}

// RuleSet mirrors rules.json.
type RuleSet struct {
	Version        int            `json:"version"`
	Normalization  *Normalization `json:"normalization"`
	Rules          []Rule         `json:"rules"`
	Review         []string       `json:"review"`
	WhitelistExact []string       `json:"whitelist_exact"`
}

const (
	defaultInvisibles = "[\u200B-\u200F\u202A-\u202E\u2060\uFEFF]"
	defaultSeparators = "[\\s\\-_.:,;|/\\\\~`'\"^*+=()\\[\\]{}<>]+"
	defaultMaxRepeat  = 2
)

// DefaultNormalization is used when the rule file omits the block or cannot be read.
func DefaultNormalization() *Normalization {
	return &Normalization{
		Lowercase:            true,
		StripInvisiblesRegex: defaultInvisibles,
		SeparatorsRegex:      defaultSeparators,
		CollapseRepeats:      true,
		MaxRepeat:            defaultMaxRepeat,
		LeetMap: map[string]string{
			"0": "o", "1": "i", "3": "e", "4": "a",
			"5": "s", "7": "t", "@": "a", "$": "s",
		},
	}
}

// DefaultRuleSet is the safe fallback: default normalization and empty lists,
// which classifies every nickname as OK.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{Version: 2, Normalization: DefaultNormalization()}
}

// Parse decodes a rule file body.
func Parse(raw []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if rs.Normalization == nil {
		rs.Normalization = DefaultNormalization()
	}
	return &rs, nil
}

// LoadFile reads path. On any failure it returns DefaultRuleSet together with a
// *domain.ConfigError so the caller can log it and keep running.
func LoadFile(path string) (*RuleSet, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRuleSet(), &domain.ConfigError{Path: path, Err: errors.New("no rules path configured")}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return DefaultRuleSet(), &domain.ConfigError{Path: path, Err: err}
	}
	rs, err := Parse(raw)
	if err != nil {
		return DefaultRuleSet(), &domain.ConfigError{Path: path, Err: err}
	}
	return rs, nil
}
