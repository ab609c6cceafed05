package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/nickguard/internal/domain"
	"go.uber.org/zap"
)

const maxRepeatCeiling = 5

type compiledRule struct {
	id     string
	action domain.Action
	reason string
	words  []string // normalized, non-empty
}

type reviewWord struct {
	raw  string
	norm string
}

// Snapshot is an immutable, compiled RuleSet. All matching runs against a
// Snapshot; a reload builds a new one instead of touching this one.
type Snapshot struct {
	Version  int
	LoadedAt time.Time
	// Warnings lists config problems that were skipped while compiling.
	Warnings []string

	lowercase      bool
	invisibles     *regexp.Regexp
	separators     *regexp.Regexp
	fold           map[rune]string
	foldDiacritics bool
	collapse       bool
	maxRepeat      int

	whitelist map[string]struct{}
	rules     []compiledRule
	review    []reviewWord
}

// Compile turns a RuleSet into a Snapshot. Bad patterns or leet keys disable
// only themselves; each problem is logged once here.
func Compile(rs *RuleSet, logger *zap.Logger) *Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rs == nil {
		rs = DefaultRuleSet()
	}
	norm := rs.Normalization
	if norm == nil {
		norm = DefaultNormalization()
	}

	s := &Snapshot{
		Version:        rs.Version,
		LoadedAt:       time.Now(),
		lowercase:      norm.Lowercase,
		collapse:       norm.CollapseRepeats,
		maxRepeat:      clampRepeat(norm.MaxRepeat),
		foldDiacritics: norm.FoldDiacritics == nil || *norm.FoldDiacritics,
		whitelist:      make(map[string]struct{}, len(rs.WhitelistExact)),
	}
	warn := func(msg string, fields ...zap.Field) {
		s.Warnings = append(s.Warnings, msg)
		logger.Warn("rules_config_skipped", append([]zap.Field{zap.String("problem", msg)}, fields...)...)
	}

	s.invisibles = compilePattern("strip_invisibles_regex", norm.StripInvisiblesRegex, warn)
	s.separators = compilePattern("separators_regex", norm.SeparatorsRegex, warn)

	s.fold = make(map[rune]string, len(homoglyphs)+len(norm.LeetMap))
	if norm.FoldHomoglyphs == nil || *norm.FoldHomoglyphs {
		for k, v := range homoglyphs {
			s.fold[k] = v
		}
	}
	for k, v := range norm.LeetMap {
		if utf8.RuneCountInString(k) != 1 {
			warn(fmt.Sprintf("leet_map key %q is not a single character", k))
			continue
		}
		r, _ := utf8.DecodeRuneInString(k)
		s.fold[r] = v
	}

	for _, w := range rs.WhitelistExact {
		s.whitelist[w] = struct{}{}
	}

	for i, r := range rs.Rules {
		action := domain.ActionBan
		if strings.TrimSpace(r.Action) != "" {
			a, ok := domain.ParseAction(r.Action)
			if !ok {
				warn(fmt.Sprintf("rule %q has unknown action %q, treated as REVIEW", r.ID, r.Action))
				a = domain.ActionReview
			}
			action = a
		}
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		cr := compiledRule{id: id, action: action, reason: strings.TrimSpace(r.Reason)}
		for _, w := range r.Words {
			if n := s.Normalize(w); n != "" {
				cr.words = append(cr.words, n)
			}
		}
		s.rules = append(s.rules, cr)
	}

	for _, w := range rs.Review {
		if n := s.Normalize(w); n != "" {
			s.review = append(s.review, reviewWord{raw: w, norm: n})
		}
	}
	return s
}

// compilePattern returns nil when the pattern is empty or invalid; a nil
// pattern turns its normalization step into a no-op.
func compilePattern(name, pattern string, warn func(string, ...zap.Field)) *regexp.Regexp {
	if strings.TrimSpace(pattern) == "" {
		return nil
	}
	re, err := regexp.Compile(translateEscapes(pattern))
	if err != nil {
		warn(name+" does not compile", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	return re
}

// translateEscapes rewrites \uXXXX escapes, common in rule files written for
// other regex engines, into the \x{XXXX} form RE2 accepts.
func translateEscapes(p string) string {
	if !strings.Contains(p, `\u`) {
		return p
	}
	var b strings.Builder
	b.Grow(len(p) + 8)
	for i := 0; i < len(p); i++ {
		if p[i] != '\\' || i+1 >= len(p) {
			b.WriteByte(p[i])
			continue
		}
		if p[i+1] == 'u' && i+6 <= len(p) && isHex(p[i+2:i+6]) {
			b.WriteString(`\x{`)
			b.WriteString(p[i+2 : i+6])
			b.WriteByte('}')
			i += 5
			continue
		}
		b.WriteByte(p[i])
		b.WriteByte(p[i+1])
		i++
	}
	return b.String()
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

func clampRepeat(n int) int {
	if n <= 0 {
		return defaultMaxRepeat
	}
	if n > maxRepeatCeiling {
		return maxRepeatCeiling
	}
	return n
}
