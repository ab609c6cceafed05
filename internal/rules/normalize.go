package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// formatting escape introducer used by the game protocol ("§c", "§l", ...)
const sectionSign = '§'

// Normalize canonicalizes a raw nickname. The step order is fixed:
// formatting escapes, lowercase, invisibles, character folds, separators,
// repeat collapse. It is pure for a given Snapshot.
func (s *Snapshot) Normalize(raw string) string {
	out := stripFormatting(raw)
	if s.lowercase {
		out = strings.ToLower(out)
	}
	if s.invisibles != nil {
		out = s.invisibles.ReplaceAllString(out, "")
	}
	out = s.foldRunes(out)
	if s.separators != nil {
		out = s.separators.ReplaceAllString(out, "")
	}
	if s.collapse {
		out = collapseRepeats(out, s.maxRepeat)
	}
	return out
}

func stripFormatting(s string) string {
	if !strings.ContainsRune(s, sectionSign) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			continue
		}
		if r == sectionSign {
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Snapshot) foldRunes(in string) string {
	if s.foldDiacritics {
		// the chain is stateful, so it is built per call
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if folded, _, err := transform.String(t, in); err == nil {
			in = folded
		}
	}
	if len(s.fold) == 0 {
		return in
	}
	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		if v, ok := s.fold[r]; ok {
			b.WriteString(v)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseRepeats shortens every run longer than max to exactly max runes.
func collapseRepeats(s string, max int) string {
	if max <= 0 || s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run <= max {
			b.WriteRune(r)
		}
	}
	return b.String()
}
