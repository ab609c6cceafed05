package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultSnapshot() *Snapshot { return Compile(DefaultRuleSet(), nil) }

func TestNormalizeDefaults(t *testing.T) {
	assert := assert.New(t)
	s := defaultSnapshot()

	fixtures := []struct {
		raw  string
		norm string
	}{
		{raw: "", norm: ""},
		{raw: "Steve", norm: "steve"},
		{raw: "Adm1n_123", norm: "admini2e"},
		{raw: "§aXx_Cool__Guy_xX", norm: "xxcoolguyxx"},
		{raw: "heeeello", norm: "heello"},
		{raw: "h.a.c.k.e.r", norm: "hacker"},
		{raw: "ad\u200bmin", norm: "admin"},
		{raw: "Аdmin", norm: "admin"},         // Cyrillic А
		{raw: "мodеrаtоr", norm: "moderator"}, // mixed Cyrillic
		{raw: "Ádmín", norm: "admin"},
		{raw: "b4d_w0rd", norm: "badword"},
		{raw: "a_a_a_a", norm: "aa"},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.norm, s.Normalize(fix.raw), "raw=%q", fix.raw)
	}
}

func TestNormalizeStepOrder(t *testing.T) {
	assert := assert.New(t)

	// folding happens before separators are removed
	s := Compile(&RuleSet{Normalization: &Normalization{
		SeparatorsRegex: `_`,
		LeetMap:         map[string]string{"_": "u"},
	}}, nil)
	assert.Equal("aub", s.Normalize("a_b"))

	// folding happens before repeats are collapsed
	s = Compile(&RuleSet{Normalization: &Normalization{
		LeetMap:         map[string]string{"0": "o"},
		CollapseRepeats: true,
		MaxRepeat:       2,
	}}, nil)
	assert.Equal("oo", s.Normalize("0o0"))

	// lowercase happens before homoglyph folding
	s = Compile(&RuleSet{Normalization: &Normalization{Lowercase: true}}, nil)
	assert.Equal("a", s.Normalize("А"))
	s = Compile(&RuleSet{Normalization: &Normalization{Lowercase: false}}, nil)
	assert.Equal("A", s.Normalize("А"))

	// separators are removed before repeats are collapsed
	s = Compile(&RuleSet{Normalization: &Normalization{
		SeparatorsRegex: `[-]+`,
		CollapseRepeats: true,
		MaxRepeat:       1,
	}}, nil)
	assert.Equal("a", s.Normalize("a-a-a"))

	// formatting escapes go first, so "§_" never reaches the separator step
	s = Compile(&RuleSet{Normalization: &Normalization{
		LeetMap: map[string]string{"_": "x"},
	}}, nil)
	assert.Equal("ab", s.Normalize("a§_b"))
}

func TestNormalizeIdempotent(t *testing.T) {
	s := defaultSnapshot()
	inputs := []string{
		"xX_Nick_123_Xx", "ПРОВЕРКА", "§lBold§r", "zzzzzz", "a--b..c",
		"N1nj4$$$", "ünïcödé", "12345678", "h\u200d\u200di", "ооо000",
	}
	for _, in := range inputs {
		once := s.Normalize(in)
		if twice := s.Normalize(once); twice != once {
			t.Fatalf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestCollapseRepeats(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("", collapseRepeats("", 2))
	assert.Equal("aa", collapseRepeats("aaaaaaa", 2))
	assert.Equal("aab", collapseRepeats("aaab", 2))
	assert.Equal("abba", collapseRepeats("abbbba", 2))
	assert.Equal("aaa", collapseRepeats("aaaaa", 3))
	assert.Equal("яя", collapseRepeats("яяяя", 2))

	for n := 3; n < 10; n++ {
		assert.Equal("xx", defaultSnapshot().Normalize(strings.Repeat("x", n)))
	}
}

func TestMaxRepeatClamped(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(2, clampRepeat(0))
	assert.Equal(2, clampRepeat(-4))
	assert.Equal(3, clampRepeat(3))
	assert.Equal(5, clampRepeat(40))
}

func TestBrokenPatternFallsBackToNoop(t *testing.T) {
	s := Compile(&RuleSet{Normalization: &Normalization{
		Lowercase:       true,
		SeparatorsRegex: `[`,
		LeetMap:         map[string]string{"ph": "f", "4": "a"},
	}}, nil)

	if len(s.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", len(s.Warnings), s.Warnings)
	}
	if got := s.Normalize("Ph_4"); got != "ph_a" {
		t.Fatalf("unexpected normalization with disabled step: %q", got)
	}
}

func TestTranslateEscapes(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(`[\x{200B}-\x{200F}]`, translateEscapes(`[\u200B-\u200F]`))
	assert.Equal(`\\u`, translateEscapes(`\\u`))
	assert.Equal(`\uZZZZ`, translateEscapes(`\uZZZZ`))
	assert.Equal(`a\sb`, translateEscapes(`a\sb`))

	s := Compile(&RuleSet{Normalization: &Normalization{StripInvisiblesRegex: `[\u200B-\u200F\uFEFF]`}}, nil)
	assert.Empty(s.Warnings)
	assert.Equal("ab", s.Normalize("a\u200b\ufeffb"))
}

func TestDiacriticFoldCanBeDisabled(t *testing.T) {
	off := false
	s := Compile(&RuleSet{Normalization: &Normalization{FoldDiacritics: &off, FoldHomoglyphs: &off}}, nil)
	assert.Equal(t, "é", s.Normalize("é"))
	assert.Equal(t, "а", s.Normalize("а"))
}
