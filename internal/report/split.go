package report

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most limit characters, preferring line
// boundaries. A single line longer than limit is cut hard.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		lineLen := utf8.RuneCountInString(line)
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+lineLen <= limit {
			if sep == 1 {
				cur.WriteByte('\n')
			}
			cur.WriteString(line)
			curLen += sep + lineLen
			continue
		}
		flush()
		for lineLen > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			lineLen -= limit
		}
		cur.WriteString(line)
		curLen = lineLen
	}
	flush()
	return chunks
}
