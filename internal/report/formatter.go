// Package report renders scan results and operator replies as plain text.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/escalate"
	"github.com/park285/nickguard/internal/msgcat"
)

const (
	DefaultLimit = 3900

	maxBan    = 50
	maxReview = 50
	maxOK     = 30

	timeLayout = "2006-01-02 15:04:05"
)

type Formatter struct {
	cat   *msgcat.Catalog
	limit int
	loc   *time.Location
}

func NewFormatter(cat *msgcat.Catalog, limit int) *Formatter {
	if cat == nil {
		cat = msgcat.MustDefault()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Formatter{cat: cat, limit: limit, loc: time.Local}
}

// Limit is the message ceiling in characters.
func (f *Formatter) Limit() int { return f.limit }

func (f *Formatter) r(key string, data any, fallback string) string {
	return f.cat.RenderOr(key, data, fallback)
}

// Scan renders a scan result. aiReview selects the AI review title.
func (f *Formatter) Scan(res domain.ScanResult, aiReview bool) string {
	title := f.r("report.scan_title", nil, "Nickname scan")
	if aiReview {
		title = f.r("report.ai_title", nil, "AI review")
	}

	var sb strings.Builder
	sb.WriteString(f.r("report.header", map[string]any{"Title": title, "Time": res.Timestamp.In(f.loc).Format(timeLayout)}, title))
	sb.WriteByte('\n')
	sb.WriteString(f.r("report.summary", map[string]any{
		"Total": res.TotalPlayers, "Ban": len(res.Ban), "Review": len(res.Review), "OK": len(res.OK),
	}, fmt.Sprintf("Players: %d", res.TotalPlayers)))
	sb.WriteByte('\n')

	if res.TotalPlayers == 0 && len(res.Ban)+len(res.Review)+len(res.OK) == 0 {
		sb.WriteByte('\n')
		sb.WriteString(f.r("report.no_players", nil, "No players were found online."))
		sb.WriteByte('\n')
	} else {
		f.itemSection(&sb, "report.ban_header", "BAN", res.Ban, maxBan)
		f.itemSection(&sb, "report.review_header", "REVIEW", res.Review, maxReview)
		f.okSection(&sb, res.OK)
	}

	if strings.TrimSpace(res.Note) != "" {
		sb.WriteByte('\n')
		sb.WriteString(f.r("report.note", map[string]any{"Note": res.Note}, res.Note))
		sb.WriteByte('\n')
	}
	return f.clip(strings.TrimRight(sb.String(), "\n"))
}

func (f *Formatter) itemSection(sb *strings.Builder, headerKey, label string, entries []domain.Entry, max int) {
	sb.WriteByte('\n')
	sb.WriteString(f.r(headerKey, map[string]any{"Count": len(entries)}, fmt.Sprintf("%s (%d)", label, len(entries))))
	sb.WriteByte('\n')
	if len(entries) == 0 {
		sb.WriteString(f.r("report.none", nil, "none"))
		sb.WriteByte('\n')
		return
	}
	for i, e := range entries {
		if i == max {
			sb.WriteString(f.more(len(entries) - max))
			sb.WriteByte('\n')
			break
		}
		sb.WriteString(f.item(e))
		sb.WriteByte('\n')
	}
}

func (f *Formatter) item(e domain.Entry) string {
	reason := e.Verdict.Reason
	if reason == "" {
		reason = string(e.Verdict.Action)
	}
	if e.Verdict.Source == domain.SourceAI {
		return f.r("report.item_ai", map[string]any{
			"Nick": e.Nickname, "Reason": reason, "Confidence": fmt.Sprintf("%.2f", e.Verdict.Confidence),
		}, "• "+e.Nickname+" - "+reason)
	}
	return f.r("report.item", map[string]any{"Nick": e.Nickname, "Reason": reason}, "• "+e.Nickname+" - "+reason)
}

func (f *Formatter) okSection(sb *strings.Builder, entries []domain.Entry) {
	sb.WriteByte('\n')
	sb.WriteString(f.r("report.ok_header", map[string]any{"Count": len(entries)}, fmt.Sprintf("OK (%d)", len(entries))))
	sb.WriteByte('\n')
	if len(entries) == 0 {
		sb.WriteString(f.r("report.none", nil, "none"))
		sb.WriteByte('\n')
		return
	}
	n := min(len(entries), maxOK)
	names := make([]string, 0, n)
	for _, e := range entries[:n] {
		names = append(names, e.Nickname)
	}
	sb.WriteString(strings.Join(names, ", "))
	if len(entries) > maxOK {
		sb.WriteByte(' ')
		sb.WriteString(f.more(len(entries) - maxOK))
	}
	sb.WriteByte('\n')
}

func (f *Formatter) more(n int) string {
	return f.r("report.more", map[string]any{"N": n}, fmt.Sprintf("… +%d more", n))
}

// clip cuts text to the limit at a line boundary and marks the cut.
func (f *Formatter) clip(text string) string {
	if utf8.RuneCountInString(text) <= f.limit {
		return text
	}
	marker := f.r("report.clipped", nil, "… (truncated)")
	budget := f.limit - utf8.RuneCountInString(marker) - 1
	if budget <= 0 {
		return string([]rune(text)[:f.limit])
	}
	cut := string([]rune(text)[:budget])
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n" + marker
}

// StatusView is what the status text shows.
type StatusView struct {
	State     string
	ReadyVia  string
	Since     time.Time
	Epoch     uint64
	LastError string
	Busy      bool
	LastScan  *domain.ScanResult

	RulesVersion int
	Rules        int
	ReviewWords  int
	Whitelist    int
	AIEnabled    bool
}

func (f *Formatter) Status(v StatusView) string {
	lines := []string{
		f.r("status.title", nil, "Status"),
		f.r("status.state", map[string]any{
			"State": v.State, "ReadyVia": v.ReadyVia, "Since": v.Since.In(f.loc).Format(timeLayout),
		}, "Session: "+v.State),
	}
	if v.Epoch > 0 {
		lines = append(lines, f.r("status.epoch", map[string]any{"Epoch": v.Epoch}, fmt.Sprintf("Connection #%d", v.Epoch)))
	}
	if v.LastError != "" {
		lines = append(lines, f.r("status.last_error", map[string]any{"Err": v.LastError}, "Last error: "+v.LastError))
	}
	if v.Busy {
		lines = append(lines, f.r("status.busy", nil, "A scan is running."))
	}
	if v.LastScan != nil {
		lines = append(lines, f.r("status.last_scan", map[string]any{
			"Time":    v.LastScan.Timestamp.In(f.loc).Format(timeLayout),
			"Players": v.LastScan.TotalPlayers,
			"Ban":     len(v.LastScan.Ban),
			"Review":  len(v.LastScan.Review),
		}, "Last scan: "+v.LastScan.Timestamp.Format(timeLayout)))
	} else {
		lines = append(lines, f.r("status.no_scan", nil, "No scan yet."))
	}
	lines = append(lines, f.r("status.rules", map[string]any{
		"Version": v.RulesVersion, "Rules": v.Rules, "Review": v.ReviewWords, "Whitelist": v.Whitelist,
	}, fmt.Sprintf("Rules v%d", v.RulesVersion)))
	if v.AIEnabled {
		lines = append(lines, f.r("status.ai_on", nil, "AI review: enabled"))
	} else {
		lines = append(lines, f.r("status.ai_off", nil, "AI review: disabled"))
	}
	return f.clip(strings.Join(lines, "\n"))
}

// Check renders the outcome of a single nickname check.
func (f *Formatter) Check(s escalate.Single) string {
	lines := []string{
		f.r("check.title", map[string]any{"Nick": s.Nickname}, s.Nickname),
		f.r("check.normalized", map[string]any{"Norm": s.Normalized}, "Normalized: "+s.Normalized),
		f.r("check.rules", map[string]any{"Action": s.Rules.Action, "Reason": s.Rules.Reason},
			fmt.Sprintf("Rules: %s - %s", s.Rules.Action, s.Rules.Reason)),
	}
	if s.AI != nil {
		lines = append(lines, f.r("check.ai", map[string]any{
			"Action": s.AI.Decision, "Confidence": fmt.Sprintf("%.2f", s.AI.Confidence), "Reason": s.AI.Reason,
		}, fmt.Sprintf("AI: %s", s.AI.Decision)))
	} else {
		lines = append(lines, f.r("check.ai_off", nil, "AI: not used"))
	}
	lines = append(lines, f.r("check.final", map[string]any{"Action": s.Final.Action}, fmt.Sprintf("Verdict: %s", s.Final.Action)))
	return strings.Join(lines, "\n")
}

// Error maps an error to an operator-facing line.
func (f *Formatter) Error(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotReady):
		return f.r("errors.not_ready", nil, err.Error())
	case errors.Is(err, domain.ErrScanInProgress):
		return f.r("errors.scan_in_progress", nil, err.Error())
	case errors.Is(err, domain.ErrNoLastScan):
		return f.r("errors.no_last_scan", nil, err.Error())
	case errors.Is(err, domain.ErrAIDisabled):
		return f.r("errors.ai_disabled", nil, err.Error())
	case errors.Is(err, domain.ErrInvalidNickname):
		return f.r("errors.invalid_nickname", nil, err.Error())
	case errors.Is(err, domain.ErrProtocolTimeout):
		return f.r("errors.timeout", nil, err.Error())
	case errors.Is(err, domain.ErrConnectionLost):
		return f.r("errors.connection_lost", nil, err.Error())
	default:
		return f.r("errors.generic", map[string]any{"Err": err.Error()}, "Error: "+err.Error())
	}
}
