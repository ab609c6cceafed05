package domain

import (
	"strings"
	"time"
)

// Action is a moderation outcome for a single nickname.
type Action string

const (
	ActionOK     Action = "OK"
	ActionReview Action = "REVIEW"
	ActionBan    Action = "BAN"
)

// ParseAction maps a textual action onto the three-tier taxonomy.
// ok is false when the input is not one of BAN/REVIEW/OK.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBan:
		return ActionBan, true
	case ActionReview:
		return ActionReview, true
	case ActionOK:
		return ActionOK, true
	default:
		return "", false
	}
}

// Source tells which tier produced a verdict.
type Source string

const (
	SourceRules Source = "rules"
	SourceAI    Source = "ai"
)

// Verdict is the classification of one nickname.
type Verdict struct {
	Action     Action  `json:"action"`
	Reason     string  `json:"reason"`
	Source     Source  `json:"source"`
	RuleID     string  `json:"rule_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Entry pairs a raw nickname with its verdict.
type Entry struct {
	Nickname string  `json:"nickname"`
	Verdict  Verdict `json:"verdict"`
}

// ScanResult is the immutable outcome of one sweep over online players.
type ScanResult struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	TotalPlayers int       `json:"total_players"`
	Ban          []Entry   `json:"ban"`
	Review       []Entry   `json:"review"`
	OK           []Entry   `json:"ok"`
	Note         string    `json:"note,omitempty"`
}

// Clone returns a deep copy so callers can never mutate a cached result.
func (r ScanResult) Clone() ScanResult {
	out := r
	out.Ban = append([]Entry(nil), r.Ban...)
	out.Review = append([]Entry(nil), r.Review...)
	out.OK = append([]Entry(nil), r.OK...)
	return out
}

// Add files an entry into the list matching its action.
func (r *ScanResult) Add(e Entry) {
	switch e.Verdict.Action {
	case ActionBan:
		r.Ban = append(r.Ban, e)
	case ActionReview:
		r.Review = append(r.Review, e)
	default:
		r.OK = append(r.OK, e)
	}
}
