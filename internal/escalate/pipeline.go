// Package escalate runs nicknames through the rule tier and sends the REVIEW
// ones to the AI tier under a budget.
package escalate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/nickguard/internal/arbiter"
	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/rules"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	reasonLimitExhausted = "limit exhausted"
	reasonCancelled      = "cancelled"
	reasonAIUncertain    = "AI uncertain"

	noteNothingToReview = "last scan had no REVIEW nicknames"
)

// RuleSource hands out the current compiled rule set.
type RuleSource interface {
	Snapshot() *rules.Snapshot
}

// AI is the arbitration tier.
type AI interface {
	Enabled() bool
	Arbitrate(ctx context.Context, raw string) arbiter.Decision
}

type Config struct {
	BanThreshold float64
	OKThreshold  float64
	// Delay is the minimum spacing between AI calls.
	Delay time.Duration
}

type Pipeline struct {
	rules   RuleSource
	ai      AI
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

func New(rs RuleSource, ai AI, cfg Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BanThreshold <= 0 {
		cfg.BanThreshold = 0.75
	}
	if cfg.OKThreshold <= 0 {
		cfg.OKThreshold = 0.75
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Pipeline{
		rules:   rs,
		ai:      ai,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
	}
}

// AIEnabled reports whether the AI tier can run.
func (p *Pipeline) AIEnabled() bool { return p.ai != nil && p.ai.Enabled() }

// Single is the outcome of checking one nickname on demand.
type Single struct {
	Nickname   string            `json:"nickname"`
	Normalized string            `json:"normalized"`
	Rules      domain.Verdict    `json:"rules"`
	AI         *arbiter.Decision `json:"ai,omitempty"`
	Final      domain.Verdict    `json:"final"`
}

// CheckOne classifies raw with the rules and, when useAI is set and the AI
// tier is available, asks the AI as well. The AI only settles REVIEW verdicts.
func (p *Pipeline) CheckOne(ctx context.Context, raw string, useAI bool) Single {
	snap := p.rules.Snapshot()
	out := Single{Nickname: raw, Normalized: snap.Normalize(raw), Rules: snap.Classify(raw)}
	out.Final = out.Rules
	if !useAI || !p.AIEnabled() {
		return out
	}
	d := p.ai.Arbitrate(ctx, raw)
	out.AI = &d
	if out.Rules.Action == domain.ActionReview {
		out.Final = p.promote(d)
	}
	return out
}

// Escalate classifies every nickname with the rules and sends up to budget
// REVIEW items to the AI tier, in input order. budget 0 means rules only.
func (p *Pipeline) Escalate(ctx context.Context, nicknames []string, budget int) domain.ScanResult {
	res := p.newResult(len(nicknames))
	snap := p.rules.Snapshot()

	var review []domain.Entry
	for _, n := range nicknames {
		e := domain.Entry{Nickname: n, Verdict: snap.Classify(n)}
		if e.Verdict.Action == domain.ActionReview {
			review = append(review, e)
			continue
		}
		res.Add(e)
	}

	checked := p.arbitrate(ctx, review, budget, &res)
	if budget > 0 && p.AIEnabled() && len(review) > 0 {
		res.Note = aiNote(checked, len(review))
	}
	p.logger.Info("escalate_done",
		zap.Int("total", res.TotalPlayers),
		zap.Int("ban", len(res.Ban)),
		zap.Int("review", len(res.Review)),
		zap.Int("ok", len(res.OK)),
		zap.Int("ai_checked", checked),
	)
	return res
}

// EscalateReviewTier re-runs only the REVIEW entries of last through the AI
// tier. BAN and OK entries are carried over untouched.
func (p *Pipeline) EscalateReviewTier(ctx context.Context, last domain.ScanResult, budget int) domain.ScanResult {
	src := last.Clone()
	res := p.newResult(src.TotalPlayers)
	res.Ban = src.Ban
	res.OK = src.OK

	checked := p.arbitrate(ctx, src.Review, budget, &res)
	res.Note = aiNote(checked, len(src.Review))
	p.logger.Info("ai_review_done",
		zap.String("source_scan", last.ID),
		zap.Int("review_in", len(src.Review)),
		zap.Int("ai_checked", checked),
		zap.Int("ban", len(res.Ban)),
		zap.Int("review", len(res.Review)),
		zap.Int("ok", len(res.OK)),
	)
	return res
}

// arbitrate files every entry of review into res and returns how many went
// through the AI.
func (p *Pipeline) arbitrate(ctx context.Context, review []domain.Entry, budget int, res *domain.ScanResult) int {
	if budget <= 0 || !p.AIEnabled() {
		for _, e := range review {
			res.Add(e)
		}
		return 0
	}

	checked := 0
	for _, e := range review {
		if checked >= budget {
			e.Verdict.Reason = reasonLimitExhausted
			res.Add(e)
			continue
		}
		if ctx.Err() != nil || p.limiter.Wait(ctx) != nil {
			e.Verdict.Reason = reasonCancelled
			res.Add(e)
			continue
		}
		d := p.ai.Arbitrate(ctx, e.Nickname)
		checked++
		e.Verdict = p.promote(d)
		res.Add(e)
	}
	return checked
}

func (p *Pipeline) promote(d arbiter.Decision) domain.Verdict {
	v := domain.Verdict{Source: domain.SourceAI, Confidence: d.Confidence, Reason: d.Reason}
	switch {
	case d.Decision == domain.ActionBan && d.Confidence >= p.cfg.BanThreshold:
		v.Action = domain.ActionBan
	case d.Decision == domain.ActionOK && d.Confidence >= p.cfg.OKThreshold:
		v.Action = domain.ActionOK
	default:
		v.Action = domain.ActionReview
	}
	if v.Reason == "" {
		v.Reason = reasonAIUncertain
	}
	return v
}

func (p *Pipeline) newResult(total int) domain.ScanResult {
	return domain.ScanResult{ID: uuid.NewString(), Timestamp: p.now(), TotalPlayers: total}
}

func aiNote(checked, total int) string {
	if total == 0 {
		return noteNothingToReview
	}
	return fmt.Sprintf("AI checked %d of %d", checked, total)
}
