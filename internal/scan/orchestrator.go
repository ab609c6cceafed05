// Package scan runs moderation sweeps one at a time and keeps the last result.
package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/escalate"
	"go.uber.org/zap"
)

const maxCheckLen = 32

// Kind tells hooks which operation produced a result.
type Kind string

const (
	KindScan     Kind = "scan"
	KindAIReview Kind = "ai_review"
)

type Readiness interface {
	IsReady() bool
}

type Enumerator interface {
	Enumerate(ctx context.Context, prefixes []string, delay time.Duration) ([]string, error)
}

type Pipeline interface {
	AIEnabled() bool
	Escalate(ctx context.Context, nicknames []string, budget int) domain.ScanResult
	EscalateReviewTier(ctx context.Context, last domain.ScanResult, budget int) domain.ScanResult
	CheckOne(ctx context.Context, raw string, useAI bool) escalate.Single
}

type RuleReloader interface {
	Reload() error
}

type Config struct {
	Prefixes []string
	Delay    time.Duration
	// AIOnScan sends REVIEW items of every scan to the AI tier.
	AIOnScan bool
	AIBudget int
}

type Orchestrator struct {
	ready    Readiness
	enum     Enumerator
	pipeline Pipeline
	rules    RuleReloader
	cfg      Config
	logger   *zap.Logger

	busy atomic.Bool
	last atomic.Pointer[domain.ScanResult]

	hooksMu sync.RWMutex
	hooks   []func(Kind, domain.ScanResult)
}

func New(ready Readiness, enum Enumerator, pipeline Pipeline, rules RuleReloader, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{ready: ready, enum: enum, pipeline: pipeline, rules: rules, cfg: cfg, logger: logger}
}

// OnResult registers fn for every finished scan or AI review. Hooks run on the
// caller's goroutine after the result is stored.
func (o *Orchestrator) OnResult(fn func(Kind, domain.ScanResult)) {
	o.hooksMu.Lock()
	o.hooks = append(o.hooks, fn)
	o.hooksMu.Unlock()
}

func (o *Orchestrator) publish(kind Kind, res domain.ScanResult) {
	o.hooksMu.RLock()
	hooks := o.hooks
	o.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(kind, res.Clone())
	}
}

// Busy reports whether a scan or AI review is running.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Last returns a copy of the last successful scan.
func (o *Orchestrator) Last() (domain.ScanResult, bool) {
	p := o.last.Load()
	if p == nil {
		return domain.ScanResult{}, false
	}
	return p.Clone(), true
}

func (o *Orchestrator) acquire() bool { return o.busy.CompareAndSwap(false, true) }
func (o *Orchestrator) release()      { o.busy.Store(false) }

// Scan enumerates online players and classifies them. A second call while one
// is running fails at once with domain.ErrScanInProgress.
func (o *Orchestrator) Scan(ctx context.Context) (domain.ScanResult, error) {
	if !o.ready.IsReady() {
		return domain.ScanResult{}, domain.ErrNotReady
	}
	if !o.acquire() {
		return domain.ScanResult{}, domain.ErrScanInProgress
	}
	defer o.release()

	started := time.Now()
	names, err := o.enum.Enumerate(ctx, o.cfg.Prefixes, o.cfg.Delay)
	if err != nil {
		o.logger.Warn("scan_failed", zap.Error(err))
		return domain.ScanResult{}, err
	}

	budget := 0
	if o.cfg.AIOnScan {
		budget = o.cfg.AIBudget
	}
	res := o.pipeline.Escalate(ctx, names, budget)
	stored := res.Clone()
	o.last.Store(&stored)

	o.logger.Info("scan_done",
		zap.String("id", res.ID),
		zap.Int("players", res.TotalPlayers),
		zap.Int("ban", len(res.Ban)),
		zap.Int("review", len(res.Review)),
		zap.Duration("took", time.Since(started)),
	)
	o.publish(KindScan, res)
	return res, nil
}

// AIReview sends the REVIEW items of the last scan to the AI tier. The last
// scan itself is left as it was.
func (o *Orchestrator) AIReview(ctx context.Context) (domain.ScanResult, error) {
	last, ok := o.Last()
	if !ok {
		return domain.ScanResult{}, domain.ErrNoLastScan
	}
	if !o.pipeline.AIEnabled() {
		return domain.ScanResult{}, domain.ErrAIDisabled
	}
	if !o.acquire() {
		return domain.ScanResult{}, domain.ErrScanInProgress
	}
	defer o.release()

	res := o.pipeline.EscalateReviewTier(ctx, last, o.cfg.AIBudget)
	o.publish(KindAIReview, res)
	return res, nil
}

// Check classifies a single nickname typed by an operator.
func (o *Orchestrator) Check(ctx context.Context, nick string) (escalate.Single, error) {
	nick = strings.TrimSpace(nick)
	if nick == "" || utf8.RuneCountInString(nick) > maxCheckLen || strings.IndexFunc(nick, unicode.IsSpace) >= 0 {
		return escalate.Single{}, domain.ErrInvalidNickname
	}
	return o.pipeline.CheckOne(ctx, nick, true), nil
}

// ReloadRules re-reads the rule file. A non-nil error means defaults are active.
func (o *Orchestrator) ReloadRules() error {
	if o.rules == nil {
		return errors.New("rules are not reloadable")
	}
	return o.rules.Reload()
}

// RunAutoScan scans every interval until ctx is done. Ticks are skipped
// while the session is not ready or another scan runs.
func (o *Orchestrator) RunAutoScan(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	o.logger.Info("autoscan_started", zap.Duration("interval", interval))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if !o.ready.IsReady() || o.Busy() {
			o.logger.Debug("autoscan_tick_skipped")
			continue
		}
		_, err := o.Scan(ctx)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrScanInProgress), errors.Is(err, domain.ErrNotReady):
			o.logger.Debug("autoscan_tick_skipped", zap.Error(err))
		case ctx.Err() != nil:
			return nil
		default:
			o.logger.Warn("autoscan_failed", zap.Error(err))
		}
	}
}
