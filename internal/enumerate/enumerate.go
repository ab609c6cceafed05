// Package enumerate lists online players by sweeping name-completion requests
// over a set of prefixes.
package enumerate

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/park285/nickguard/internal/domain"
	"go.uber.org/zap"
)

var legalName = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// DefaultPrefixes is one request per symbol a nickname can start with.
const DefaultPrefixes = "abcdefghijklmnopqrstuvwxyz0123456789_"

// Completer is the supervisor surface the sweep needs.
type Completer interface {
	Complete(ctx context.Context, text string) ([]string, error)
	IsReady() bool
	Epoch() uint64
	Roster() []string
}

type Config struct {
	// Command is prepended to every prefix, e.g. "/msg ".
	Command string
	// Timeout bounds one completion; a timeout counts as no matches.
	Timeout time.Duration
	// Self is excluded from the results.
	Self           string
	RosterFallback bool
}

type Enumerator struct {
	c      Completer
	cfg    Config
	logger *zap.Logger
}

func New(c Completer, cfg Config, logger *zap.Logger) *Enumerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Command == "" {
		cfg.Command = "/msg "
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2500 * time.Millisecond
	}
	return &Enumerator{c: c, cfg: cfg, logger: logger}
}

// SplitPrefixes turns "abc" into ["a","b","c"].
func SplitPrefixes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Enumerate returns the distinct legal nicknames the server completes for the
// prefixes, in first-seen order. It needs a Ready session for the whole sweep:
// losing it (or a reconnect in between) yields domain.ErrNotReady and no
// partial result. delay is slept after each answer before the next prefix is
// sent.
func (e *Enumerator) Enumerate(ctx context.Context, prefixes []string, delay time.Duration) ([]string, error) {
	if !e.c.IsReady() {
		return nil, domain.ErrNotReady
	}
	if len(prefixes) == 0 {
		prefixes = SplitPrefixes(DefaultPrefixes)
	}
	epoch := e.c.Epoch()

	started := time.Now()
	var (
		seen     = make(map[string]struct{})
		names    []string
		timeouts int
	)
	for i, p := range prefixes {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.stillReady(epoch); err != nil {
			return nil, err
		}

		rctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		matches, err := e.c.Complete(rctx, e.cfg.Command+p)
		cancel()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrConnectionLost):
				return nil, domain.ErrNotReady
			case errors.Is(err, domain.ErrProtocolTimeout), errors.Is(err, context.DeadlineExceeded):
				timeouts++
			default:
				e.logger.Warn("enumerate_prefix_failed", zap.String("prefix", p), zap.Error(err))
			}
			matches = nil
		}
		if err := e.stillReady(epoch); err != nil {
			return nil, err
		}
		names = e.collect(names, seen, matches)
	}

	if len(names) == 0 && e.cfg.RosterFallback {
		names = e.collect(names, seen, e.c.Roster())
		e.logger.Info("enumerate_roster_fallback", zap.Int("players", len(names)))
	}

	e.logger.Info("enumerate_done",
		zap.Int("prefixes", len(prefixes)),
		zap.Int("players", len(names)),
		zap.Int("timeouts", timeouts),
		zap.Duration("took", time.Since(started)),
	)
	return names, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Enumerator) stillReady(epoch uint64) error {
	if !e.c.IsReady() || e.c.Epoch() != epoch {
		return domain.ErrNotReady
	}
	return nil
}

func (e *Enumerator) collect(names []string, seen map[string]struct{}, matches []string) []string {
	for _, m := range matches {
		n := strings.TrimSpace(m)
		if !legalName.MatchString(n) {
			continue
		}
		if e.cfg.Self != "" && strings.EqualFold(n, e.cfg.Self) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names
}
