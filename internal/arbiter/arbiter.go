// Package arbiter asks a generative model for a verdict on nicknames the rule
// tier could not settle. Arbitrate never fails: every problem becomes a
// REVIEW decision with zero confidence.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/nickguard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxReasonRunes = 120

// Provider is the black-box text generator behind the arbiter.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderError wraps a failure of the provider call. It never leaves the
// arbiter; it is only logged.
type ProviderError struct{ Err error }

func (e *ProviderError) Error() string { return "ai provider: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

var (
	errNoJSON          = errors.New("response has no JSON object")
	errBadJSON         = errors.New("response JSON is malformed")
	errUnknownDecision = errors.New("decision outside BAN/REVIEW/OK")
)

// Decision is the arbiter's answer for one nickname.
type Decision struct {
	Decision   domain.Action `json:"decision"`
	Confidence float64       `json:"confidence"`
	Reason     string        `json:"reason"`

	Cached   bool `json:"-"`
	Fallback bool `json:"-"`
}

func fallback(reason string) Decision {
	return Decision{Decision: domain.ActionReview, Confidence: 0, Reason: reason, Fallback: true}
}

type Options struct {
	Provider Provider
	Cache    Cache
	// Normalize maps a raw nickname to the cache key and the prompt's
	// normalized form. nil keeps the raw string.
	Normalize func(string) string
	Timeout   time.Duration
	Logger    *zap.Logger
}

type Arbiter struct {
	provider  Provider
	cache     Cache
	normalize func(string) string
	timeout   time.Duration
	logger    *zap.Logger
	group     singleflight.Group
}

func New(opts Options) *Arbiter {
	a := &Arbiter{
		provider:  opts.Provider,
		cache:     opts.Cache,
		normalize: opts.Normalize,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.normalize == nil {
		a.normalize = func(s string) string { return s }
	}
	if a.timeout <= 0 {
		a.timeout = 20 * time.Second
	}
	return a
}

// Enabled reports whether a provider is configured.
func (a *Arbiter) Enabled() bool { return a != nil && a.provider != nil }

// Arbitrate classifies raw. It does not return errors and does not panic.
func (a *Arbiter) Arbitrate(ctx context.Context, raw string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("ai_arbitrate_panic", zap.String("nick", raw), zap.Any("panic", r))
			arbitrateCount.WithLabelValues("panic").Inc()
			d = fallback("AI error")
		}
	}()

	if !a.Enabled() {
		arbitrateCount.WithLabelValues("unavailable").Inc()
		return fallback("AI unavailable")
	}

	norm := a.normalize(raw)
	key := norm
	if key == "" {
		key = raw
	}

	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("ai_cache_get_failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			cacheHits.Inc()
			cached.Cached = true
			return cached
		}
	}

	v, _, shared := a.group.Do(key, func() (any, error) {
		return a.call(ctx, raw, norm, key), nil
	})
	d = v.(Decision)
	if shared {
		a.logger.Debug("ai_call_shared", zap.String("key", key))
	}
	return d
}

func (a *Arbiter) call(ctx context.Context, raw, norm, key string) Decision {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	started := time.Now()
	text, err := a.provider.Generate(cctx, buildPrompt(raw, norm))
	arbitrateDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		perr := &ProviderError{Err: err}
		a.logger.Warn("ai_provider_failed", zap.String("nick", raw), zap.Error(perr))
		arbitrateCount.WithLabelValues("provider_error").Inc()
		return fallback("AI error")
	}

	d, err := ParseDecision(text)
	if err != nil {
		a.logger.Warn("ai_response_rejected", zap.String("nick", raw), zap.Error(err), zap.String("text", clip(text, 200)))
		arbitrateCount.WithLabelValues("bad_response").Inc()
		return fallback("AI response unusable: " + err.Error())
	}
	arbitrateCount.WithLabelValues("ok").Inc()

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, d); err != nil {
			a.logger.Warn("ai_cache_set_failed", zap.String("key", key), zap.Error(err))
		}
	}
	a.logger.Debug("ai_decision",
		zap.String("nick", raw),
		zap.String("decision", string(d.Decision)),
		zap.Float64("confidence", d.Confidence),
	)
	return d
}

// ParseDecision extracts the first JSON object in text and coerces it into a
// Decision. A missing decision field means REVIEW.
func ParseDecision(text string) (Decision, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return Decision{}, errNoJSON
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}

	d := Decision{Decision: domain.ActionReview}
	if v, ok := m["decision"]; ok && v != nil {
		s, _ := v.(string)
		action, ok := domain.ParseAction(s)
		if !ok {
			return Decision{}, errUnknownDecision
		}
		d.Decision = action
	}
	d.Confidence = coerceConfidence(m["confidence"])
	if s, ok := m["reason"].(string); ok {
		d.Reason = clip(strings.TrimSpace(s), maxReasonRunes)
	}
	return d, nil
}

func coerceConfidence(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		f, _ = t.Float64()
	case float64:
		f = t
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
