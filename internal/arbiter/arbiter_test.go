package arbiter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/nickguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls atomic.Int32
	reply string
	err   error
	delay time.Duration
	panic bool
	seen  []string
	mu    sync.Mutex
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, prompt)
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func TestParseDecision(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		text       string
		decision   domain.Action
		confidence float64
		reason     string
		err        error
	}{
		{text: `{"decision":"BAN","confidence":0.9,"reason":"slur"}`, decision: domain.ActionBan, confidence: 0.9, reason: "slur"},
		{text: "```json\n{\"decision\":\"ok\",\"confidence\":\"0.8\"}\n```", decision: domain.ActionOK, confidence: 0.8},
		{text: `Sure! {"confidence": 1.7, "reason": "  spaced  "} trailing {"decision":"BAN"}`, decision: domain.ActionReview, confidence: 1, reason: "spaced"},
		{text: `{"decision":"REVIEW","confidence":-3}`, decision: domain.ActionReview, confidence: 0},
		{text: `{"decision":"OK","confidence":"NaN"}`, decision: domain.ActionOK, confidence: 0},
		{text: `{"decision":"OK","confidence":true}`, decision: domain.ActionOK, confidence: 0},
		{text: `no json here`, err: errNoJSON},
		{text: `{"decision": "BAN",`, err: errBadJSON},
		{text: `{"decision":"KICK","confidence":1}`, err: errUnknownDecision},
		{text: `{"decision":42}`, err: errUnknownDecision},
	}

	for _, fix := range fixtures {
		d, err := ParseDecision(fix.text)
		if fix.err != nil {
			assert.ErrorIs(err, fix.err, "text=%q", fix.text)
			continue
		}
		if assert.NoError(err, "text=%q", fix.text) {
			assert.Equal(fix.decision, d.Decision, "text=%q", fix.text)
			assert.InDelta(fix.confidence, d.Confidence, 1e-9, "text=%q", fix.text)
			assert.Equal(fix.reason, d.Reason, "text=%q", fix.text)
		}
	}
}

func TestParseDecisionClipsReason(t *testing.T) {
	d, err := ParseDecision(`{"decision":"BAN","reason":"` + strings.Repeat("я", 300) + `"}`)
	require.NoError(t, err)
	assert.Equal(t, maxReasonRunes, len([]rune(d.Reason)))
}

func TestArbitrateFallbacks(t *testing.T) {
	ctx := context.Background()

	d := New(Options{}).Arbitrate(ctx, "Steve")
	assert.Equal(t, domain.ActionReview, d.Decision)
	assert.Zero(t, d.Confidence)
	assert.True(t, d.Fallback)

	cases := map[string]*fakeProvider{
		"provider error": {err: errors.New("quota")},
		"no json":        {reply: "I think it's fine"},
		"bad decision":   {reply: `{"decision":"MAYBE"}`},
		"panic":          {panic: true},
	}
	for name, p := range cases {
		cache := NewMemCache(10, time.Minute)
		d := New(Options{Provider: p, Cache: cache}).Arbitrate(ctx, "Steve")
		assert.Equal(t, domain.ActionReview, d.Decision, name)
		assert.Zero(t, d.Confidence, name)

		_, ok, _ := cache.Get(ctx, "Steve")
		assert.False(t, ok, "%s: fallback decisions must not be cached", name)
	}
}

func TestArbitrateCachesByNormalizedForm(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: `{"decision":"BAN","confidence":0.95,"reason":"insult"}`}
	a := New(Options{Provider: p, Cache: NewMemCache(10, time.Minute), Normalize: strings.ToLower})

	first := a.Arbitrate(ctx, "IDIOT")
	second := a.Arbitrate(ctx, "idiot")

	assert.Equal(t, domain.ActionBan, first.Decision)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Reason, second.Reason)
	assert.EqualValues(t, 1, p.calls.Load())
	require.Len(t, p.seen, 1)
	assert.Contains(t, p.seen[0], `"IDIOT"`)
	assert.Contains(t, p.seen[0], `"idiot"`)
}

func TestArbitrateCollapsesConcurrentLookups(t *testing.T) {
	p := &fakeProvider{reply: `{"decision":"OK","confidence":0.9}`, delay: 100 * time.Millisecond}
	a := New(Options{Provider: p})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := a.Arbitrate(context.Background(), "Alex")
			assert.Equal(t, domain.ActionOK, d.Decision)
		}()
	}
	wg.Wait()
	assert.Less(t, p.calls.Load(), int32(8))
}

func TestArbitrateTimeout(t *testing.T) {
	p := &fakeProvider{reply: `{"decision":"OK"}`, delay: time.Second}
	a := New(Options{Provider: p, Timeout: 20 * time.Millisecond})

	d := a.Arbitrate(context.Background(), "Slowpoke")
	assert.Equal(t, domain.ActionReview, d.Decision)
	assert.True(t, d.Fallback)
}
