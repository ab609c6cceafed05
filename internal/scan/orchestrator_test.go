package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/nickguard/internal/arbiter"
	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/escalate"
	"github.com/park285/nickguard/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readyFlag struct{ v atomic.Bool }

func (r *readyFlag) IsReady() bool { return r.v.Load() }

type fakeEnum struct {
	names []string
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeEnum) Enumerate(ctx context.Context, _ []string, _ time.Duration) ([]string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.names, f.err
}

type okAI struct{ enabled bool }

func (a okAI) Enabled() bool { return a.enabled }
func (a okAI) Arbitrate(context.Context, string) arbiter.Decision {
	return arbiter.Decision{Decision: domain.ActionOK, Confidence: 0.9, Reason: "fine"}
}

type countingReloader struct{ n int }

func (c *countingReloader) Reload() error { c.n++; return nil }

func newOrchestrator(t *testing.T, enum *fakeEnum, aiOn bool, cfg Config) (*Orchestrator, *readyFlag) {
	t.Helper()
	store := rules.NewStaticStore(&rules.RuleSet{
		Normalization: rules.DefaultNormalization(),
		Rules:         []rules.Rule{{ID: "staff", Action: "BAN", Words: []string{"admin"}}},
		Review:        []string{"sus"},
	}, nil)
	p := escalate.New(store, okAI{enabled: aiOn}, escalate.Config{}, nil)
	ready := &readyFlag{}
	ready.v.Store(true)
	return New(ready, enum, p, &countingReloader{}, cfg, nil), ready
}

func TestScanStoresLastResult(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{names: []string{"Admin1", "SusMan", "Steve"}}, true, Config{AIBudget: 5})

	var hooked []Kind
	o.OnResult(func(k Kind, _ domain.ScanResult) { hooked = append(hooked, k) })

	_, ok := o.Last()
	assert.False(t, ok)

	res, err := o.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalPlayers)
	assert.Len(t, res.Ban, 1)
	// rules only on scans unless configured otherwise
	assert.Len(t, res.Review, 1)
	assert.Empty(t, res.Note)

	last, ok := o.Last()
	require.True(t, ok)
	assert.Equal(t, res.ID, last.ID)
	assert.Equal(t, []Kind{KindScan}, hooked)

	// mutating the returned copy leaves the cache alone
	last.Ban[0].Nickname = "changed"
	again, _ := o.Last()
	assert.Equal(t, "Admin1", again.Ban[0].Nickname)
}

func TestScanNotReady(t *testing.T) {
	enum := &fakeEnum{}
	o, ready := newOrchestrator(t, enum, false, Config{})
	ready.v.Store(false)

	_, err := o.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.Zero(t, enum.calls.Load())
}

func TestConcurrentScanIsRejected(t *testing.T) {
	enum := &fakeEnum{names: []string{"Steve"}, gate: make(chan struct{})}
	o, _ := newOrchestrator(t, enum, false, Config{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := o.Scan(context.Background())
		assert.NoError(t, err)
	}()
	require.Eventually(t, o.Busy, time.Second, time.Millisecond)

	started := time.Now()
	_, err := o.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrScanInProgress)
	assert.Less(t, time.Since(started), 50*time.Millisecond)

	_, err = o.AIReview(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoLastScan)

	close(enum.gate)
	wg.Wait()
	assert.False(t, o.Busy())
	assert.EqualValues(t, 1, enum.calls.Load())
}

func TestFailedScanKeepsPreviousResult(t *testing.T) {
	enum := &fakeEnum{names: []string{"Steve"}}
	o, _ := newOrchestrator(t, enum, false, Config{})
	first, err := o.Scan(context.Background())
	require.NoError(t, err)

	enum.err = domain.ErrNotReady
	_, err = o.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotReady)

	last, _ := o.Last()
	assert.Equal(t, first.ID, last.ID)
}

func TestAIReview(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{names: []string{"SusMan", "Steve"}}, true, Config{AIBudget: 5})

	_, err := o.AIReview(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoLastScan)

	scan, err := o.Scan(context.Background())
	require.NoError(t, err)

	var hooked []Kind
	o.OnResult(func(k Kind, _ domain.ScanResult) { hooked = append(hooked, k) })

	res, err := o.AIReview(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Review)
	assert.Len(t, res.OK, 2)
	assert.Equal(t, "AI checked 1 of 1", res.Note)
	assert.Equal(t, []Kind{KindAIReview}, hooked)

	last, _ := o.Last()
	assert.Equal(t, scan.ID, last.ID)
	assert.Len(t, last.Review, 1)
}

func TestAIReviewDisabled(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{names: []string{"SusMan"}}, false, Config{AIBudget: 5})
	_, err := o.Scan(context.Background())
	require.NoError(t, err)

	_, err = o.AIReview(context.Background())
	assert.ErrorIs(t, err, domain.ErrAIDisabled)
}

func TestScanWithAIOnScan(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{names: []string{"SusMan"}}, true, Config{AIOnScan: true, AIBudget: 5})
	res, err := o.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.OK, 1)
	assert.Equal(t, "AI checked 1 of 1", res.Note)
}

func TestCheck(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{}, true, Config{})
	ctx := context.Background()

	for _, bad := range []string{"", "   ", "two words", "abcdefghijklmnopqrstuvwxyz0123456789"} {
		_, err := o.Check(ctx, bad)
		assert.True(t, errors.Is(err, domain.ErrInvalidNickname), "nick=%q", bad)
	}

	one, err := o.Check(ctx, "  xX_SusMan_Xx ")
	require.NoError(t, err)
	assert.Equal(t, "xX_SusMan_Xx", one.Nickname)
	assert.Equal(t, domain.ActionReview, one.Rules.Action)
	assert.Equal(t, domain.ActionOK, one.Final.Action)
}

func TestRunAutoScanSkipsWhenNotReady(t *testing.T) {
	enum := &fakeEnum{names: []string{"Steve"}}
	o, ready := newOrchestrator(t, enum, false, Config{})
	ready.v.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.RunAutoScan(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, enum.calls.Load())

	ready.v.Store(true)
	require.Eventually(t, func() bool { return enum.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, ok := o.Last()
	assert.True(t, ok)
}

func TestReloadRules(t *testing.T) {
	o, _ := newOrchestrator(t, &fakeEnum{}, false, Config{})
	require.NoError(t, o.ReloadRules())
	assert.Equal(t, 1, o.rules.(*countingReloader).n)
}
