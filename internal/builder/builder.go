// Package builder wires the moderation components from an AppConfig.
package builder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/nickguard/internal/arbiter"
	"github.com/park285/nickguard/internal/config"
	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/enumerate"
	"github.com/park285/nickguard/internal/escalate"
	"github.com/park285/nickguard/internal/gemini"
	"github.com/park285/nickguard/internal/httpapi"
	"github.com/park285/nickguard/internal/mcproto"
	"github.com/park285/nickguard/internal/msgcat"
	"github.com/park285/nickguard/internal/notify"
	"github.com/park285/nickguard/internal/report"
	"github.com/park285/nickguard/internal/rules"
	"github.com/park285/nickguard/internal/scan"
	"github.com/park285/nickguard/internal/supervisor"
	"go.uber.org/zap"
)

const memCacheSize = 10_000

// Deps is everything the daemon runs.
type Deps struct {
	Rules      *rules.Store
	Arbiter    *arbiter.Arbiter
	Pipeline   *escalate.Pipeline
	Supervisor *supervisor.Supervisor
	Scanner    *scan.Orchestrator
	Formatter  *report.Formatter
	Notifier   *notify.Notifier
	Hub        *httpapi.Hub
	HTTP       *httpapi.Server

	closers []func() error
}

// Classifier is the offline subset used by the nickcheck tool.
type Classifier struct {
	Rules    *rules.Store
	Arbiter  *arbiter.Arbiter
	Pipeline *escalate.Pipeline
	closers  []func() error
}

// Close releases external clients. It is safe to call once.
func (d *Deps) Close() error { return closeAll(d.closers) }

func (c *Classifier) Close() error { return closeAll(c.closers) }

func closeAll(fns []func() error) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadRules opens the rule store. A rule file problem is logged and the
// default set stays active; only a nil store is fatal.
func LoadRules(path string, logger *zap.Logger) (*rules.Store, error) {
	store, err := rules.NewStore(path, logger.Named("rules"))
	var cfgErr *domain.ConfigError
	switch {
	case err == nil:
	case errors.As(err, &cfgErr) && store != nil:
		logger.Warn("rules_defaults_active", zap.String("path", path), zap.Error(err))
	default:
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return store, nil
}

// NewClassifier builds the rules and AI tiers without a game session.
func NewClassifier(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := LoadRules(cfg.RulesPath, logger)
	if err != nil {
		return nil, err
	}
	c := &Classifier{Rules: store}

	if cfg.AIAvailable() {
		cache, closer := newCache(ctx, cfg, logger)
		if closer != nil {
			c.closers = append(c.closers, closer)
		}
		c.Arbiter = arbiter.New(arbiter.Options{
			Provider:  gemini.New(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel),
			Cache:     cache,
			Normalize: func(s string) string { return store.Snapshot().Normalize(s) },
			Logger:    logger.Named("arbiter"),
		})
	} else {
		logger.Info("ai_tier_disabled", zap.Bool("enabled", cfg.AIEnabled), zap.Bool("has_key", cfg.GeminiAPIKey != ""))
	}

	var ai escalate.AI
	if c.Arbiter != nil {
		ai = c.Arbiter
	}
	c.Pipeline = escalate.New(store, ai, escalate.Config{
		BanThreshold: cfg.AIBanConf,
		OKThreshold:  cfg.AIOKConf,
		Delay:        cfg.AIDelay,
	}, logger.Named("escalate"))
	return c, nil
}

// newCache prefers redis and falls back to an in-process LRU when redis is
// not configured or unreachable.
func newCache(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (arbiter.Cache, func() error) {
	if cfg.RedisURL != "" {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rc, err := arbiter.NewRedisCache(pctx, cfg.RedisURL, cfg.AICacheTTL)
		if err == nil {
			logger.Info("ai_cache_redis")
			return rc, rc.Close
		}
		logger.Warn("ai_cache_redis_unavailable", zap.Error(err))
	}
	return arbiter.NewMemCache(memCacheSize, cfg.AICacheTTL), nil
}

// New assembles the daemon. Nothing is started; see Deps fields for the
// long-running parts.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	cl, err := NewClassifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sup := supervisor.New(supervisor.MCDialer(mcproto.Options{
		Host:     cfg.MCHost,
		Port:     cfg.MCPort,
		Username: cfg.MCUser,
		Protocol: cfg.MCProtocol,
		Logger:   logger.Named("mcproto"),
	}), supervisor.Config{
		LoginCmd:       cfg.MCLoginCmd,
		WaitAfterSpawn: cfg.WaitAfterSpawn,
		SpawnWait:      cfg.SpawnWait,
		ProbeTimeout:   cfg.ProbeTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		ProbeText:      cfg.CompletionCommand,
	}, logger.Named("supervisor"))

	enum := enumerate.New(sup, enumerate.Config{
		Command:        cfg.CompletionCommand,
		Timeout:        cfg.CompletionTimeout,
		Self:           cfg.MCUser,
		RosterFallback: cfg.RosterFallback,
	}, logger.Named("enumerate"))

	orch := scan.New(sup, enum, cl.Pipeline, cl.Rules, scan.Config{
		Prefixes: cfg.Prefixes(),
		Delay:    cfg.ScanDelay,
		AIOnScan: cfg.AIOnScan,
		AIBudget: cfg.AIBudget,
	}, logger.Named("scan"))

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Warn("msgcat_overrides_failed", zap.String("dir", cfg.MessagesDir), zap.Error(err))
		cat = msgcat.MustDefault()
	}
	formatter := report.NewFormatter(cat, cfg.MessageLimit)

	egress := notify.NewEgress(cfg.BotToken, cfg.ChatID, logger.Named("notify"))
	notifier := notify.NewNotifier(egress, formatter, logger.Named("notify"))
	// delivery can take seconds; keep it off the scan goroutine
	orch.OnResult(func(k scan.Kind, res domain.ScanResult) { go notifier.OnResult(k, res) })

	hub := httpapi.NewHub(logger.Named("ws"))
	sup.OnStateChange(hub.OnState)
	orch.OnResult(hub.OnResult)

	srv := httpapi.New(httpapi.Deps{
		Moderator: orch,
		Session:   sup,
		Rules:     cl.Rules,
		Formatter: formatter,
		Hub:       hub,
		AIEnabled: cl.Pipeline.AIEnabled(),
		Logger:    logger.Named("http"),
	})

	return &Deps{
		Rules:      cl.Rules,
		Arbiter:    cl.Arbiter,
		Pipeline:   cl.Pipeline,
		Supervisor: sup,
		Scanner:    orch,
		Formatter:  formatter,
		Notifier:   notifier,
		Hub:        hub,
		HTTP:       srv,
		closers:    cl.closers,
	}, nil
}
