package rules

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Store owns the current Snapshot. Readers take the pointer once per
// operation; Reload swaps the whole snapshot.
type Store struct {
	path   string
	logger *zap.Logger
	cur    atomic.Pointer[Snapshot]
}

// NewStore loads path. The returned store is always usable; a non-nil error is
// a *domain.ConfigError describing why defaults are in effect.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	err := s.Reload()
	return s, err
}

// NewStaticStore wraps an in-memory rule set.
func NewStaticStore(rs *RuleSet, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	s.cur.Store(Compile(rs, logger))
	return s
}

// Snapshot returns the current compiled rule set.
func (s *Store) Snapshot() *Snapshot { return s.cur.Load() }

// Path is the rule file location.
func (s *Store) Path() string { return s.path }

// Reload re-reads the rule file and swaps the snapshot. A read or parse
// failure installs the default rule set and returns the *domain.ConfigError.
func (s *Store) Reload() error {
	rs, err := LoadFile(s.path)
	snap := Compile(rs, s.logger)
	s.cur.Store(snap)
	if err != nil {
		reloadCount.WithLabelValues("fallback").Inc()
		s.logger.Error("rules_load_failed", zap.String("path", s.path), zap.Error(err))
		return err
	}
	reloadCount.WithLabelValues("ok").Inc()
	s.logger.Info("rules_loaded",
		zap.String("path", s.path),
		zap.Int("version", snap.Version),
		zap.Int("rules", len(snap.rules)),
		zap.Int("review", len(snap.review)),
		zap.Int("whitelist", len(snap.whitelist)),
		zap.Int("warnings", len(snap.Warnings)),
	)
	return nil
}

// Replace installs rs directly.
func (s *Store) Replace(rs *RuleSet) {
	s.cur.Store(Compile(rs, s.logger))
}
