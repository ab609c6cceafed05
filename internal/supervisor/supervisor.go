// Package supervisor owns the game session: it connects, decides when the
// session is ready for requests, and reconnects after failures.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/park285/nickguard/internal/domain"
	"github.com/park285/nickguard/internal/mcproto"
	"go.uber.org/zap"
)

// Session is the part of mcproto.Session the supervisor drives.
type Session interface {
	Events() <-chan mcproto.Event
	RequestCompletion(ctx context.Context, text string) ([]string, error)
	SendChat(msg string) error
	Roster() []string
	Close() error
}

// Dialer opens and logs in a new session.
type Dialer func(ctx context.Context) (Session, error)

// MCDialer adapts mcproto.Dial.
func MCDialer(opts mcproto.Options) Dialer {
	return func(ctx context.Context) (Session, error) {
		s, err := mcproto.Dial(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Config struct {
	LoginCmd       string
	WaitAfterSpawn time.Duration
	SpawnWait      time.Duration
	ProbeTimeout   time.Duration
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// ProbeText is the completion request used to test a session that never
	// reported a spawn.
	ProbeText string
}

func (c *Config) defaults() {
	if c.WaitAfterSpawn <= 0 {
		c.WaitAfterSpawn = 3 * time.Second
	}
	if c.SpawnWait <= 0 {
		c.SpawnWait = 8 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.ProbeText == "" {
		c.ProbeText = "/msg "
	}
}

type Supervisor struct {
	dial   Dialer
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	status    Status
	sess      Session
	listeners []func(Status)

	nudge chan struct{}
}

func New(dial Dialer, cfg Config, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.defaults()
	s := &Supervisor{
		dial:   dial,
		cfg:    cfg,
		logger: logger,
		status: Status{State: StateOffline, Since: time.Now()},
		nudge:  make(chan struct{}, 1),
	}
	observeState(StateOffline)
	return s
}

// OnStateChange registers fn; it runs on the supervisor goroutine after every
// transition and must not block.
func (s *Supervisor) OnStateChange(fn func(Status)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Supervisor) State() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Supervisor) IsReady() bool { return s.State().State == StateReady }

// Epoch increments with every new connection.
func (s *Supervisor) Epoch() uint64 { return s.State().Epoch }

// Reconnect drops the current session (if any) and skips the backoff wait.
// Repeated calls before the supervisor reacts collapse into one, and a call
// made while a new connection is already under way is ignored.
func (s *Supervisor) Reconnect() {
	switch s.State().State {
	case StateConnecting, StateDisconnecting:
		return
	}
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Supervisor) readySession() (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status.State != StateReady || s.sess == nil {
		return nil, domain.ErrNotReady
	}
	return s.sess, nil
}

// Complete asks the server to complete text. It fails fast with
// domain.ErrNotReady unless the session is Ready.
func (s *Supervisor) Complete(ctx context.Context, text string) ([]string, error) {
	sess, err := s.readySession()
	if err != nil {
		return nil, err
	}
	return sess.RequestCompletion(ctx, text)
}

// SendChat sends a chat line on the ready session.
func (s *Supervisor) SendChat(msg string) error {
	sess, err := s.readySession()
	if err != nil {
		return err
	}
	return sess.SendChat(msg)
}

// Roster is the server's player list as seen by the ready session.
func (s *Supervisor) Roster() []string {
	sess, err := s.readySession()
	if err != nil {
		return nil
	}
	return sess.Roster()
}

// Run drives the connect/ready/reconnect cycle until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor_started")
	for {
		cause := s.cycle(ctx)
		if ctx.Err() != nil {
			s.logger.Info("supervisor_stopped")
			return nil
		}
		if errors.Is(cause, errReconnectRequested) {
			continue
		}
		t := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.logger.Info("supervisor_stopped")
			return nil
		case <-t.C:
		case <-s.nudge:
			t.Stop()
		}
	}
}

// cycle runs one connection from dial to teardown and returns why it ended.
func (s *Supervisor) cycle(ctx context.Context) error {
	s.transition(func(st *Status) {
		st.State = StateConnecting
		st.ReadyVia = ""
	})
	// a nudge left over from before this attempt is already being served
	select {
	case <-s.nudge:
	default:
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	sess, err := s.dial(dctx)
	cancel()
	if err != nil {
		connectCount.WithLabelValues("failed").Inc()
		s.logger.Warn("mc_connect_failed", zap.Error(err))
		s.transition(func(st *Status) {
			st.State = StateOffline
			st.LastError = err.Error()
		})
		return err
	}
	connectCount.WithLabelValues("ok").Inc()

	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	s.transition(func(st *Status) {
		st.State = StateLoggedIn
		st.Epoch++
		st.ConnectedAt = time.Now()
		st.LastError = ""
	})

	err = s.awaitReady(ctx, sess)
	if err == nil {
		err = s.serve(ctx, sess)
	}
	s.teardown(sess, err)
	return err
}

var (
	errReconnectRequested = errors.New("reconnect requested")
	errStopped            = errors.New("supervisor stopped")
)

func (s *Supervisor) awaitReady(ctx context.Context, sess Session) error {
	loginSent := false
	sendLogin := func() {
		if loginSent || s.cfg.LoginCmd == "" {
			return
		}
		loginSent = true
		if err := sess.SendChat(s.cfg.LoginCmd); err != nil {
			s.logger.Warn("mc_login_cmd_failed", zap.Error(err))
			return
		}
		s.logger.Info("mc_login_cmd_sent")
	}

	spawnTimer := time.NewTimer(s.cfg.SpawnWait)
	defer spawnTimer.Stop()
	var settle <-chan time.Time
	joined := false

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return domain.ErrConnectionLost
			}
			switch e := ev.(type) {
			case mcproto.JoinedGame:
				joined = true
			case mcproto.Spawned:
				if settle == nil {
					s.logger.Info("mc_spawned", zap.Float64("x", e.X), zap.Float64("y", e.Y), zap.Float64("z", e.Z))
					spawnTimer.Stop()
					sendLogin()
					settle = time.After(s.cfg.WaitAfterSpawn)
				}
			case mcproto.Disconnected:
				return disconnectErr(e)
			}
		case <-settle:
			if !joined {
				return errors.New("spawned without a player entity")
			}
			s.markReady("spawn")
			return nil
		case <-spawnTimer.C:
			sendLogin()
			if err := s.probe(ctx, sess); err != nil {
				return fmt.Errorf("no spawn and probe failed: %w", err)
			}
			s.markReady("probe")
			return nil
		case <-s.nudge:
			return errReconnectRequested
		case <-ctx.Done():
			return errStopped
		}
	}
}

func (s *Supervisor) probe(ctx context.Context, sess Session) error {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()
	matches, err := sess.RequestCompletion(pctx, s.cfg.ProbeText)
	if err != nil {
		return err
	}
	s.logger.Info("mc_probe_answered", zap.Int("matches", len(matches)))
	return nil
}

func (s *Supervisor) markReady(via string) {
	s.transition(func(st *Status) {
		st.State = StateReady
		st.ReadyVia = via
	})
	s.logger.Info("mc_ready", zap.String("via", via), zap.Uint64("epoch", s.Epoch()))
}

// serve waits for the ready session to end.
func (s *Supervisor) serve(ctx context.Context, sess Session) error {
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return domain.ErrConnectionLost
			}
			switch e := ev.(type) {
			case mcproto.Disconnected:
				return disconnectErr(e)
			case mcproto.ChatReceived:
				s.logger.Debug("mc_chat", zap.String("text", e.Text))
			}
		case <-s.nudge:
			return errReconnectRequested
		case <-ctx.Done():
			return errStopped
		}
	}
}

func (s *Supervisor) teardown(sess Session, cause error) {
	s.transition(func(st *Status) { st.State = StateDisconnecting })
	if err := sess.Close(); err != nil {
		s.logger.Debug("mc_close_failed", zap.Error(err))
	}
	s.mu.Lock()
	s.sess = nil
	s.mu.Unlock()

	if errors.Is(cause, errStopped) {
		cause = nil
	}
	s.transition(func(st *Status) {
		st.State = StateOffline
		st.ReadyVia = ""
		if cause != nil {
			st.LastError = cause.Error()
		}
	})
	if cause != nil {
		s.logger.Warn("mc_session_ended", zap.Error(cause))
	}
}

func disconnectErr(e mcproto.Disconnected) error {
	if e.Err != nil {
		return e.Err
	}
	return fmt.Errorf("%w: %s", domain.ErrConnectionLost, e.Reason)
}

// transition applies fn to the status and notifies listeners. Only the
// supervisor goroutine calls it.
func (s *Supervisor) transition(fn func(*Status)) {
	s.mu.Lock()
	prev := s.status.State
	fn(&s.status)
	if s.status.State != prev {
		s.status.Since = time.Now()
	}
	snap := s.status
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	if snap.State == prev {
		return
	}
	observeState(snap.State)
	s.logger.Debug("mc_state", zap.String("from", string(prev)), zap.String("to", string(snap.State)))
	for _, fn := range listeners {
		fn(snap)
	}
}
