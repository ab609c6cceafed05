// Package mcproto is a minimal offline-mode game client: it logs in, stays
// alive, and asks the server for name completions.
package mcproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	mcnet "github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"
	"github.com/park285/nickguard/internal/domain"
	"go.uber.org/zap"
)

// ErrOnlineMode is returned when the server asks for encryption.
var ErrOnlineMode = errors.New("server is in online mode; only offline-mode login is supported")

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

type Options struct {
	Host     string
	Port     int
	Username string
	Protocol int
	Logger   *zap.Logger
}

// Session is one logged-in connection. It is not reused after Disconnected.
type Session struct {
	conn   *mcnet.Conn
	opts   Options
	logger *zap.Logger

	// Profile as confirmed by the server.
	UUID uuid.UUID
	Name string

	writeMu sync.Mutex
	events  chan Event

	// one outstanding tab-complete request
	tabSem    chan struct{}
	pendingMu sync.Mutex
	pending   *completion
	// replies still owed to requests that gave up
	stale int

	rosterMu sync.RWMutex
	roster   map[uuid.UUID]string

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the server and performs the login. ctx bounds the dial and
// login only; the session lives until Close or a disconnect.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	s, err := Login(ctx, nc, opts)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return s, nil
}

// Login runs handshake and login over an established connection and starts
// the read loop.
func Login(ctx context.Context, nc net.Conn, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Protocol == 0 {
		opts.Protocol = 47
	}
	s := &Session{
		conn:   mcnet.WrapConn(nc),
		opts:   opts,
		logger: opts.Logger,
		events: make(chan Event, eventBuffer),
		tabSem: make(chan struct{}, 1),
		roster: make(map[uuid.UUID]string),
		closed: make(chan struct{}),
	}

	// ctx is already done when the callback fires, so a read interrupted by
	// it always reports ctx.Err() below
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = nc.SetDeadline(time.Now())
		close(interrupted)
	})
	err := s.login()
	if !stop() {
		<-interrupted
	}
	_ = nc.SetDeadline(time.Time{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("login: %w", ctx.Err())
		}
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

func (s *Session) login() error {
	err := s.conn.WritePacket(pk.Marshal(idHandshake,
		pk.VarInt(s.opts.Protocol),
		pk.String(s.opts.Host),
		pk.UnsignedShort(s.opts.Port),
		pk.VarInt(nextStateLogin),
	))
	if err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	if err := s.conn.WritePacket(pk.Marshal(idLoginStart, pk.String(s.opts.Username))); err != nil {
		return fmt.Errorf("send login start: %w", err)
	}

	for {
		var p pk.Packet
		if err := s.conn.ReadPacket(&p); err != nil {
			return fmt.Errorf("read login packet: %w", err)
		}
		switch p.ID {
		case idLoginDisconnect:
			var reason pk.String
			_ = p.Scan(&reason)
			return fmt.Errorf("login rejected: %s", plainText(string(reason)))
		case idEncryptionRequest:
			return ErrOnlineMode
		case idLoginSetCompression:
			var threshold pk.VarInt
			if err := p.Scan(&threshold); err != nil {
				return fmt.Errorf("decode set compression: %w", err)
			}
			s.conn.SetThreshold(int(threshold))
		case idLoginSuccess:
			var id, name pk.String
			if err := p.Scan(&id, &name); err != nil {
				return fmt.Errorf("decode login success: %w", err)
			}
			s.UUID, _ = uuid.Parse(string(id))
			s.Name = string(name)
			s.logger.Info("mc_login_success", zap.String("name", s.Name), zap.String("uuid", s.UUID.String()))
			return nil
		default:
			s.logger.Debug("mc_login_packet_ignored", zap.Int32("id", p.ID))
		}
	}
}

// Events delivers session events. It is closed after Disconnected.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session is finished.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		var p pk.Packet
		if err := s.conn.ReadPacket(&p); err != nil {
			reason := "connection closed"
			select {
			case <-s.closed:
			default:
				reason = "connection lost"
			}
			s.finish(Disconnected{Reason: reason, Err: fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)})
			return
		}
		if done := s.handle(p); done {
			return
		}
	}
}

// handle processes one play packet and reports whether the session ended.
func (s *Session) handle(p pk.Packet) bool {
	switch p.ID {
	case idKeepAliveCB:
		var id pk.VarInt
		if err := p.Scan(&id); err == nil {
			if err := s.write(pk.Marshal(idKeepAliveSB, id)); err != nil {
				s.logger.Warn("mc_keepalive_failed", zap.Error(err))
			}
		}
	case idJoinGame:
		var eid pk.Int
		if err := p.Scan(&eid); err != nil {
			s.logger.Warn("mc_join_game_decode_failed", zap.Error(err))
			return false
		}
		s.emit(JoinedGame{EntityID: int32(eid)})
	case idPositionLookCB:
		var x, y, z pk.Double
		var yaw, pitch pk.Float
		if err := p.Scan(&x, &y, &z, &yaw, &pitch); err != nil {
			s.logger.Warn("mc_position_decode_failed", zap.Error(err))
			return false
		}
		// the server waits for the client to confirm the teleport
		if err := s.write(pk.Marshal(idPositionLookSB, x, y, z, yaw, pitch, pk.Boolean(true))); err != nil {
			s.logger.Warn("mc_position_reply_failed", zap.Error(err))
		}
		s.emit(Spawned{X: float64(x), Y: float64(y), Z: float64(z)})
	case idTabCompleteCB:
		matches, err := decodeMatches(p.Data)
		if err != nil {
			s.logger.Warn("mc_tab_complete_decode_failed", zap.Error(err))
			return false
		}
		s.deliver(matches)
	case idPlayerListItem:
		ev, err := s.applyPlayerList(p.Data)
		if err != nil {
			s.logger.Debug("mc_player_list_decode_failed", zap.Error(err))
			return false
		}
		if len(ev.Added) > 0 || len(ev.Removed) > 0 {
			s.emit(ev)
		}
	case idChatCB:
		var msg pk.String
		if err := p.Scan(&msg); err == nil {
			s.emitLossy(ChatReceived{Text: plainText(string(msg))})
		}
	case idPlaySetThreshold:
		var threshold pk.VarInt
		if err := p.Scan(&threshold); err == nil {
			s.writeMu.Lock()
			s.conn.SetThreshold(int(threshold))
			s.writeMu.Unlock()
		}
	case idPlayDisconnect:
		var reason pk.String
		_ = p.Scan(&reason)
		text := plainText(string(reason))
		s.finish(Disconnected{Reason: text, Err: fmt.Errorf("%w: kicked: %s", domain.ErrConnectionLost, text)})
		return true
	}
	return false
}

func decodeMatches(data []byte) ([]string, error) {
	r := bytes.NewReader(data)
	var n pk.VarInt
	if _, err := n.ReadFrom(r); err != nil {
		return nil, err
	}
	if n < 0 || int(n) > len(data) {
		return nil, fmt.Errorf("bad match count %d", n)
	}
	out := make([]string, 0, int(n))
	for i := 0; i < int(n); i++ {
		var m pk.String
		if _, err := m.ReadFrom(r); err != nil {
			return nil, err
		}
		out = append(out, string(m))
	}
	return out, nil
}

func (s *Session) applyPlayerList(data []byte) (RosterChanged, error) {
	var ev RosterChanged
	r := bytes.NewReader(data)
	var action, count pk.VarInt
	if _, err := action.ReadFrom(r); err != nil {
		return ev, err
	}
	if _, err := count.ReadFrom(r); err != nil {
		return ev, err
	}

	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()
	for i := 0; i < int(count); i++ {
		var id pk.UUID
		if _, err := id.ReadFrom(r); err != nil {
			return ev, err
		}
		switch action {
		case listAddPlayer:
			name, err := readAddPlayer(r)
			if err != nil {
				return ev, err
			}
			s.roster[uuid.UUID(id)] = name
			ev.Added = append(ev.Added, name)
		case listRemovePlayer:
			delete(s.roster, uuid.UUID(id))
			ev.Removed = append(ev.Removed, uuid.UUID(id))
		case listUpdateGamemode, listUpdateLatency:
			var v pk.VarInt
			if _, err := v.ReadFrom(r); err != nil {
				return ev, err
			}
		case listUpdateDisplayName:
			if err := skipOptionalString(r); err != nil {
				return ev, err
			}
		default:
			return ev, fmt.Errorf("unknown player list action %d", action)
		}
	}
	return ev, nil
}

func readAddPlayer(r *bytes.Reader) (string, error) {
	var name pk.String
	if _, err := name.ReadFrom(r); err != nil {
		return "", err
	}
	var props pk.VarInt
	if _, err := props.ReadFrom(r); err != nil {
		return "", err
	}
	for j := 0; j < int(props); j++ {
		var key, value pk.String
		if _, err := key.ReadFrom(r); err != nil {
			return "", err
		}
		if _, err := value.ReadFrom(r); err != nil {
			return "", err
		}
		if err := skipOptionalString(r); err != nil {
			return "", err
		}
	}
	var gamemode, ping pk.VarInt
	if _, err := gamemode.ReadFrom(r); err != nil {
		return "", err
	}
	if _, err := ping.ReadFrom(r); err != nil {
		return "", err
	}
	if err := skipOptionalString(r); err != nil {
		return "", err
	}
	return string(name), nil
}

func skipOptionalString(r *bytes.Reader) error {
	var has pk.Boolean
	if _, err := has.ReadFrom(r); err != nil {
		return err
	}
	if has {
		var s pk.String
		_, err := s.ReadFrom(r)
		return err
	}
	return nil
}

// Roster returns the names currently on the player list, sorted.
func (s *Session) Roster() []string {
	s.rosterMu.RLock()
	out := make([]string, 0, len(s.roster))
	for _, n := range s.roster {
		out = append(out, n)
	}
	s.rosterMu.RUnlock()
	sort.Strings(out)
	return out
}

// maxStale bounds how many unanswered requests are remembered.
const maxStale = 4

type completion struct {
	token string
	ch    chan []string
	// an empty reply was dropped while this request waited; it may have
	// been this request's own answer
	droppedEmpty bool
}

// completionToken is the word being completed: the text after the last space.
func completionToken(text string) string {
	return strings.ToLower(text[strings.LastIndexByte(text, ' ')+1:])
}

// accepts reports whether every match completes the requested token.
func (c *completion) accepts(matches []string) bool {
	for _, m := range matches {
		if !strings.HasPrefix(strings.ToLower(m), c.token) {
			return false
		}
	}
	return true
}

// RequestCompletion sends a tab-complete request for text and waits for the
// answer. Only one request is outstanding at a time; a caller that cannot get
// the slot before ctx ends gets domain.ErrRequestInFlight.
//
// Replies carry no request id. A reply whose matches do not all complete the
// requested word, or an empty reply while an earlier request is still owed
// its answer, is taken as stale and dropped; the request keeps waiting.
func (s *Session) RequestCompletion(ctx context.Context, text string) ([]string, error) {
	select {
	case s.tabSem <- struct{}{}:
	case <-ctx.Done():
		return nil, domain.ErrRequestInFlight
	case <-s.closed:
		return nil, domain.ErrConnectionLost
	}
	defer func() { <-s.tabSem }()

	c := &completion{token: completionToken(text), ch: make(chan []string, 1)}
	s.pendingMu.Lock()
	s.pending = c
	s.pendingMu.Unlock()
	sent := false
	defer func() {
		s.pendingMu.Lock()
		if s.pending == c {
			s.pending = nil
			if sent && !c.droppedEmpty && s.stale < maxStale {
				s.stale++
			}
		}
		s.pendingMu.Unlock()
	}()

	if err := s.write(pk.Marshal(idTabCompleteSB, pk.String(text), pk.Boolean(false))); err != nil {
		return nil, err
	}
	sent = true

	select {
	case m := <-c.ch:
		return m, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrProtocolTimeout
		}
		return nil, ctx.Err()
	case <-s.closed:
		return nil, domain.ErrConnectionLost
	}
}

func (s *Session) deliver(matches []string) {
	s.pendingMu.Lock()
	c := s.pending
	if c == nil || !c.accepts(matches) || (len(matches) == 0 && s.stale > 0) {
		if s.stale > 0 {
			s.stale--
		}
		if c != nil && len(matches) == 0 {
			c.droppedEmpty = true
		}
		s.pendingMu.Unlock()
		s.logger.Debug("mc_tab_complete_stale", zap.Int("matches", len(matches)), zap.Bool("pending", c != nil))
		return
	}
	s.pending = nil
	s.pendingMu.Unlock()
	c.ch <- matches
}

// SendChat sends one chat line (commands included).
func (s *Session) SendChat(msg string) error {
	if len(msg) > maxChatLen {
		return fmt.Errorf("chat line longer than %d bytes", maxChatLen)
	}
	return s.write(pk.Marshal(idChatSB, pk.String(msg)))
}

func (s *Session) write(p pk.Packet) error {
	select {
	case <-s.closed:
		return domain.ErrConnectionLost
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.Socket.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WritePacket(p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}
	return nil
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// emitLossy drops ev when nobody keeps up with the channel.
func (s *Session) emitLossy(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// finish emits the final event and tears the connection down.
func (s *Session) finish(ev Disconnected) {
	s.logger.Info("mc_disconnected", zap.String("reason", ev.Reason))
	// the buffer normally has room; a stuck consumer must not block shutdown
	select {
	case s.events <- ev:
	case <-time.After(time.Second):
	}
	s.Close()
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
