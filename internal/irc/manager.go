// Package irc owns the relay's single connection to the IRC network.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/irc.v4"
)

// MaxAttempts bounds the number of dials made by a single Connect call.
const MaxAttempts = 5

const (
	// maxLineLength is the RFC 1459 limit including the trailing CRLF.
	maxLineLength = 512
	// maxHostLength is reserved for the host part of the prefix the server
	// adds when relaying our messages.
	maxHostLength = 63
	// minChunkLength keeps chunking usable for very long channel names.
	minChunkLength = 64

	defaultRetryInterval       = 2 * time.Second
	defaultRegistrationTimeout = 30 * time.Second
	defaultPingFrequency       = 90 * time.Second
)

var (
	ErrNotConnected      = errors.New("irc: not connected")
	ErrConnectionFailed  = errors.New("irc: connection failed")
	ErrAlreadyConnecting = errors.New("irc: connect already in progress or established")
)

// NickServ controls identification after registration.
type NickServ struct {
	Enabled  bool
	Username string
	Password string
	// Command, when set, replaces "PRIVMSG NickServ :IDENTIFY" with a raw
	// command such as "NS IDENTIFY".
	Command string
}

// Config describes the server and identity used by a Manager.
type Config struct {
	Address          string
	Port             int
	Secure           bool
	AcceptExpired    bool
	AcceptSelfSigned bool
	UserModes        string

	Nickname string
	Username string
	Realname string
	Channel  string

	NickServ NickServ

	RetryInterval       time.Duration
	RegistrationTimeout time.Duration
	PingFrequency       time.Duration
}

// HostPort is the dial target.
func (c Config) HostPort() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Dialer opens the transport for one connection attempt.
type Dialer func(ctx context.Context) (net.Conn, error)

// Option customises a Manager.
type Option func(*Manager)

// WithDialer replaces the TCP/TLS dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithStateHook registers fn to observe every state transition.
func WithStateHook(fn func(State)) Option {
	return func(m *Manager) { m.onState = fn }
}

// Manager holds one IRC connection and serialises writes to it.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	dial    Dialer
	onState func(State)

	mu    sync.Mutex
	state State
	sess  *session

	// Set while Connect runs; Close cancels it and waits on connecting.
	cancelConnect context.CancelFunc
	connecting    chan struct{}

	writeMu sync.Mutex
}

type session struct {
	conn       net.Conn
	client     *irc.Client
	cancel     context.CancelFunc
	registered chan struct{}
	regOnce    sync.Once
	done       chan struct{}
	err        error
}

// New returns a disconnected Manager.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = defaultRegistrationTimeout
	}
	if cfg.PingFrequency <= 0 {
		cfg.PingFrequency = defaultPingFrequency
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Nickname
	}
	if cfg.Realname == "" {
		cfg.Realname = cfg.Nickname
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.With("component", "irc"),
		state:  Disconnected,
	}
	m.dial = m.dialNetwork
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials, registers and joins the configured channel. It blocks until
// the post-connect commands have been written or every attempt has failed.
// Only one Connect runs at a time.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Disconnected {
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.state = Connecting
	m.cancelConnect, m.connecting = cancel, done
	m.mu.Unlock()
	m.notify(Connecting)

	err := m.connect(ctx)

	m.mu.Lock()
	m.cancelConnect, m.connecting = nil, nil
	failed := err != nil && m.state != Disconnected
	if err != nil {
		m.state = Disconnected
	}
	m.mu.Unlock()

	cancel()
	if failed {
		m.notify(Disconnected)
	}
	close(done)
	return err
}

func (m *Manager) connect(ctx context.Context) error {
	scheme := "tcp"
	if m.cfg.Secure {
		scheme = "tls"
	}
	m.logger.Info("connecting",
		"server", m.cfg.HostPort(),
		"transport", scheme,
		"nickname", m.cfg.Nickname,
		"channel", m.cfg.Channel,
		"nickserv", m.cfg.NickServ.Enabled,
	)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.RetryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		return m.attempt(ctx)
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("connect attempt failed",
			"attempt", attempt,
			"max_attempts", MaxAttempts,
			"retry_in", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, MaxAttempts-1), ctx), notify)
	if err != nil {
		return fmt.Errorf("%w after %d attempt(s): %w", ErrConnectionFailed, attempt, err)
	}

	if err := m.joinAndAuthenticate(); err != nil {
		m.dropSession()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	m.logger.Info("connected", "server", m.cfg.HostPort(), "channel", m.cfg.Channel, "attempts", attempt)
	return nil
}

// attempt makes one dial and waits for the 001 welcome.
func (m *Manager) attempt(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("dial %s: %w", m.cfg.HostPort(), err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:       conn,
		cancel:     cancel,
		registered: make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.client = irc.NewClient(conn, irc.ClientConfig{
		Nick:          m.cfg.Nickname,
		User:          m.cfg.Username,
		Name:          m.cfg.Realname,
		PingFrequency: m.cfg.PingFrequency,
		PingTimeout:   m.cfg.PingFrequency,
		Handler:       irc.HandlerFunc(m.handler(s)),
	})

	m.mu.Lock()
	m.sess = s
	m.mu.Unlock()

	go func() {
		s.err = s.client.RunContext(runCtx)
		close(s.done)
		m.sessionEnded(s)
	}()

	timer := time.NewTimer(m.cfg.RegistrationTimeout)
	defer timer.Stop()

	select {
	case <-s.registered:
		return nil
	case <-s.done:
		if s.err == nil {
			return fmt.Errorf("registration: %w", io.EOF)
		}
		return fmt.Errorf("registration: %w", s.err)
	case <-timer.C:
		s.stop()
		return fmt.Errorf("registration: no welcome within %s", m.cfg.RegistrationTimeout)
	case <-ctx.Done():
		s.stop()
		return backoff.Permanent(ctx.Err())
	}
}

func (m *Manager) handler(s *session) func(*irc.Client, *irc.Message) {
	return func(_ *irc.Client, msg *irc.Message) {
		switch msg.Command {
		case "001":
			s.regOnce.Do(func() { close(s.registered) })
		case "ERROR":
			m.logger.Warn("server error", "message", msg.Trailing())
		case "433":
			m.logger.Warn("nickname in use", "nickname", m.cfg.Nickname)
		}
	}
}

func (s *session) stop() {
	s.cancel()
	_ = s.conn.Close()
	<-s.done
}

// joinAndAuthenticate joins the channel, then runs the post-connect hook.
func (m *Manager) joinAndAuthenticate() error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return errors.New("connection lost during registration")
	}

	if err := m.write(s, &irc.Message{Command: "JOIN", Params: []string{m.cfg.Channel}}); err != nil {
		return fmt.Errorf("join %s: %w", m.cfg.Channel, err)
	}
	if !m.advance(s, Connected) {
		return errors.New("connection lost while joining")
	}

	for _, msg := range m.postConnect() {
		if err := m.write(s, msg); err != nil {
			return fmt.Errorf("post-connect %s: %w", msg.Command, err)
		}
	}
	if !m.advance(s, PostAuth) {
		return errors.New("connection lost during authentication")
	}
	return nil
}

// postConnect builds the MODE and NickServ commands sent after registration.
func (m *Manager) postConnect() []*irc.Message {
	var out []*irc.Message
	if m.cfg.UserModes != "" {
		out = append(out, &irc.Message{Command: "MODE", Params: []string{m.cfg.Nickname, m.cfg.UserModes}})
	}

	ns := m.cfg.NickServ
	if !ns.Enabled {
		return out
	}
	if fields := strings.Fields(ns.Command); len(fields) > 0 {
		params := append([]string{}, fields[1:]...)
		if ns.Username != "" {
			params = append(params, ns.Username)
		}
		params = append(params, ns.Password)
		return append(out, &irc.Message{Command: strings.ToUpper(fields[0]), Params: params})
	}

	identify := "IDENTIFY "
	if ns.Username != "" {
		identify += ns.Username + " "
	}
	return append(out, &irc.Message{Command: "PRIVMSG", Params: []string{"NickServ", identify + ns.Password}})
}

// Send writes text to channel as one PRIVMSG per line. Lines too long for
// the wire are split into several messages.
func (m *Manager) Send(channel, text string) error {
	m.mu.Lock()
	s, state := m.sess, m.state
	m.mu.Unlock()
	if s == nil || !state.CanSend() {
		return ErrNotConnected
	}

	limit := m.chunkLength(channel)
	for _, line := range splitLines(text) {
		for _, chunk := range splitLength(line, limit) {
			if err := m.write(s, &irc.Message{Command: "PRIVMSG", Params: []string{channel, chunk}}); err != nil {
				return fmt.Errorf("%w: %w", ErrNotConnected, err)
			}
		}
	}
	return nil
}

// chunkLength is the longest PRIVMSG text to channel that still fits in one
// line once the server prepends ":nick!user@host ".
func (m *Manager) chunkLength(channel string) int {
	overhead := len("PRIVMSG ") + len(channel) + len(" :") + len("\r\n")
	prefix := len(":") + len(m.cfg.Nickname) + len("!") + len(m.cfg.Username) + len("@") + maxHostLength + len(" ")
	return max(maxLineLength-overhead-prefix, minChunkLength)
}

// Close tears down the connection, if any, and leaves the Manager
// Disconnected. A Connect still in progress is cancelled and has returned
// by the time Close does. It is safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, connecting, s := m.cancelConnect, m.connecting, m.sess
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		if s != nil {
			s.stop()
		}
		<-connecting
	}

	m.mu.Lock()
	s = m.sess
	m.sess = nil
	m.mu.Unlock()

	if s != nil {
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = m.write(s, &irc.Message{Command: "QUIT", Params: []string{"shutting down"}})
		s.stop()
	}
	m.setState(Disconnected)
}

// dropSession stops the current session without saying goodbye.
func (m *Manager) dropSession() {
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	m.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

func (m *Manager) write(s *session, msg *irc.Message) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return s.client.WriteMessage(msg)
}

// advance moves to next only while s is still the live session.
func (m *Manager) advance(s *session, next State) bool {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.mu.Unlock()
	m.notify(next)
	return true
}

func (m *Manager) sessionEnded(s *session) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	prev := m.state
	if prev == Connecting {
		// Connect owns the state while attempts are in flight.
		m.mu.Unlock()
		return
	}
	m.state = Disconnected
	m.mu.Unlock()

	m.logger.Warn("connection lost", "previous_state", prev.String(), "error", s.err)
	m.notify(Disconnected)
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	changed := m.state != next
	m.state = next
	m.mu.Unlock()
	if changed {
		m.notify(next)
	}
}

func (m *Manager) notify(state State) {
	if m.onState != nil {
		m.onState(state)
	}
}

func (m *Manager) dialNetwork(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if !m.cfg.Secure {
		return d.DialContext(ctx, "tcp", m.cfg.HostPort())
	}
	policy := certPolicy{
		serverName:       m.cfg.Address,
		acceptExpired:    m.cfg.AcceptExpired,
		acceptSelfSigned: m.cfg.AcceptSelfSigned,
	}
	td := &tls.Dialer{NetDialer: d, Config: policy.tlsConfig()}
	return td.DialContext(ctx, "tcp", m.cfg.HostPort())
}

// splitLines breaks text on CR/LF so no line can smuggle extra commands.
func splitLines(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool { return r == '\r' || r == '\n' })
	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}

// splitLength cuts line into pieces of at most limit bytes, preferring the
// last space in the second half of each piece and never splitting a rune.
func splitLength(line string, limit int) []string {
	var out []string
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if i := strings.LastIndexByte(line[:cut], ' '); i > limit/2 {
			out = append(out, line[:i])
			line = line[i+1:]
			continue
		}
		out = append(out, line[:cut])
		line = line[cut:]
	}
	return append(out, line)
}
