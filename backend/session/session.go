// Package session implements the single encrypted connection to the Trello API.
//
// A Session resolves the host, connects, and completes a TLS handshake once at
// construction. Each Exchange writes one HTTP/1.1 request and reads the whole
// response before returning, so at most one request is ever in flight. When
// the connection breaks or the server asks to close it, the next Exchange dials
// again; a failed request is never re-sent.
package session

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"iroha/backend"
	"iroha/internal/utils"
)

// Defaults applied to zero Config fields.
const (
	DefaultHost      = "api.trello.com"
	DefaultPort      = 443
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "iroha"
)

// Secret is the key/token pair appended to every request target.
type Secret struct {
	Key   string
	Token string
}

// Complete reports whether both halves are present.
func (s Secret) Complete() bool {
	return strings.TrimSpace(s.Key) != "" && strings.TrimSpace(s.Token) != ""
}

// Query formats the secret as "key=<k>&token=<t>".
func (s Secret) Query() string {
	return "key=" + url.QueryEscape(s.Key) + "&token=" + url.QueryEscape(s.Token)
}

// String never reveals the secret.
func (s Secret) String() string {
	return "Secret{REDACTED}"
}

// Config holds session configuration.
type Config struct {
	Host      string
	Port      int
	Timeout   time.Duration  // bounds connect+handshake and each exchange
	RootCAs   *x509.CertPool // nil uses the system pool
	UserAgent string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Session is one TLS connection to the API. It is not safe for concurrent use.
type Session struct {
	cfg    Config
	secret string
	conn   *tls.Conn
	reader *bufio.Reader
	closed bool
}

// Dial validates the secret and opens the connection.
// A missing key or token yields an error matching utils.ErrConfigMissing.
func Dial(ctx context.Context, cfg Config, secret Secret) (*Session, error) {
	if !secret.Complete() {
		return nil, utils.ErrCredentialsNotFound()
	}
	s := &Session{
		cfg:    cfg.withDefaults(),
		secret: secret.Query(),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Connected reports whether a live connection is held.
func (s *Session) Connected() bool {
	return s.conn != nil
}

// connect resolves, dials and handshakes, replacing any previous connection.
func (s *Session) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	host := s.cfg.Host
	utils.Debugf("Resolving %s", host)
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return &utils.TransportError{Op: "resolve", Err: err}
	}

	var dialer net.Dialer
	var raw net.Conn
	port := strconv.Itoa(s.cfg.Port)
	for _, addr := range addrs {
		raw, err = dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			break
		}
		utils.Debugf("Connect to %s failed: %v", addr, err)
	}
	if raw == nil {
		return &utils.TransportError{Op: "connect", Err: err}
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
		RootCAs:    s.cfg.RootCAs,
	})
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return &utils.TransportError{Op: "handshake", Err: err}
	}

	state := conn.ConnectionState()
	utils.Debugf("Connected to %s (%s, %s)", raw.RemoteAddr(), tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))

	s.conn = conn
	s.reader = bufio.NewReader(conn)
	return nil
}

// drop discards the current connection without a graceful close.
func (s *Session) drop() {
	if s.conn != nil {
		_ = s.conn.NetConn().Close()
	}
	s.conn = nil
	s.reader = nil
}

// hostHeader omits the port when it is the HTTPS default.
func (s *Session) hostHeader() string {
	if s.cfg.Port == DefaultPort {
		return s.cfg.Host
	}
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// withSecret appends the secret with '?' or '&' depending on whether target already has a query.
func withSecret(target, secret string) string {
	if strings.Contains(target, "?") {
		return target + "&" + secret
	}
	return target + "?" + secret
}

// Exchange sends method + target and reads the complete response.
func (s *Session) Exchange(ctx context.Context, method, target string) (*backend.Response, error) {
	if s.closed {
		return nil, &utils.TransportError{Op: "write", Err: net.ErrClosed}
	}
	if !s.Connected() {
		utils.Debugf("Reconnecting to %s", s.cfg.Host)
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}

	requestID := uuid.New().String()
	start := time.Now()

	u, err := url.ParseRequestURI(withSecret(target, s.secret))
	if err != nil {
		return nil, fmt.Errorf("invalid request target %q: %w", target, err)
	}
	req := &http.Request{
		Method:     method,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       s.hostHeader(),
		Header: http.Header{
			"User-Agent": {s.cfg.UserAgent},
			"Accept":     {"application/json"},
			"Connection": {"keep-alive"},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	conn := s.conn
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	utils.Debugf("[%s] %s %s", requestID, method, target)

	w := bufio.NewWriter(conn)
	err = req.Write(w)
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		s.drop()
		return nil, &utils.TransportError{Op: "write", Err: contextCause(ctx, err)}
	}

	resp, err := http.ReadResponse(s.reader, req)
	if err != nil {
		s.drop()
		return nil, &utils.TransportError{Op: "read", Err: contextCause(ctx, err)}
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		s.drop()
		return nil, &utils.TransportError{Op: "read", Err: contextCause(ctx, err)}
	}

	if resp.Close {
		utils.Debugf("[%s] server closed the connection", requestID)
		s.drop()
	} else {
		_ = conn.SetDeadline(time.Time{})
	}

	utils.Debugf("[%s] %d %s (%d bytes, %s)", requestID, resp.StatusCode, method, len(body), time.Since(start).Round(time.Millisecond))

	return &backend.Response{
		StatusCode: resp.StatusCode,
		Reason:     strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// contextCause prefers the context error over the deadline error it caused.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ctxErr
		}
	}
	return err
}

// Close sends close-notify and closes the socket. Errors are ignored.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(time.Second))
		_ = s.conn.Close()
		utils.Debugf("Session to %s closed", s.cfg.Host)
	}
	s.conn = nil
	s.reader = nil
	return nil
}

var _ backend.Exchanger = (*Session)(nil)
