package mail

import (
	"crypto/tls"
	"errors"
	"net"
	"net/smtp"
	"net/textproto"
	"sync"
	"time"
)

// TransportConfig configures the pooled SMTP transport.
type TransportConfig struct {
	Host     string
	Port     string
	Username string
	Password string

	// MaxConnections bounds how many concurrent *smtp.Client connections the
	// pool will open.
	MaxConnections int
	// MaxMessages recycles a connection after this many sends, even if it
	// would otherwise be reusable.
	MaxMessages int

	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration
}

// DefaultTransportConfig fills in the pool sizing and timeouts used when a
// caller leaves them unset.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxConnections:  10,
		MaxMessages:     50,
		ConnectTimeout:  15 * time.Second,
		GreetingTimeout: 10 * time.Second,
		SocketTimeout:   30 * time.Second,
	}
}

// ErrPoolTimeout is returned by Send when no connection became available
// within the caller's timeout.
var ErrPoolTimeout = errors.New("mail: timed out waiting for a pooled smtp connection")

// pooledConn wraps an *smtp.Client with its recycle countdown.
type pooledConn struct {
	client       *smtp.Client
	messagesSent int
}

// Transport is a pooled, recycling SMTP client, grounded on jordan-wright's
// email.Pool: a channel-backed free list, lazy connection creation up to
// MaxConnections, STARTTLS-if-offered on build, and reuse-or-discard on send
// error depending on the error's shape.
type Transport struct {
	addr string
	cfg  TransportConfig
	auth smtp.Auth

	mu      sync.Mutex
	created int

	ch     chan *pooledConn
	wakeCh chan struct{}
}

// NewTransport builds a Transport that dials cfg.Host:cfg.Port. Pool sizing
// and timeouts left at zero take their DefaultTransportConfig values.
func NewTransport(cfg TransportConfig) *Transport {
	def := DefaultTransportConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.GreetingTimeout <= 0 {
		cfg.GreetingTimeout = def.GreetingTimeout
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = def.SocketTimeout
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &Transport{
		addr:   net.JoinHostPort(cfg.Host, cfg.Port),
		cfg:    cfg,
		auth:   auth,
		ch:     make(chan *pooledConn, cfg.MaxConnections),
		wakeCh: make(chan struct{}, cfg.MaxConnections),
	}
}

func (t *Transport) get(timeout time.Duration) *pooledConn {
	select {
	case c := <-t.ch:
		return c
	default:
	}

	if t.tryIncrement() {
		t.spawn()
	}

	deadline := time.After(timeout)
	for {
		select {
		case c := <-t.ch:
			return c
		case <-t.wakeCh:
			if t.tryIncrement() {
				t.spawn()
			}
		case <-deadline:
			return nil
		}
	}
}

func (t *Transport) tryIncrement() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.created >= t.cfg.MaxConnections {
		return false
	}
	t.created++
	return true
}

func (t *Transport) decrement() {
	t.mu.Lock()
	t.created--
	t.mu.Unlock()
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

func (t *Transport) spawn() {
	go func() {
		c, err := t.dial()
		if err != nil {
			t.decrement()
			return
		}
		t.ch <- &pooledConn{client: c}
	}()
}

func (t *Transport) dial() (*smtp.Client, error) {
	conn, err := net.DialTimeout("tcp", t.addr, t.cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(timeNow().Add(t.cfg.GreetingTimeout))

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	onErr := func(err error) error {
		client.Quit()
		client.Close()
		return err
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsCfg); err != nil {
			return nil, onErr(err)
		}
	}

	if t.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(t.auth); err != nil {
				return nil, onErr(err)
			}
		}
	}

	return client, nil
}

// shouldReuse mirrors jordan-wright/email's classification: an SMTP-level
// error response (textproto.Error) leaves the connection usable; a protocol
// or transport-level error means the connection is suspect and is discarded.
func shouldReuse(err error) bool {
	switch err.(type) {
	case *textproto.Error:
		return true
	default:
		return false
	}
}

// SMTPCode extracts the response code from a textproto.Error, or 0 if err
// did not originate from an SMTP response.
func SMTPCode(err error) int {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	return 0
}

// Send submits one message over a pooled connection. from/to are bare
// addresses (no display name); raw is the complete RFC-5322 message
// including headers.
func (t *Transport) Send(from string, to []string, raw []byte) (err error) {
	pc := t.get(t.cfg.ConnectTimeout)
	if pc == nil {
		return ErrPoolTimeout
	}
	c := pc.client

	defer func() {
		if err != nil {
			if shouldReuse(err) && pc.messagesSent+1 < t.cfg.MaxMessages {
				c.Reset()
				pc.messagesSent++
				t.ch <- pc
			} else {
				t.decrement()
				c.Quit()
				c.Close()
			}
		} else {
			pc.messagesSent++
			if pc.messagesSent >= t.cfg.MaxMessages {
				t.decrement()
				c.Quit()
				c.Close()
			} else {
				t.ch <- pc
			}
		}
	}()

	if err = c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err = c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(raw); err != nil {
		return err
	}
	return w.Close()
}

// Close drains and closes every idle pooled connection. In-flight sends are
// unaffected.
func (t *Transport) Close() {
	for {
		select {
		case pc := <-t.ch:
			pc.client.Quit()
			pc.client.Close()
		default:
			return
		}
	}
}

var timeNow = time.Now
