package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/1xyz/coolrcon/rcon/core"
	"github.com/1xyz/coolrcon/rcon/proto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type Stage int

const (
	// No connection has been requested since construction or the last close
	Unconnected Stage = iota

	// A connect/handshake is in flight
	Connecting

	// The connection is authenticated
	Ready
)

func (s Stage) String() string {
	switch s {
	case Unconnected:
		return "Unconnected"
	case Connecting:
		return "Connecting"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// readiness is settled exactly once per connection generation
type readiness struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newReadiness() *readiness {
	return &readiness{done: make(chan struct{})}
}

func (r *readiness) settle(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

type Option func(*Client)

// WithConnectTimeout bounds the dial and handshake. Zero, the default,
// waits indefinitely.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithConnOptions passes options through to the underlying connection
func WithConnOptions(opts ...proto.Option) Option {
	return func(c *Client) { c.connOpts = append(c.connOpts, opts...) }
}

// Client defers connecting until the first Send and connects again on
// the next Send after the connection closes. It never reconnects on
// its own.
type Client struct {
	Host     string
	Port     int
	password string

	connectTimeout time.Duration
	connOpts       []proto.Option
	conn           *proto.Conn

	// held by a connect attempt for its whole duration and by Close
	connectMu sync.Mutex

	mu    sync.Mutex
	stage Stage
	ready *readiness

	// bumped by every connect request and by Close; a connect attempt
	// whose generation moved on never dials
	gen    uint64
	cancel context.CancelFunc
}

func NewClient(host string, port int, password string, opts ...Option) *Client {
	c := &Client{
		Host:     host,
		Port:     port,
		password: password,
		stage:    Unconnected,
		ready:    newReadiness(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.conn = proto.NewConn(c.connOpts...)
	c.conn.AddObserver(observer{c})
	return c
}

// Conn exposes the wrapped connection
func (c *Client) Conn() *proto.Conn {
	return c.conn
}

func (c *Client) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Send connects if needed, waits until the connection is authenticated
// and forwards cmd. ctx bounds this caller's wait only; it never
// cancels a connect shared with other callers.
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	if c.stage == Unconnected {
		c.stage = Connecting
		c.gen++
		connectCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.connect(connectCtx, c.gen)
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if ready.err != nil {
		return "", ready.err
	}
	return c.conn.SendContext(ctx, cmd)
}

// Close drops the connection and aborts a connect in flight, failing the
// callers waiting for it. The next Send reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	err := c.conn.Close()

	// a connect that never started leaves nothing to signal the waiters
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.stage != Unconnected {
		c.ready.settle(core.NewError(core.Closed, "client closed", nil))
		c.ready = newReadiness()
		c.stage = Unconnected
	}
	return err
}

func (c *Client) connect(ctx context.Context, gen uint64) {
	ctxLog := log.WithFields(log.Fields{"method": "Client.connect", "connID": c.conn.ID})
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		ctxLog.Debugf("connect generation %d superseded, not dialing", gen)
		return
	}

	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	ctxLog.Debugf("connecting to %v:%v", c.Host, c.Port)
	if err := c.conn.Connect(ctx, c.Host, c.Port, c.password); err != nil {
		ctxLog.Errorf("connect err=%v", err)
	}
}

// observer keeps the connection signal handlers off the Client API
type observer struct {
	c *Client
}

func (o observer) OnAuthenticated(conn *proto.Conn, msg string) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	o.c.stage = Ready
	o.c.ready.settle(nil)
}

// OnError fails the callers waiting for a connection that never got
// authenticated. Errors after authentication reach callers through
// their pending requests instead.
func (o observer) OnError(conn *proto.Conn, err error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	o.c.ready.settle(err)
}

func (o observer) OnClose(conn *proto.Conn, err error) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	o.c.ready.settle(core.NewError(core.Closed, "connection closed before authentication", err))
	o.c.ready = newReadiness()
	o.c.stage = Unconnected
}
