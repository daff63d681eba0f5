package proto

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/1xyz/coolrcon/rcon/core"
	"github.com/armon/go-metrics"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// The size of a read buffer
const readBufferSizeBytes = 4 * 1024

// Dialer opens the transport stream to the remote endpoint
type Dialer func(ctx context.Context, network, address string) (net.Conn, error)

// Observer receives the connection signals. Callbacks run on the
// goroutine that caused the transition, with no Conn lock held and in
// the order the transitions happened. They may read the Conn state;
// Connect, Send and Close must be called from another goroutine.
type Observer interface {
	OnAuthenticated(c *Conn, msg string)
	OnError(c *Conn, err error)
	OnClose(c *Conn, err error)
}

type Options struct {
	// Dialer used by Connect; defaults to net.Dialer.DialContext
	Dialer Dialer

	// Upper bound on a partially received frame. Zero means unlimited
	MaxFrameBytes int
}

type Option func(*Options)

func WithDialer(d Dialer) Option {
	return func(o *Options) { o.Dialer = d }
}

func WithMaxFrameBytes(n int) Option {
	return func(o *Options) { o.MaxFrameBytes = n }
}

type eventKind int

const (
	evAuthenticated eventKind = iota
	evError
	evClose
)

type event struct {
	kind eventKind
	msg  string
	err  error
}

// session spans one transport lifetime, from Connect to teardown
type session struct {
	nc net.Conn

	// closed once the handshake succeeds
	ready chan struct{}

	// closed on teardown, err is set before
	done chan struct{}
	err  error
}

func newSession() *session {
	return &session{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Conn runs the RCON protocol state machine over one transport stream:
// challenge, login, then pipelined commands whose responses are paired
// with requests strictly in send order.
type Conn struct {
	// unique identifier, used in log fields
	ID string

	opts Options

	// serialises queue push + frame write pairs; taken before mu
	writeMu sync.Mutex

	// dispatchCond admits one batch of observer callbacks at a time, in
	// ticket order. serving is guarded by dispatchMu
	dispatchMu   sync.Mutex
	dispatchCond *sync.Cond
	serving      uint64

	// guards every field below
	mu sync.Mutex

	// Current state of this connection
	state ConnState

	authenticated bool

	// held only between Connect and the end of the handshake
	password string

	// requests awaiting a response, in send order
	queue []*pendingRequest

	// bytes of the frame currently being received
	buffer []byte

	// login frame to be written once mu is released
	login []byte

	sess       *session
	remoteAddr string
	observers  []Observer
	events     []event

	// ticket handed to the next batch of events
	nextTicket uint64
}

func NewConn(opts ...Option) *Conn {
	o := Options{
		Dialer: (&net.Dialer{}).DialContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Conn{
		ID:    uuid.New().URN(),
		opts:  o,
		state: Idle,
	}
	c.dispatchCond = sync.NewCond(&c.dispatchMu)
	return c
}

// AddObserver registers o for the authenticated, error and close signals
func (c *Conn) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticated reports whether commands can be sent right now
func (c *Conn) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated && c.state == Authenticated
}

// Pending returns the number of requests awaiting a response
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}

// Connect dials host:port and performs the challenge/login handshake.
// It blocks until the connection is authenticated or torn down, and
// returns the terminal error in the latter case. ctx bounds the dial
// and the handshake; cancelling it before authentication destroys the
// connection. Connect is valid on an Idle or Closed connection only.
func (c *Conn) Connect(ctx context.Context, host string, port int, password string) error {
	ctxLog := log.WithFields(log.Fields{"method": "Conn.Connect", "connID": c.ID})
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	c.mu.Lock()
	if c.state != Idle && c.state != Closed {
		st := c.state
		c.mu.Unlock()
		return core.NewError(core.NotReady, fmt.Sprintf("connect called in state %v", st), nil)
	}
	sess := newSession()
	c.reset(sess, password)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return c.abortHandshake(sess, err)
	}

	metrics.IncrCounter([]string{"rcon", "conn", "connect"}, 1)
	ctxLog.Debugf("dialing addr=%v", addr)
	nc, err := c.opts.Dialer(ctx, "tcp", addr)
	if err != nil {
		ctxLog.Errorf("dial addr=%v err=%v", addr, err)
		c.teardown(sess, core.NewError(core.Unknown, "dial "+addr, err))
		<-sess.done
		return sess.err
	}

	c.mu.Lock()
	if c.sess != sess || c.state != Connecting {
		c.mu.Unlock()
		if err := nc.Close(); err != nil {
			ctxLog.Errorf("nc.Close err=%v", err)
		}
		<-sess.done
		return sess.err
	}
	sess.nc = nc
	c.remoteAddr = nc.RemoteAddr().String()
	c.state = AwaitingChallenge
	c.mu.Unlock()

	ctxLog.Debugf("connected to %v, awaiting challenge", nc.RemoteAddr())
	go c.readLoop(sess)

	select {
	case <-sess.ready:
		return nil
	case <-sess.done:
		return sess.err
	case <-ctx.Done():
		return c.abortHandshake(sess, ctx.Err())
	}
}

// reset reinitialises every transient field for a fresh session
func (c *Conn) reset(sess *session, password string) {
	c.sess = sess
	c.state = Connecting
	c.authenticated = false
	c.password = password
	c.queue = nil
	c.buffer = nil
	c.login = nil
	c.remoteAddr = ""
}

func (c *Conn) abortHandshake(sess *session, cause error) error {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		<-sess.done
		return sess.err
	}
	if c.state == Authenticated {
		c.mu.Unlock()
		return nil
	}
	log.WithFields(log.Fields{"method": "Conn.abortHandshake", "connID": c.ID}).
		Warnf("handshake aborted in state %v: %v", c.state, cause)
	c.destroyLocked(core.NewError(core.Unknown, "handshake aborted", cause))
	c.unlockAndDispatch()
	return sess.err
}

// Send writes cmd and waits for its response. See SendContext.
func (c *Conn) Send(cmd string) (string, error) {
	return c.SendContext(context.Background(), cmd)
}

// SendContext writes cmd and waits for the matching response, which is
// classified before being returned. Calling it on a connection that is
// not authenticated destroys the connection and fails with NotReady.
// Cancelling ctx abandons the wait only: the request stays queued so
// that later responses still pair with the right requests.
func (c *Conn) SendContext(ctx context.Context, cmd string) (string, error) {
	defer metrics.MeasureSince([]string{"rcon", "conn", "send"}, time.Now())
	ctxLog := log.WithFields(log.Fields{"method": "Conn.SendContext", "connID": c.ID})

	c.writeMu.Lock()
	c.mu.Lock()
	if c.state != Authenticated || !c.authenticated {
		ctxLog.Warnf("send called in state %v, closing connection", c.state)
		c.destroyLocked(nil)
		c.writeMu.Unlock()
		c.unlockAndDispatch()
		return "", core.NewError(core.NotReady, "Not yet connected and authenticated", nil)
	}

	p := newPendingRequest(cmd)
	c.queue = append(c.queue, p)
	sess := c.sess
	c.mu.Unlock()

	_, err := sess.nc.Write(core.FormatCommand(cmd))
	c.writeMu.Unlock()
	if err != nil {
		ctxLog.Errorf("write err=%v", err)
		c.teardown(sess, core.NewError(core.Unknown, "write failed", err))
	}

	select {
	case r := <-p.done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the connection down, rejecting every pending request
// with Closed. It is safe to call in any state and more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.destroyLocked(nil)
	c.unlockAndDispatch()
	return nil
}

func (c *Conn) readLoop(sess *session) {
	ctxLog := log.WithFields(log.Fields{"method": "Conn.readLoop", "connID": c.ID})
	b := make([]byte, readBufferSizeBytes)
	for {
		n, err := sess.nc.Read(b)
		if n > 0 {
			c.onData(sess, b[:n])
		}

		if err != nil {
			if err == io.EOF {
				ctxLog.Debugf("remote closed the connection")
				c.teardown(sess, nil)
			} else {
				c.teardown(sess, core.NewError(core.Unknown, "read failed", err))
			}
			return
		}
	}
}

func (c *Conn) onData(sess *session, data []byte) {
	c.mu.Lock()
	if c.sess != sess || c.state == Closed {
		c.mu.Unlock()
		return
	}

	c.buffer = append(c.buffer, data...)
	c.wantChallenge()
	c.wantAuthResult()
	c.wantResponse()
	c.checkFrameSize()

	login := c.login
	c.login = nil
	c.unlockAndDispatch()

	if login != nil {
		c.writeMu.Lock()
		_, err := sess.nc.Write(login)
		c.writeMu.Unlock()
		if err != nil {
			c.teardown(sess, core.NewError(core.Unknown, "write login failed", err))
		}
	}
}

func (c *Conn) wantChallenge() {
	if c.state != AwaitingChallenge {
		return
	}

	ctxLog := log.WithFields(log.Fields{"method": "Conn.wantChallenge", "connID": c.ID})
	seed, _, ok, err := core.ParseChallenge(c.buffer)
	if !ok {
		return
	}
	if err != nil {
		ctxLog.Errorf("bad challenge from %v: %q", c.remoteAddr, c.buffer)
		c.destroyLocked(core.NewError(core.Unknown,
			fmt.Sprintf("Unexpected challenge from %s: %q", c.remoteAddr, c.buffer), err))
		return
	}

	c.login = core.FormatLogin(core.LoginHash(seed, c.password))
	c.buffer = nil
	c.state = Authenticating
	ctxLog.Debugf("challenge received, sending login")
}

func (c *Conn) wantAuthResult() {
	if c.state != Authenticating {
		return
	}

	ctxLog := log.WithFields(log.Fields{"method": "Conn.wantAuthResult", "connID": c.ID})
	frame, rest, ok := core.SplitFrame(c.buffer)
	if !ok {
		return
	}

	c.buffer = nil
	msg := string(frame)
	if !core.IsAuthSuccess(msg) {
		metrics.IncrCounter([]string{"rcon", "conn", "auth", "failed"}, 1)
		ctxLog.Errorf("authentication failed at %v", c.remoteAddr)
		c.destroyLocked(core.NewError(core.AuthenticationFailed,
			fmt.Sprintf(`Expected "%s" from %s but received "%s"`, core.MsgAuthSuccess, c.remoteAddr, msg), nil))
		return
	}

	if len(rest) > 0 {
		ctxLog.Warnf("discarding %d bytes received after the auth result", len(rest))
	}

	c.password = ""
	c.authenticated = true
	c.state = Authenticated
	close(c.sess.ready)
	c.events = append(c.events, event{kind: evAuthenticated, msg: msg})
	ctxLog.Debugf("authenticated at %v", c.remoteAddr)
}

func (c *Conn) wantResponse() {
	if c.state != Authenticated {
		return
	}

	ctxLog := log.WithFields(log.Fields{"method": "Conn.wantResponse", "connID": c.ID})
	for c.state == Authenticated && len(c.buffer) > 0 {
		if len(c.queue) == 0 {
			ctxLog.Errorf("unrequested data from %v", c.remoteAddr)
			c.destroyLocked(core.NewError(core.Unrequested,
				fmt.Sprintf("Unrequested data received from server: %q", c.buffer), nil))
			return
		}

		frame, rest, ok := core.SplitFrame(c.buffer)
		if !ok {
			return
		}
		c.buffer = rest

		p := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]

		text, err := core.Classify(string(frame))
		if err != nil {
			metrics.IncrCounter([]string{"rcon", "conn", "response", strings.ToLower(core.CodeOf(err).String())}, 1)
			ctxLog.Debugf("command %q failed: %v", p.cmd, err)
			p.reject(err)
		} else {
			metrics.IncrCounter([]string{"rcon", "conn", "response", "ok"}, 1)
			p.resolve(text)
		}
		metrics.MeasureSince([]string{"rcon", "conn", "roundtrip"}, p.sentAt)
	}
}

func (c *Conn) checkFrameSize() {
	if c.state == Closed || c.opts.MaxFrameBytes <= 0 {
		return
	}

	if len(c.buffer) > c.opts.MaxFrameBytes {
		log.WithFields(log.Fields{"method": "Conn.checkFrameSize", "connID": c.ID}).
			Errorf("partial frame of %d bytes exceeds limit %d", len(c.buffer), c.opts.MaxFrameBytes)
		c.destroyLocked(core.NewError(core.Unknown,
			fmt.Sprintf("frame exceeds %d bytes in state %v", c.opts.MaxFrameBytes, c.state), nil))
	}
}

// teardown destroys the connection if sess is still the current session
func (c *Conn) teardown(sess *session, err error) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.destroyLocked(err)
	c.unlockAndDispatch()
}

// destroyLocked moves the connection to Closed. It clears the transient
// fields, rejects every queued request with Closed, closes the transport
// and queues the error and close signals. Must hold mu.
func (c *Conn) destroyLocked(err error) {
	if c.state == Closed {
		return
	}

	ctxLog := log.WithFields(log.Fields{"method": "Conn.destroy", "connID": c.ID})
	ctxLog.Debugf("closing in state %v err=%v", c.state, err)
	c.state = Closed
	c.authenticated = false
	c.password = ""
	c.buffer = nil
	c.login = nil

	if len(c.queue) > 0 {
		closedErr := core.NewError(core.Closed, "Connection closed before response", err)
		for _, p := range c.queue {
			p.reject(closedErr)
		}
		c.queue = nil
	}

	if sess := c.sess; sess != nil {
		if sess.nc != nil {
			if err := sess.nc.Close(); err != nil {
				ctxLog.Debugf("nc.Close err=%v", err)
			}
		}
		if err != nil {
			sess.err = err
		} else {
			sess.err = core.NewError(core.Closed, "connection closed", nil)
		}
		close(sess.done)
	}

	metrics.IncrCounter([]string{"rcon", "conn", "closed"}, 1)
	if err != nil {
		c.events = append(c.events, event{kind: evError, err: err})
	}
	c.events = append(c.events, event{kind: evClose, err: err})
}

// unlockAndDispatch releases mu and delivers the queued signals. Each
// batch takes a ticket while mu is held and waits for its turn after
// mu is released, so callbacks keep transition order without holding
// any lock the accessors need.
func (c *Conn) unlockAndDispatch() {
	events := c.events
	c.events = nil
	if len(events) == 0 {
		c.mu.Unlock()
		return
	}

	observers := append([]Observer(nil), c.observers...)
	ticket := c.nextTicket
	c.nextTicket++
	c.mu.Unlock()

	c.dispatchMu.Lock()
	for c.serving != ticket {
		c.dispatchCond.Wait()
	}
	c.dispatchMu.Unlock()

	defer func() {
		c.dispatchMu.Lock()
		c.serving++
		c.dispatchCond.Broadcast()
		c.dispatchMu.Unlock()
	}()

	for _, ev := range events {
		for _, o := range observers {
			switch ev.kind {
			case evAuthenticated:
				o.OnAuthenticated(c, ev.msg)
			case evError:
				o.OnError(c, ev.err)
			case evClose:
				o.OnClose(c, ev.err)
			}
		}
	}
}

func (c *Conn) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Conn: %v State: %v remoteAddr: %v pending: %d",
		c.ID, c.state, c.remoteAddr, len(c.queue))
}
