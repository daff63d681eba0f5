// Package rcontest provides a scriptable in-process RCON server for
// exercising clients over loopback TCP.
package rcontest

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/1xyz/coolrcon/rcon/core"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultSeed is the challenge seed sent by Handshake
	DefaultSeed = "0123456789abcdef"

	MsgAuthFailed = "Authentication failed"
)

var (
	// ErrBadLogin - the peer sent something other than a login command
	ErrBadLogin = errors.New("expected a login command")

	// ErrServerClosed - Accept was called on a closed server
	ErrServerClosed = errors.New("server closed")
)

// HandlerFunc returns the response text for one command. The
// terminator is appended by the server.
type HandlerFunc func(cmd string) string

// Server is a fake RCON endpoint. With a handler every accepted peer is
// served automatically; without one peers are handed to the test via
// Accept for manual scripting.
type Server struct {
	Password string
	Seed     string

	handler  HandlerFunc
	listener net.Listener
	peers    chan *Peer
	quit     chan struct{}

	mu      sync.Mutex
	accepts int
	all     []*Peer
	wg      sync.WaitGroup
	closed  bool
}

func NewServer(password string, handler HandlerFunc) (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("rcontest: listen err=%w", err)
	}

	s := &Server{
		Password: password,
		Seed:     DefaultSeed,
		handler:  handler,
		listener: l,
		peers:    make(chan *Peer, 16),
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// Accepts returns the number of connections accepted so far
func (s *Server) Accepts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepts
}

// Accept returns the next connected peer. Only meaningful when the
// server was created without a handler.
func (s *Server) Accept() (*Peer, error) {
	p, ok := <-s.peers
	if !ok {
		return nil, ErrServerClosed
	}
	return p, nil
}

// DropAll closes every peer connection accepted so far
func (s *Server) DropAll() {
	s.mu.Lock()
	peers := append([]*Peer(nil), s.all...)
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil {
		log.Errorf("rcontest: listener.Close err=%v", err)
	}
	s.DropAll()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer close(s.peers)
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}

		p := newPeer(nc)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			p.Close()
			continue
		}
		s.accepts++
		s.all = append(s.all, p)
		s.mu.Unlock()

		if s.handler == nil {
			select {
			case s.peers <- p:
			case <-s.quit:
				p.Close()
				return
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(p)
		}()
	}
}

func (s *Server) serve(p *Peer) {
	ctxLog := log.WithFields(log.Fields{"method": "rcontest.serve", "peer": p.RemoteAddr()})
	defer p.Close()

	ok, err := p.Handshake(s.Seed, s.Password)
	if err != nil || !ok {
		ctxLog.Debugf("handshake ok=%v err=%v", ok, err)
		return
	}

	for {
		cmd, err := p.ReadCommand()
		if err != nil {
			return
		}
		if err := p.WriteFrame(s.handler(cmd)); err != nil {
			return
		}
	}
}

// Peer is the server side of one client connection
type Peer struct {
	nc     net.Conn
	reader *bufio.Reader
	once   sync.Once
}

func newPeer(nc net.Conn) *Peer {
	return &Peer{nc: nc, reader: bufio.NewReader(nc)}
}

func (p *Peer) RemoteAddr() string {
	return p.nc.RemoteAddr().String()
}

// SendChallenge writes the digest seed challenge frame
func (p *Peer) SendChallenge(seed string) error {
	return p.Write(core.ChallengePrefix + seed + "\n\n")
}

// ReadLogin reads the next command and returns the hash it carries
func (p *Peer) ReadLogin() (string, error) {
	cmd, err := p.ReadCommand()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(cmd, "login ") {
		return "", ErrBadLogin
	}
	return strings.TrimPrefix(cmd, "login "), nil
}

// Handshake runs the server side of the login exchange and reports
// whether the client presented the right hash.
func (p *Peer) Handshake(seed, password string) (bool, error) {
	if err := p.SendChallenge(seed); err != nil {
		return false, err
	}

	hash, err := p.ReadLogin()
	if err != nil {
		return false, err
	}

	if hash != core.LoginHash(seed, password) {
		return false, p.WriteFrame(MsgAuthFailed)
	}
	return true, p.WriteFrame(core.MsgAuthSuccess)
}

// ReadCommand reads one framed command and returns its text
func (p *Peer) ReadCommand() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	line = strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(line, string(core.FrameStart)) {
		return "", fmt.Errorf("rcontest: frame without start byte: %q", line)
	}
	return line[1:], nil
}

// WriteFrame writes text followed by the terminator
func (p *Peer) WriteFrame(text string) error {
	return p.Write(text + string(core.Terminator))
}

// Write sends raw bytes
func (p *Peer) Write(raw string) error {
	_, err := p.nc.Write([]byte(raw))
	return err
}

func (p *Peer) Close() {
	p.once.Do(func() {
		if err := p.nc.Close(); err != nil {
			log.Debugf("rcontest: peer close err=%v", err)
		}
	})
}
