// Package control implements the synchronous command channel to the
// DBBC3 control software: a persistent TCP connection carrying
// NUL-terminated ASCII commands with newline-delimited replies.
package control

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
	"github.com/vlbitools/dbbc3/dialect"
	"github.com/vlbitools/dbbc3/log2"
)

const (
	DefaultPort           = 4000
	DefaultNumBoards      = 8
	DefaultConnectTimeout = 120 * time.Second

	// The protocol has no framing beyond the NUL terminator of a
	// request: one write is answered by exactly one read of at most
	// respBufSize bytes. Longer replies are truncated on the wire;
	// this is a hard protocol limit.
	respBufSize = 1024
)

type Options struct {
	Host      string
	Port      int // default 4000
	NumBoards int // default 8

	// Expected firmware mode/major version. When set, the handshake
	// fails if the device reports something else.
	Mode    string
	Version string

	ConnectTimeout time.Duration // default 120s
	ReadTimeout    time.Duration // optional per-read deadline, 0 = none

	Registry *dialect.Registry // default dialect.Builtin()
	Log      *log2.Log
}

// ConnError is a transport-level failure: connect, send or receive.
// Fatal to the session; the caller decides whether to retry with a new
// session.
type ConnError struct {
	Host  string
	Port  int
	Cause error
}

func (self *ConnError) Error() string {
	if self.Cause == nil {
		return fmt.Sprintf("communication error with %s port %d", self.Host, self.Port)
	}
	return fmt.Sprintf("communication error with %s port %d: %s", self.Host, self.Port, self.Cause)
}

func (self *ConnError) Unwrap() error { return self.Cause }

func IsConn(err error) bool {
	_, ok := errors.Cause(err).(*ConnError)
	return ok
}

// Session owns at most one live connection to the device. All exchanges
// are serialized on an internal mutex: the wire protocol has no request
// identifiers, so a second command before the first reply corrupts both.
type Session struct {
	opt Options
	log *log2.Log

	mu           sync.Mutex
	conn         net.Conn
	d            *dialect.Dialect
	version      *dialect.VersionInfo
	lastCommand  string
	lastResponse string

	// test hook
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

func NewSession(opt Options) *Session {
	if opt.Port == 0 {
		opt.Port = DefaultPort
	}
	if opt.NumBoards == 0 {
		opt.NumBoards = DefaultNumBoards
	}
	if opt.ConnectTimeout == 0 {
		opt.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.Registry == nil {
		opt.Registry = dialect.Builtin()
	}
	return &Session{
		opt: opt,
		log: opt.Log,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// Connect opens the connection and performs the handshake: query the
// device version, check it against the configured expectation and bind
// the matching dialect. Valid only from the unconnected state.
func (self *Session) Connect() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.conn != nil {
		return errors.Errorf("already connected to %s:%d", self.opt.Host, self.opt.Port)
	}

	addr := net.JoinHostPort(self.opt.Host, strconv.Itoa(self.opt.Port))
	conn, err := self.dial(addr, self.opt.ConnectTimeout)
	if err != nil {
		return &ConnError{Host: self.opt.Host, Port: self.opt.Port, Cause: err}
	}
	self.conn = conn

	if err := self.handshake(); err != nil {
		self.closeLocked()
		return errors.Trace(err)
	}
	return nil
}

// handshake queries the device version with the minimal dialect, then
// resolves the full dialect for the reported mode. Called with the lock
// held.
func (self *Session) handshake() error {
	v, err := dialect.Default().Ops.Version(txFunc(self.exchange))
	if err != nil {
		return errors.Annotate(err, "handshake")
	}
	if self.opt.Mode != "" && v.Mode != self.opt.Mode {
		return errors.Errorf("configured mode %s does not match loaded firmware %s", self.opt.Mode, v.Mode)
	}
	if self.opt.Version != "" && self.opt.Version != strconv.Itoa(v.Major) {
		return errors.Errorf("configured version %s does not match loaded firmware %d", self.opt.Version, v.Major)
	}

	requested := self.opt.Version
	if requested == "" {
		requested = strconv.Itoa(v.Major)
	}
	d, err := self.opt.Registry.Resolve(v.Mode, requested)
	if err != nil {
		return errors.Annotate(err, "handshake")
	}
	self.d = d
	self.version = v
	self.log.Infof("control: %s:%d firmware %s %d (%s), dialect %s",
		self.opt.Host, self.opt.Port, v.Mode, v.Major, v.MinorString, d)
	return nil
}

// Disconnect releases the connection. Safe to call any number of times.
func (self *Session) Disconnect() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeLocked()
}

func (self *Session) closeLocked() error {
	if self.conn == nil {
		return nil
	}
	err := self.conn.Close()
	self.conn = nil
	self.d = nil
	return err
}

func (self *Session) Connected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.conn != nil
}

// Dialect returns the capability set bound at handshake, nil before.
func (self *Session) Dialect() *dialect.Dialect {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.d
}

// Caps lists the operations of the bound dialect, empty before
// Connect. Callers on the default fallback dialect should consult this
// before relying on mode-specific operations.
func (self *Session) Caps() []dialect.Op {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.d == nil {
		return nil
	}
	return self.d.SupportedOps()
}

// DeviceVersion returns the version reported during the handshake.
func (self *Session) DeviceVersion() *dialect.VersionInfo {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.version
}

// LastExchange returns the most recent command and raw response, for
// diagnostics after a ParseError.
func (self *Session) LastExchange() (command, response string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.lastCommand, self.lastResponse
}

// SendCommand performs one raw exchange. Prefer the typed operation
// methods; this is the escape hatch for commands the dialect does not
// model.
func (self *Session) SendCommand(cmd string) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.exchange(cmd)
}

// exchange writes cmd with a NUL terminator and performs the single
// blocking read. Called with the lock held.
func (self *Session) exchange(cmd string) (string, error) {
	if self.conn == nil {
		return "", &ConnError{Host: self.opt.Host, Port: self.opt.Port,
			Cause: errors.New("not connected")}
	}

	n, err := self.conn.Write(append([]byte(cmd), 0))
	if err != nil {
		return "", &ConnError{Host: self.opt.Host, Port: self.opt.Port, Cause: err}
	}
	if n <= 0 {
		return "", &ConnError{Host: self.opt.Host, Port: self.opt.Port,
			Cause: errors.Errorf("wrote %d bytes", n)}
	}

	if self.opt.ReadTimeout > 0 {
		_ = self.conn.SetReadDeadline(time.Now().Add(self.opt.ReadTimeout))
	}
	buf := make([]byte, respBufSize)
	n, err = self.conn.Read(buf)
	if err != nil {
		return "", &ConnError{Host: self.opt.Host, Port: self.opt.Port, Cause: err}
	}
	self.lastCommand = cmd
	self.lastResponse = string(buf[:n])
	self.log.Debugf("control: cmd=%q resp=%q", cmd, self.lastResponse)
	return self.lastResponse, nil
}

// ResolveBoard parses a caller-supplied board (number or letter)
// against this session's board count.
func (self *Session) ResolveBoard(input string) (board.ID, error) {
	return board.Parse(input, self.opt.NumBoards)
}

func (self *Session) checkBoard(b board.ID) error {
	if !b.Valid(self.opt.NumBoards) {
		return board.OutOfRangeError{Input: strconv.Itoa(int(b)), NumBoards: self.opt.NumBoards}
	}
	return nil
}

type txFunc func(string) (string, error)

func (self txFunc) SendCommand(cmd string) (string, error) { return self(cmd) }

// withDialect runs one dialect operation with the session lock held for
// the whole exchange sequence, so multi-command operations stay atomic.
func (self *Session) withDialect(op dialect.Op, f func(d *dialect.Dialect, t dialect.Transactor) error) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.d == nil {
		return errors.Errorf("not connected: no dialect bound")
	}
	if !self.d.Supports(op) {
		return dialect.UnsupportedOpError{Op: op, Dialect: self.d.String()}
	}
	return f(self.d, txFunc(self.exchange))
}
