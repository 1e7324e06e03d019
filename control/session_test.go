package control

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlbitools/dbbc3/board"
	"github.com/vlbitools/dbbc3/dialect"
	"github.com/vlbitools/dbbc3/log2"
)

// scriptConn is a net.Conn replaying canned replies to NUL-terminated
// commands.
type scriptConn struct {
	t       testing.TB
	mu      sync.Mutex
	replies map[string]string
	pending   string
	sent      []string
	closed    bool
	writeZero bool
}

func newScriptConn(t testing.TB, replies map[string]string) *scriptConn {
	return &scriptConn{t: t, replies: replies}
}

func (c *scriptConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	if c.writeZero {
		return 0, nil
	}
	cmd := strings.TrimRight(string(p), "\x00")
	c.sent = append(c.sent, cmd)
	raw, ok := c.replies[cmd]
	if !ok {
		c.t.Fatalf("unexpected command %q", cmd)
	}
	c.pending = raw
	return len(p), nil
}

func (c *scriptConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	if c.pending == "" {
		return 0, io.EOF
	}
	n := copy(p, c.pending)
	c.pending = ""
	return n, nil
}

func (c *scriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptConn) LocalAddr() net.Addr              { return nil }
func (c *scriptConn) RemoteAddr() net.Addr             { return nil }
func (c *scriptConn) SetDeadline(time.Time) error      { return nil }
func (c *scriptConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptConn) SetWriteDeadline(time.Time) error { return nil }

const versionReplyDDC = "version/ DDC_V,124,October 01 2019;"

func testSession(t testing.TB, replies map[string]string, opt Options) (*Session, *scriptConn) {
	conn := newScriptConn(t, replies)
	opt.Host = "dbbc3"
	opt.Log = log2.NewTest(t, log2.LDebug)
	s := NewSession(opt)
	s.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		return conn, nil
	}
	return s, conn
}

func TestConnectHandshake(t *testing.T) {
	t.Parallel()

	s, conn := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	assert.True(t, s.Connected())
	assert.Equal(t, []string{"version"}, conn.sent)
	require.NotNil(t, s.Dialect())
	assert.Equal(t, "DDC_V_124", s.Dialect().String())
	v := s.DeviceVersion()
	require.NotNil(t, v)
	assert.Equal(t, "DDC_V", v.Mode)
	assert.Equal(t, 124, v.Major)
}

func TestCaps(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	assert.Nil(t, s.Caps())
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	caps := s.Caps()
	assert.NotEmpty(t, caps)
	assert.Contains(t, caps, dialect.OpSamplerPower)
	assert.NotContains(t, caps, dialect.OpTapFilter)
}

func TestConnectModeMismatch(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{Mode: "OCT_D"})
	err := s.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCT_D")
	assert.False(t, s.Connected())
}

func TestConnectVersionMismatch(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{Version: "123"})
	err := s.Connect()
	require.Error(t, err)
	assert.False(t, s.Connected())
}

func TestConnectTwice(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()
	require.Error(t, s.Connect())
}

func TestConnectDialError(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, nil, Options{})
	s.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		return nil, io.ErrUnexpectedEOF
	}
	err := s.Connect()
	require.Error(t, err)
	assert.True(t, IsConn(err))
}

func TestSendNotConnected(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, nil, Options{})
	_, err := s.SendCommand("version")
	require.Error(t, err)
	assert.True(t, IsConn(err))
}

func TestWriteZeroBytes(t *testing.T) {
	t.Parallel()

	s, conn := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	conn.mu.Lock()
	conn.writeZero = true
	conn.mu.Unlock()
	_, err := s.SendCommand("version")
	require.Error(t, err)
	assert.True(t, IsConn(err))
	// session survives a zero-byte write
	assert.True(t, s.Connected())

	conn.mu.Lock()
	conn.writeZero = false
	conn.mu.Unlock()
	resp, err := s.SendCommand("version")
	require.NoError(t, err)
	assert.Contains(t, resp, "DDC_V")
}

func TestDisconnectIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	assert.False(t, s.Connected())
	assert.Nil(t, s.Dialect())
}

func TestTypedOperation(t *testing.T) {
	t.Parallel()

	replies := map[string]string{
		"version": versionReplyDDC,
		"core3h=1,core3_power": "core3h=1,core3_power\n" +
			"Power at sampler 0 = 100\nPower at sampler 1 = 101\n" +
			"Power at sampler 2 = 102\nPower at sampler 3 = 103\n",
	}
	s, _ := testSession(t, replies, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	pow, err := s.SamplerPower(board.ID(0))
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101, 102, 103}, pow)
}

func TestUnsupportedOpNoIO(t *testing.T) {
	t.Parallel()

	// DDC dialects have no tap filter loading
	s, conn := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	_, err := s.TapFilter(board.ID(0), "some.flt", 1)
	require.Error(t, err)
	assert.True(t, dialect.IsUnsupportedOp(err))
	assert.Equal(t, []string{"version"}, conn.sent)
}

func TestBoardRangeCheckedBeforeIO(t *testing.T) {
	t.Parallel()

	s, conn := testSession(t, map[string]string{"version": versionReplyDDC}, Options{NumBoards: 4})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	_, err := s.SamplerPower(board.ID(5))
	require.Error(t, err)
	assert.True(t, board.IsOutOfRange(err))
	assert.Equal(t, []string{"version"}, conn.sent)
}

func TestResolveBoard(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, nil, Options{NumBoards: 4})
	b, err := s.ResolveBoard("c")
	require.NoError(t, err)
	assert.Equal(t, board.ID(2), b)
	_, err = s.ResolveBoard("E")
	require.Error(t, err)
}

func TestLastExchange(t *testing.T) {
	t.Parallel()

	s, _ := testSession(t, map[string]string{"version": versionReplyDDC}, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	cmd, resp := s.LastExchange()
	assert.Equal(t, "version", cmd)
	assert.Equal(t, versionReplyDDC, resp)
}

func TestSynthFreqAtomic(t *testing.T) {
	t.Parallel()

	replies := map[string]string{
		"version":          versionReplyDDC,
		"synth=1,source 1": "synth=1,source 1;",
		"synth=1,cw":       "synth=1,cw\nF 2262 MHz; // Act 2262 MHz\n",
	}
	s, conn := testSession(t, replies, Options{})
	require.NoError(t, s.Connect())
	defer s.Disconnect()

	f, err := s.SynthFreq(board.ID(0))
	require.NoError(t, err)
	assert.Equal(t, 4524, f.TargetMHz)
	assert.Equal(t, []string{"version", "synth=1,source 1", "synth=1,cw"}, conn.sent)
}
