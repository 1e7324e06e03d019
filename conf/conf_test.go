package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlbitools/dbbc3/log2"
)

const sampleConfig = `
device {
  host = "dbbc3.example.org"
  port = 4000
  boards = 4
  mode = "DDC_V"
  version = "124"
  connect_timeout_sec = 30
  read_timeout_sec = 5
}
multicast {
  group = "224.0.0.255"
  port = 25000
  iface = "eth1"
  timeout_sec = 10
}
`

func TestReadConfig(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"dbbc3.hcl": sampleConfig})
	c, err := ReadConfig(log, fs, "dbbc3.hcl")
	require.NoError(t, err)

	assert.Equal(t, "dbbc3.example.org", c.Device.Host)
	assert.Equal(t, 4000, c.Device.Port)
	assert.Equal(t, 4, c.Device.Boards)
	assert.Equal(t, "DDC_V", c.Device.Mode)
	assert.Equal(t, "124", c.Device.Version)
	assert.Equal(t, "224.0.0.255", c.Multicast.Group)
	assert.Equal(t, 25000, c.Multicast.Port)
	assert.Equal(t, "eth1", c.Multicast.Iface)
}

func TestSessionOptions(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"dbbc3.hcl": sampleConfig})
	c, err := ReadConfig(log, fs, "dbbc3.hcl")
	require.NoError(t, err)

	opt := c.SessionOptions(log)
	assert.Equal(t, "dbbc3.example.org", opt.Host)
	assert.Equal(t, 4, opt.NumBoards)
	assert.Equal(t, 30*time.Second, opt.ConnectTimeout)
	assert.Equal(t, 5*time.Second, opt.ReadTimeout)

	ropt := c.ReceiverOptions(log)
	assert.Equal(t, "224.0.0.255", ropt.Group)
	assert.Equal(t, 25000, ropt.Port)
	assert.Equal(t, 10*time.Second, ropt.ReadTimeout)
}

func TestReadConfigInclude(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{
		"main.hcl": `
include "site.hcl" {}
device { host = "dbbc3" }
`,
		"site.hcl": `multicast { group = "239.0.0.1" }`,
	})
	c, err := ReadConfig(log, fs, "main.hcl")
	require.NoError(t, err)
	assert.Equal(t, "dbbc3", c.Device.Host)
	assert.Equal(t, "239.0.0.1", c.Multicast.Group)
}

func TestReadConfigMissingRequired(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(nil)
	_, err := ReadConfig(log, fs, "nope.hcl")
	require.Error(t, err)
}

func TestReadConfigOptionalInclude(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{
		"main.hcl": `
include "absent.hcl" { optional = true }
device { host = "dbbc3" }
`,
	})
	c, err := ReadConfig(log, fs, "main.hcl")
	require.NoError(t, err)
	assert.Equal(t, "dbbc3", c.Device.Host)
}

func TestReadConfigBadSyntax(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"bad.hcl": `device { host = `})
	_, err := ReadConfig(log, fs, "bad.hcl")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(c *Config)
		expect string
	}{
		{"empty ok", func(c *Config) {}, ""},
		{"device port", func(c *Config) { c.Device.Port = 70000 }, "device port"},
		{"boards", func(c *Config) { c.Device.Boards = 9 }, "device boards"},
		{"mcast port", func(c *Config) { c.Multicast.Port = -1 }, "multicast port"},
		{"group", func(c *Config) { c.Multicast.Group = "not-an-ip" }, "multicast group"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &Config{}
			tc.mutate(c)
			err := c.Validate()
			if tc.expect == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expect)
			}
		})
	}
}

func TestReadConfigInvalidValues(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	fs := NewMockFullReader(map[string]string{"bad.hcl": `device { port = 99999 }`})
	_, err := ReadConfig(log, fs, "bad.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device port")
}
