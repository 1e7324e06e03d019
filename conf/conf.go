// Package conf reads HCL configuration for the DBBC3 client tools.
package conf

import (
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/control"
	"github.com/vlbitools/dbbc3/log2"
	"github.com/vlbitools/dbbc3/mcast"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Device struct {
		Host              string `hcl:"host"`
		Port              int    `hcl:"port"`
		Boards            int    `hcl:"boards"`
		Mode              string `hcl:"mode"`
		Version           string `hcl:"version"`
		ConnectTimeoutSec int    `hcl:"connect_timeout_sec"`
		ReadTimeoutSec    int    `hcl:"read_timeout_sec"`
	} `hcl:"device"`

	Multicast struct {
		Group      string `hcl:"group"`
		Port       int    `hcl:"port"`
		Iface      string `hcl:"iface"`
		TimeoutSec int    `hcl:"timeout_sec"`
	} `hcl:"multicast"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (self *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := self.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	self.includeSeen[source.Name] = struct{}{}
	self.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, self)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, self.XXX_Include = self.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := self.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		self.read(log, fs, include, errs)
	}
}

// Validate checks set fields for sane values. Unset fields are fine;
// control and mcast fill their own defaults.
func (self *Config) Validate() error {
	errs := make([]error, 0, 4)
	if p := self.Device.Port; p < 0 || p > 65535 {
		errs = append(errs, errors.NotValidf("device port %d", p))
	}
	if b := self.Device.Boards; b < 0 || b > 8 {
		errs = append(errs, errors.NotValidf("device boards %d", b))
	}
	if p := self.Multicast.Port; p < 0 || p > 65535 {
		errs = append(errs, errors.NotValidf("multicast port %d", p))
	}
	if g := self.Multicast.Group; g != "" && net.ParseIP(g) == nil {
		errs = append(errs, errors.NotValidf("multicast group %q", g))
	}
	return foldErrors(errs)
}

// SessionOptions converts the device block into control session options.
func (self *Config) SessionOptions(log *log2.Log) control.Options {
	opt := control.Options{
		Host:      self.Device.Host,
		Port:      self.Device.Port,
		NumBoards: self.Device.Boards,
		Mode:      self.Device.Mode,
		Version:   self.Device.Version,
		Log:       log,
	}
	if self.Device.ConnectTimeoutSec > 0 {
		opt.ConnectTimeout = time.Duration(self.Device.ConnectTimeoutSec) * time.Second
	}
	if self.Device.ReadTimeoutSec > 0 {
		opt.ReadTimeout = time.Duration(self.Device.ReadTimeoutSec) * time.Second
	}
	return opt
}

// ReceiverOptions converts the multicast block into receiver options.
func (self *Config) ReceiverOptions(log *log2.Log) mcast.ReceiverOptions {
	opt := mcast.ReceiverOptions{
		Group: self.Multicast.Group,
		Port:  self.Multicast.Port,
		Iface: self.Multicast.Iface,
		Log:   log,
	}
	if self.Multicast.TimeoutSec > 0 {
		opt.ReadTimeout = time.Duration(self.Multicast.TimeoutSec) * time.Second
	}
	return opt
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	return c, foldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func foldErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.Errorf(strings.Join(ss, "\n"))
}
