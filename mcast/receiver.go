package mcast

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/atomic_clock"

	"github.com/vlbitools/dbbc3/log2"
)

const (
	DefaultGroup       = "224.0.0.255"
	DefaultPort        = 25000
	DefaultReadTimeout = 10 * time.Second
)

type ReceiverOptions struct {
	Group       string
	Port        int
	Iface       string
	ReadTimeout time.Duration
	Log         *log2.Log
}

// Receiver listens for broadcast datagrams in the background and keeps
// the most recent decoded snapshot.
type Receiver struct {
	opt   ReceiverOptions
	log   *log2.Log
	alive *alive.Alive
	pc    net.PacketConn

	latest    atomic.Value // *Snapshot
	last      *atomic_clock.Clock
	firstOnce sync.Once
	first     chan struct{}
}

func NewReceiver(opt ReceiverOptions) *Receiver {
	if opt.Group == "" {
		opt.Group = DefaultGroup
	}
	if opt.Port == 0 {
		opt.Port = DefaultPort
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = DefaultReadTimeout
	}
	return &Receiver{
		opt:   opt,
		log:   opt.Log,
		last:  atomic_clock.New(0),
		first: make(chan struct{}),
	}
}

// Start opens the socket and launches the receive loop.
func (self *Receiver) Start() error {
	if self.alive != nil && self.alive.IsRunning() {
		return errors.Errorf("receiver already running")
	}
	pc, err := listenMulticast(self.opt.Group, self.opt.Port, self.opt.Iface)
	if err != nil {
		return errors.Trace(err)
	}
	self.pc = pc
	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.loop()
	self.log.Debugf("mcast: listening group=%s port=%d", self.opt.Group, self.opt.Port)
	return nil
}

// Stop shuts down the receive loop and closes the socket.
func (self *Receiver) Stop() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	self.pc.Close()
	self.alive.Wait()
}

func (self *Receiver) loop() {
	defer self.alive.Done()
	buf := make([]byte, MaxDatagramSize)
	for self.alive.IsRunning() {
		_ = self.pc.SetReadDeadline(time.Now().Add(self.opt.ReadTimeout))
		n, _, err := self.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if self.alive.IsRunning() {
				self.log.Errorf("mcast: read: %v", err)
			}
			continue
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		snap, err := Decode(msg)
		if err != nil {
			// Malformed datagrams are dropped, the next one
			// replaces them anyway.
			self.log.Debugf("mcast: drop: %v", err)
			continue
		}
		self.latest.Store(snap)
		self.last.SetNow()
		self.firstOnce.Do(func() { close(self.first) })
	}
}

// Addr reports the bound local address, nil before Start.
func (self *Receiver) Addr() net.Addr {
	if self.pc == nil {
		return nil
	}
	return self.pc.LocalAddr()
}

// LatestNow returns the most recent snapshot or nil when none has
// arrived yet.
func (self *Receiver) LatestNow() *Snapshot {
	v, _ := self.latest.Load().(*Snapshot)
	return v
}

// Latest blocks until at least one snapshot has been received, then
// returns the most recent one.
func (self *Receiver) Latest(ctx context.Context) (*Snapshot, error) {
	select {
	case <-self.first:
		return self.LatestNow(), nil
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	}
}

// SinceLastMessage reports the time since the last valid datagram.
func (self *Receiver) SinceLastMessage() time.Duration {
	return atomic_clock.Since(self.last)
}

// Poll receives and decodes a single datagram without starting the
// background loop.
func Poll(opt ReceiverOptions) (*Snapshot, error) {
	if opt.Group == "" {
		opt.Group = DefaultGroup
	}
	if opt.Port == 0 {
		opt.Port = DefaultPort
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = DefaultReadTimeout
	}
	pc, err := listenMulticast(opt.Group, opt.Port, opt.Iface)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer pc.Close()
	_ = pc.SetReadDeadline(time.Now().Add(opt.ReadTimeout))
	buf := make([]byte, MaxDatagramSize)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		return nil, errors.Annotate(err, "mcast poll")
	}
	snap, err := Decode(buf[:n])
	if err != nil {
		return nil, errors.Trace(err)
	}
	return snap, nil
}
