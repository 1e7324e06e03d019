package mcast

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// listenMulticast binds group:port with SO_REUSEADDR and joins the
// multicast group. A unicast group address skips the membership join so
// tests can exercise the receive path over loopback.
func listenMulticast(group string, port int, ifaceName string) (net.PacketConn, error) {
	ip := net.ParseIP(group)
	if ip == nil {
		return nil, errors.NotValidf("multicast group %q", group)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.NotValidf("multicast group %q: want IPv4", group)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(group, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Annotatef(err, "listen %s:%d", group, port)
	}

	if ip4.IsMulticast() {
		if err := joinGroup(pc, ip4, ifaceName); err != nil {
			pc.Close()
			return nil, errors.Trace(err)
		}
	}
	return pc, nil
}

func joinGroup(pc net.PacketConn, group net.IP, ifaceName string) error {
	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], group.To4())
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return errors.Annotatef(err, "multicast interface %q", ifaceName)
		}
		addrs, err := iface.Addrs()
		if err != nil {
			return errors.Trace(err)
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok {
				if ip4 := ipn.IP.To4(); ip4 != nil {
					copy(mreq.Interface[:], ip4)
					break
				}
			}
		}
	}

	uc, ok := pc.(*net.UDPConn)
	if !ok {
		return errors.Errorf("unexpected conn type %T", pc)
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return errors.Trace(err)
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	})
	if err != nil {
		return errors.Trace(err)
	}
	if serr != nil {
		return errors.Annotatef(serr, "join multicast group %s", group)
	}
	return nil
}
