package network

import (
	"context"
	"net"
	"time"
)

// Signal is one independent view on connectivity.
type Signal interface {
	Name() string
	Online(ctx context.Context) bool
}

// InterfaceSignal is the device-level view: online when at least one
// non-loopback interface is up and has an address.
type InterfaceSignal struct {
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

func NewInterfaceSignal() *InterfaceSignal {
	return &InterfaceSignal{
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
	}
}

func (s *InterfaceSignal) Name() string { return "interfaces" }

func (s *InterfaceSignal) Online(_ context.Context) bool {
	ifaces, err := s.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := s.addrs(iface)
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// DialSignal is the runtime view: online when a TCP connection to Address
// can be established within Timeout.
type DialSignal struct {
	Address string
	Timeout time.Duration
}

func (s *DialSignal) Name() string { return "dial" }

func (s *DialSignal) Online(ctx context.Context) bool {
	d := net.Dialer{Timeout: s.Timeout}
	conn, err := d.DialContext(ctx, "tcp", s.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Fixed always reports the same state.
type Fixed bool

func (f Fixed) Name() string { return "fixed" }

func (f Fixed) Online(context.Context) bool { return bool(f) }
