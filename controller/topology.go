package controller

import (
	"fmt"
	"sync"

	glog "github.com/golang/glog"
)

// HostBinding ties a (MAC, IP) pair to the switch port it was
// learned on. Bindings come from observed address-resolution traffic.
type HostBinding struct {
	MAC string
	IP  string
}

// Topology tracks which host sits behind which port of which switch.
// There is at most one binding per (dpid, port); a newer binding for
// the same port supersedes the old one (host migration). Stale
// bindings are never timed out, only superseded.
type Topology struct {
	// |bindings| maps dpid -> port -> host.
	bindings map[int64]map[uint32]HostBinding
	mutex    sync.Mutex
}

func NewTopology() *Topology {
	return &Topology{
		bindings: make(map[int64]map[uint32]HostBinding),
	}
}

// RecordBinding learns (mac, ip) behind |port| of switch |dpid|.
func (t *Topology) RecordBinding(dpid int64, port uint32, mac string, ip string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ports, exists := t.bindings[dpid]
	if !exists {
		ports = make(map[uint32]HostBinding)
		t.bindings[dpid] = ports
	}

	if prev, exists := ports[port]; exists && (prev.MAC != mac || prev.IP != ip) {
		glog.Infof("Host migration on dpid=%d port=%d: %s/%s -> %s/%s",
			dpid, port, prev.MAC, prev.IP, mac, ip)
	}
	ports[port] = HostBinding{MAC: mac, IP: ip}
}

// LookupPort resolves |ip| to the port it was learned on. An unknown
// (dpid, ip) returns ErrNotResolved; the caller floods instead of
// blocking on resolution.
func (t *Topology) LookupPort(dpid int64, ip string) (uint32, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ports, exists := t.bindings[dpid]
	if !exists {
		return 0, fmt.Errorf("dpid %d has no bindings: %w", dpid, ErrNotResolved)
	}
	for port, b := range ports {
		if b.IP == ip {
			return port, nil
		}
	}
	return 0, fmt.Errorf("ip %s unknown on dpid %d: %w", ip, dpid, ErrNotResolved)
}

// LookupMAC resolves |ip| to its learned MAC address.
func (t *Topology) LookupMAC(dpid int64, ip string) (string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, b := range t.bindings[dpid] {
		if b.IP == ip {
			return b.MAC, nil
		}
	}
	return "", fmt.Errorf("ip %s unknown on dpid %d: %w", ip, dpid, ErrNotResolved)
}

// HostPorts returns a copy of the learned port -> host mapping of
// |dpid| for the REST surface.
func (t *Topology) HostPorts(dpid int64) map[uint32]HostBinding {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make(map[uint32]HostBinding, len(t.bindings[dpid]))
	for port, b := range t.bindings[dpid] {
		out[port] = b
	}
	return out
}

// Forget drops everything learned on |dpid|. Called on switch
// disconnect so a reconnect re-learns from scratch.
func (t *Topology) Forget(dpid int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	delete(t.bindings, dpid)
}
