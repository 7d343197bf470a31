package controller

import (
	"errors"
	"testing"
)

func TestTopologyRecordAndLookup(t *testing.T) {
	topo := NewTopology()
	topo.RecordBinding(1, 3, "00:00:00:00:00:01", "10.0.0.1")
	topo.RecordBinding(1, 4, "00:00:00:00:00:02", "10.0.0.2")

	port, err := topo.LookupPort(1, "10.0.0.2")
	if err != nil || port != 4 {
		t.Errorf("LookupPort = (%d, %v), want (4, nil)", port, err)
	}

	mac, err := topo.LookupMAC(1, "10.0.0.1")
	if err != nil || mac != "00:00:00:00:00:01" {
		t.Errorf("LookupMAC = (%s, %v), want (00:00:00:00:00:01, nil)", mac, err)
	}
}

func TestTopologyUnknownReturnsNotResolved(t *testing.T) {
	topo := NewTopology()
	topo.RecordBinding(1, 3, "00:00:00:00:00:01", "10.0.0.1")

	if _, err := topo.LookupPort(1, "10.0.0.9"); !errors.Is(err, ErrNotResolved) {
		t.Errorf("unknown ip: err = %v, want ErrNotResolved", err)
	}
	if _, err := topo.LookupPort(2, "10.0.0.1"); !errors.Is(err, ErrNotResolved) {
		t.Errorf("unknown dpid: err = %v, want ErrNotResolved", err)
	}
}

func TestTopologyNewerBindingSupersedes(t *testing.T) {
	topo := NewTopology()
	topo.RecordBinding(1, 3, "00:00:00:00:00:01", "10.0.0.1")
	// The host behind port 3 was replaced.
	topo.RecordBinding(1, 3, "00:00:00:00:00:09", "10.0.0.9")

	if _, err := topo.LookupPort(1, "10.0.0.1"); !errors.Is(err, ErrNotResolved) {
		t.Errorf("superseded ip still resolves")
	}
	port, err := topo.LookupPort(1, "10.0.0.9")
	if err != nil || port != 3 {
		t.Errorf("LookupPort after migration = (%d, %v), want (3, nil)", port, err)
	}

	hosts := topo.HostPorts(1)
	if len(hosts) != 1 || hosts[3].IP != "10.0.0.9" {
		t.Errorf("HostPorts = %v, want one binding for 10.0.0.9 on port 3", hosts)
	}
}

func TestTopologyForget(t *testing.T) {
	topo := NewTopology()
	topo.RecordBinding(1, 3, "00:00:00:00:00:01", "10.0.0.1")
	topo.RecordBinding(2, 1, "00:00:00:00:00:02", "10.0.0.2")

	topo.Forget(1)

	if _, err := topo.LookupPort(1, "10.0.0.1"); !errors.Is(err, ErrNotResolved) {
		t.Errorf("binding survived Forget")
	}
	if _, err := topo.LookupPort(2, "10.0.0.2"); err != nil {
		t.Errorf("Forget(1) dropped dpid 2's binding: %v", err)
	}
}
