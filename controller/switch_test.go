package controller

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReinstallReusesCookie(t *testing.T) {
	c, _, _ := newTestController(0)
	sw := c.GetSwitch(1)

	m := Match{InPort: 7, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
	if err := sw.Install(m, []Action{OutputAction(4)}, 1000, 30); err != nil {
		t.Fatalf("first install failed: %v", err)
	}
	first := sw.table.Get(m, 1000)
	if first == nil {
		t.Fatalf("installed rule missing from shadow")
	}

	for i := 0; i < 5; i++ {
		if err := sw.Install(m, []Action{OutputAction(5)}, 1000, 30); err != nil {
			t.Fatalf("reinstall %d failed: %v", i, err)
		}
	}

	got := sw.table.Get(m, 1000)
	if got.Cookie != first.Cookie {
		t.Errorf("reinstall changed the cookie: %d -> %d", first.Cookie, got.Cookie)
	}
	if got.Actions[0].Port != 5 {
		t.Errorf("reinstall did not update the action: port %d", got.Actions[0].Port)
	}

	// Every reinstall returned its spare cookie; a fresh rule picks
	// up the very next index instead of one five slots later.
	other := Match{InPort: 8, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
	if err := sw.Install(other, []Action{OutputAction(4)}, 1000, 30); err != nil {
		t.Fatalf("fresh install failed: %v", err)
	}
	if cookie := sw.table.Get(other, 1000).Cookie; cookie != first.Cookie+1 {
		t.Errorf("fresh rule got cookie %d, want %d; reinstalls drained the pool", cookie, first.Cookie+1)
	}
}

func TestRejectedReinstallKeepsPriorShadow(t *testing.T) {
	c, pusher, _ := newTestController(0)
	sw := c.GetSwitch(1)

	m := Match{InPort: 7, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
	if err := sw.Install(m, []Action{OutputAction(2)}, 1000, 30); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	pusher.failNext(m, 1)
	err := sw.Install(m, []Action{OutputAction(9)}, 1000, 30)
	if !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("rejected reinstall returned %v, want ErrInstallFailed", err)
	}

	// The switch still runs the old action; the shadow must agree.
	got := sw.table.Get(m, 1000)
	if got == nil {
		t.Fatalf("rule vanished from the shadow after a rejected reinstall")
	}
	if got.Actions[0].Port != 2 {
		t.Errorf("shadow advertises port %d after a rejected reinstall, want 2", got.Actions[0].Port)
	}
	if sw.table.Evict(got.Cookie) == nil {
		t.Errorf("rule not reachable by its cookie after a rejected reinstall")
	}
}

// gatedPusher wedges flow-mods on |proceed| and signals |entered|
// when the worker reaches the wire.
type gatedPusher struct {
	entered chan struct{}
	proceed chan struct{}
}

func newGatedPusher() *gatedPusher {
	return &gatedPusher{
		entered: make(chan struct{}, 16),
		proceed: make(chan struct{}, 16),
	}
}

func (p *gatedPusher) FlowMod(ctx context.Context, dpid int64, rule *FlowRule) error {
	p.entered <- struct{}{}
	select {
	case <-p.proceed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedPusher) FlowRemove(ctx context.Context, dpid int64, m Match) error { return nil }
func (p *gatedPusher) PacketOut(ctx context.Context, dpid int64, inPort uint32, data []byte) error {
	return nil
}
func (p *gatedPusher) ARPReply(ctx context.Context, dpid int64, port uint32, srcMAC, srcIP, dstMAC, dstIP string) error {
	return nil
}
func (p *gatedPusher) RequestStats(ctx context.Context, dpid int64) error { return nil }

func TestDisconnectFailsPendingInstalls(t *testing.T) {
	pusher := newGatedPusher()
	// Let the connect-time base rules through.
	pusher.proceed <- struct{}{}
	pusher.proceed <- struct{}{}

	c := NewLBController(testConfig(), pusher, &fakeDecider{})
	sw := c.SwitchConnected(1)
	<-pusher.entered
	<-pusher.entered

	// One install stuck on the wire, two more queued behind it.
	results := make(chan error, 3)
	go func() {
		m := Match{InPort: 7, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
		results <- sw.Install(m, []Action{OutputAction(4)}, 1000, 30)
	}()
	<-pusher.entered
	for i := 0; i < 2; i++ {
		m := Match{InPort: uint32(8 + i), EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
		go func(m Match) {
			results <- sw.Install(m, []Action{OutputAction(4)}, 1000, 30)
		}(m)
	}
	time.Sleep(50 * time.Millisecond)

	c.SwitchDisconnected(1)

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrSwitchDisconnected) {
				t.Errorf("pending install returned %v, want ErrSwitchDisconnected", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("install %d hung across the disconnect", i)
		}
	}
	close(pusher.proceed)
}
