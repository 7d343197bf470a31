package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	glog "github.com/golang/glog"

	utils "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/utils"
)

// FlowPusher is the southbound channel to one or more switches.
// Implemented by ofrest.OfctlHandler; faked in tests.
type FlowPusher interface {
	// FlowMod installs |rule| on switch |dpid|.
	FlowMod(ctx context.Context, dpid int64, rule *FlowRule) error
	// FlowRemove deletes all rules matching |m| on switch |dpid|.
	FlowRemove(ctx context.Context, dpid int64, m Match) error
	// PacketOut floods |data| out of every port except |inPort|.
	PacketOut(ctx context.Context, dpid int64, inPort uint32, data []byte) error
	// ARPReply answers an ARP request out of |port|.
	ARPReply(ctx context.Context, dpid int64, port uint32, srcMAC, srcIP, dstMAC, dstIP string) error
	// RequestStats asks |dpid| to publish fresh port and flow counters.
	RequestStats(ctx context.Context, dpid int64) error
}

type SwitchStatus int

const (
	SwitchConnecting SwitchStatus = iota
	SwitchConnected
	SwitchDisconnected
)

func (s SwitchStatus) String() string {
	switch s {
	case SwitchConnecting:
		return "connecting"
	case SwitchConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Wire operations wait at most this long for the switch channel.
const kSwitchOpTimeout = 1 * time.Second

// Each switch allocates rule cookies from its own range.
const kCookiesPerSwitch = 4096

type opKind int

const (
	opInstall opKind = iota
	opRemove
)

// switchOp is one unit of work on a switch's flow table. Ops for the
// same switch run in submission order; ops across switches do not
// block each other.
type switchOp struct {
	kind  opKind
	rule  *FlowRule
	match Match
	reply chan error
}

// Switch is the controller-side shadow of one datapath.
// |table| mirrors the rules this controller installed.
// |cookies| allocates rule cookies.
// |portStats| caches the last tx-byte counters per port.
// |op| feeds the per-switch worker goroutine; install ordering
// within one switch matters for priority correctness.
type Switch struct {
	dpid      int64
	status    SwitchStatus
	ports     []uint32
	table     *FlowTable
	cookies   *utils.IndexPool
	portStats map[uint32]uint64
	pusher    FlowPusher
	op        chan switchOp
	quit      chan struct{}
	quitOnce  sync.Once
	mutex     sync.Mutex
}

func newSwitch(dpid int64, pusher FlowPusher) *Switch {
	sw := &Switch{
		dpid:      dpid,
		status:    SwitchConnecting,
		ports:     make([]uint32, 0),
		table:     NewFlowTable(),
		cookies:   utils.NewIndexPool(int(dpid)*kCookiesPerSwitch, kCookiesPerSwitch),
		portStats: make(map[uint32]uint64),
		pusher:    pusher,
		op:        make(chan switchOp, 64),
		quit:      make(chan struct{}),
	}
	go sw.run()
	return sw
}

// run is the per-switch worker. It serializes all flow-table
// mutations for this datapath. Once |quit| closes, every op still
// queued is answered with ErrSwitchDisconnected rather than left
// hanging.
func (sw *Switch) run() {
	for {
		select {
		case op := <-sw.op:
			select {
			case <-sw.quit:
				sw.nack(op)
				continue
			default:
			}
			switch op.kind {
			case opInstall:
				op.reply <- sw.doInstall(op.rule)
			case opRemove:
				op.reply <- sw.doRemove(op.match)
			}
		case <-sw.quit:
			for {
				select {
				case op := <-sw.op:
					sw.nack(op)
				default:
					return
				}
			}
		}
	}
}

// nack fails one queued op after the switch has been torn down.
func (sw *Switch) nack(op switchOp) {
	if op.kind == opInstall {
		sw.cookies.Free(op.rule.Cookie)
	}
	op.reply <- fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
}

func (sw *Switch) Dpid() int64 {
	return sw.dpid
}

func (sw *Switch) Status() SwitchStatus {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.status
}

func (sw *Switch) setStatus(s SwitchStatus) {
	sw.mutex.Lock()
	sw.status = s
	sw.mutex.Unlock()
}

// UpdatePorts records the active port set from a port-desc reply.
func (sw *Switch) UpdatePorts(ports []uint32) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	sw.ports = append(sw.ports[:0], ports...)
	sort.Slice(sw.ports, func(i, j int) bool { return sw.ports[i] < sw.ports[j] })
}

func (sw *Switch) Ports() []uint32 {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	out := make([]uint32, len(sw.ports))
	copy(out, sw.ports)
	return out
}

// UpdatePortStats caches a tx-byte counter from a port-stats reply.
func (sw *Switch) UpdatePortStats(port uint32, txBytes uint64) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	sw.portStats[port] = txBytes
}

// PortStats returns a copy of the cached per-port tx counters.
func (sw *Switch) PortStats() map[uint32]uint64 {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	out := make(map[uint32]uint64, len(sw.portStats))
	for p, b := range sw.portStats {
		out[p] = b
	}
	return out
}

// Install pushes one rule to the switch through the per-switch
// worker. The rule's cookie is allocated here. Idempotent: an
// identical match/priority replaces the prior action.
func (sw *Switch) Install(m Match, actions []Action, priority int, idleTimeout int) error {
	if sw.Status() == SwitchDisconnected {
		return fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
	}

	rule := &FlowRule{
		Cookie:      sw.cookies.GetNextAvailable(),
		Match:       m,
		Actions:     actions,
		Priority:    priority,
		IdleTimeout: idleTimeout,
	}
	if rule.Cookie == -1 {
		return fmt.Errorf("dpid %d is out of cookies: %w", sw.dpid, ErrInstallFailed)
	}

	reply := make(chan error, 1)
	select {
	case sw.op <- switchOp{kind: opInstall, rule: rule, reply: reply}:
	case <-sw.quit:
		sw.cookies.Free(rule.Cookie)
		return fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
	}
	return sw.await(reply)
}

// Remove deletes all rules with match |m| from the switch.
func (sw *Switch) Remove(m Match) error {
	if sw.Status() == SwitchDisconnected {
		return fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
	}

	reply := make(chan error, 1)
	select {
	case sw.op <- switchOp{kind: opRemove, match: m, reply: reply}:
	case <-sw.quit:
		return fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
	}
	return sw.await(reply)
}

// await blocks for the worker's answer, but never past teardown: a
// disconnect fails this switch's in-flight and queued ops instead of
// hanging their callers.
func (sw *Switch) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-sw.quit:
		return fmt.Errorf("dpid %d: %w", sw.dpid, ErrSwitchDisconnected)
	}
}

// Query returns the shadow flow table, highest priority first.
func (sw *Switch) Query() []*FlowRule {
	return sw.table.Query()
}

// doInstall pushes the flow-mod to the wire first and commits the
// shadow only on success, so a rejected install never leaves the
// shadow ahead of the switch. A reinstall of an existing rule keeps
// that rule's cookie and returns the spare to the pool.
func (sw *Switch) doInstall(rule *FlowRule) error {
	if err := sw.table.Conflicts(rule); err != nil {
		sw.cookies.Free(rule.Cookie)
		return err
	}

	fresh := true
	if prev := sw.table.Get(rule.Match, rule.Priority); prev != nil {
		sw.cookies.Free(rule.Cookie)
		rule.Cookie = prev.Cookie
		fresh = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), kSwitchOpTimeout)
	defer cancel()

	if err := sw.pusher.FlowMod(ctx, sw.dpid, rule); err != nil {
		// The switch never saw the rule. The shadow was not touched;
		// a rejected reinstall keeps advertising the prior actions.
		if fresh {
			sw.cookies.Free(rule.Cookie)
		}
		return fmt.Errorf("flow-mod on dpid %d rejected (%v): %w", sw.dpid, err, ErrInstallFailed)
	}
	return sw.table.Insert(rule)
}

func (sw *Switch) doRemove(m Match) error {
	removed := sw.table.Remove(m)
	for _, r := range removed {
		sw.cookies.Free(r.Cookie)
	}

	ctx, cancel := context.WithTimeout(context.Background(), kSwitchOpTimeout)
	defer cancel()

	if err := sw.pusher.FlowRemove(ctx, sw.dpid, m); err != nil {
		return fmt.Errorf("flow-remove on dpid %d rejected (%v): %w", sw.dpid, err, ErrInstallFailed)
	}
	return nil
}

// handleFlowRemoved trims the shadow table after a switch-side idle
// timeout eviction. The next packet of that flow simply misses and
// re-triggers the packet-in path.
func (sw *Switch) handleFlowRemoved(cookie int) {
	if r := sw.table.Evict(cookie); r != nil {
		sw.cookies.Free(cookie)
		glog.Infof("dpid=%d evicted rule cookie=%d match=%s (idle timeout)", sw.dpid, cookie, r.Match.Key())
	}
}

// shutdown marks the switch disconnected and tears down its worker.
// Every pending op, queued or in flight, fails with
// ErrSwitchDisconnected.
func (sw *Switch) shutdown() {
	sw.setStatus(SwitchDisconnected)
	sw.quitOnce.Do(func() { close(sw.quit) })
}
