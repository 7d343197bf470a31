package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	glog "github.com/golang/glog"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
)

// ARP opcodes.
const (
	ARPRequest uint32 = 1
	ARPReply   uint32 = 2
)

// PacketIn is one unmatched-packet signal from a switch: the table
// missed, so this flow needs a decision (or the packet is
// address-resolution traffic to learn from).
type PacketIn struct {
	Dpid      int64  `json:"dpid"`
	InPort    uint32 `json:"in_port"`
	EthType   uint32 `json:"eth_type"`
	SrcMAC    string `json:"src_mac"`
	DstMAC    string `json:"dst_mac"`
	SrcIP     string `json:"src_ip,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	ARPOpcode uint32 `json:"arp_opcode,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// Decision is one routing choice awaiting reward closure. The
// training loop pairs it with the next telemetry snapshot.
type Decision struct {
	State   []float64
	Action  int
	Backend string
	Time    time.Time
}

// HandlePacketIn dispatches one unmatched-packet event. ARP traffic
// updates bindings and never reaches the decision engine; IPv4
// traffic to the virtual IP goes through backend selection and rule
// pair installation. Anything unhandleable degrades to flooding.
func (c *LBController) HandlePacketIn(ev *PacketIn) {
	sw := c.GetSwitch(ev.Dpid)
	if sw == nil || sw.Status() != SwitchConnected {
		glog.Warningf("Packet-in from unknown or disconnected dpid=%d, dropped", ev.Dpid)
		return
	}

	switch ev.EthType {
	case EthTypeARP:
		c.handleARP(sw, ev)
	case EthTypeIPv4:
		c.handleIPv4(sw, ev)
	default:
		// LLDP and friends: flood at the discovery band, no decision.
		c.flood(sw, ev)
	}
}

// handleARP learns the sender's binding and answers requests for the
// virtual IP with the virtual MAC. All other resolution traffic is
// flooded per standard semantics.
func (c *LBController) handleARP(sw *Switch, ev *PacketIn) {
	if ev.SrcIP != "" {
		c.topo.RecordBinding(ev.Dpid, ev.InPort, ev.SrcMAC, ev.SrcIP)
	}

	if ev.ARPOpcode == ARPRequest && ev.DstIP == c.vip {
		ctx, cancel := context.WithTimeout(context.Background(), kSwitchOpTimeout)
		defer cancel()
		if err := c.pusher.ARPReply(ctx, ev.Dpid, ev.InPort, c.virtualMAC, c.vip, ev.SrcMAC, ev.SrcIP); err != nil {
			glog.Errorf("ARP reply for VIP on dpid=%d failed: %v", ev.Dpid, err)
			c.flood(sw, ev)
		}
		return
	}

	c.flood(sw, ev)
}

// handleIPv4 is the decision point: an IPv4 packet to the VIP with
// no per-flow rule picks a backend and installs the rule pair. A
// packet to a concrete, resolved host bypasses the decision engine
// and gets a direct pass-through rule.
func (c *LBController) handleIPv4(sw *Switch, ev *PacketIn) {
	if ev.SrcIP != "" {
		c.topo.RecordBinding(ev.Dpid, ev.InPort, ev.SrcMAC, ev.SrcIP)
	}

	if rule := sw.table.Lookup(ev.InPort, EthTypeIPv4, ev.DstIP); rule != nil && rule.Priority >= c.flowPriority {
		// A rule already covers this flow; the packet raced its own
		// install. Flood this one packet and let the rule take over.
		c.flood(sw, ev)
		return
	}

	if ev.DstIP == c.vip {
		c.handleVIPFlow(sw, ev)
		return
	}

	// Concrete destination: direct pass-through if resolved.
	outPort, err := c.topo.LookupPort(ev.Dpid, ev.DstIP)
	if err != nil {
		c.flood(sw, ev)
		return
	}

	m := Match{InPort: ev.InPort, EthType: EthTypeIPv4, IPv4Dst: ev.DstIP}
	if err := c.installOnce(sw, m, outPort); err != nil {
		glog.Errorf("Pass-through install on dpid=%d failed: %v", ev.Dpid, err)
		c.flood(sw, ev)
		return
	}
	c.packetOut(sw, ev)
}

// handleVIPFlow selects a backend for a new VIP flow and enforces
// the choice as an atomic forward/reverse rule pair.
func (c *LBController) handleVIPFlow(sw *Switch, ev *PacketIn) {
	backend, state, action, ok := c.selectBackend(ev.Dpid)
	if !ok {
		// No healthy backend or no usable state: flood, and do not
		// store a reward-free transition.
		glog.Warningf("No healthy backend for VIP flow on dpid=%d, flooding", ev.Dpid)
		c.flood(sw, ev)
		return
	}

	backendPort, err := c.backendPort(ev.Dpid, backend)
	if err != nil {
		glog.Warningf("Backend %s not reachable from dpid=%d: %v", backend.name, ev.Dpid, err)
		c.flood(sw, ev)
		return
	}

	if err := c.installPair(sw, ev, backend, backendPort); err != nil {
		glog.Errorf("Rule pair for VIP flow on dpid=%d failed: %v", ev.Dpid, err)
		c.flood(sw, ev)
		return
	}

	atomic.AddUint64(&c.totalRequests, 1)
	c.recordDecision(Decision{
		State:   state,
		Action:  action,
		Backend: backend.name,
		Time:    time.Now(),
	})
	glog.Infof("VIP flow dpid=%d in_port=%d -> backend %s (port %d)",
		ev.Dpid, ev.InPort, backend.name, backendPort)

	c.packetOut(sw, ev)
}

// selectBackend encodes the current backend samples and asks the
// decision engine for a target. Returns ok=false when no backend is
// currently known-healthy.
func (c *LBController) selectBackend(dpid int64) (*Backend, []float64, int, bool) {
	if len(c.backends) == 0 {
		return nil, nil, 0, false
	}

	healthy := 0
	obs := make([]agent.Observation, len(c.backends))
	for i, b := range c.backends {
		s := b.Sample()
		obs[i] = agent.Observation{
			CPU:         s.CPU,
			Memory:      s.Memory,
			RTT:         s.RTT,
			Connections: s.Connections,
			LoadScore:   s.LoadScore,
			Unknown:     s.Unknown,
		}
		if !s.Unknown {
			healthy++
		}
	}
	if healthy == 0 {
		return nil, nil, 0, false
	}

	state := c.stateBuilder.Build(obs)
	action := c.decider.SelectAction(state)
	backend := c.backends[action%len(c.backends)]
	return backend, state, action, true
}

// backendPort resolves the output port toward |b| on switch |dpid|.
func (c *LBController) backendPort(dpid int64, b *Backend) (uint32, error) {
	if b.dpid == dpid {
		return b.port, nil
	}
	return c.topo.LookupPort(dpid, b.ip)
}

// installPair enforces one decision: the forward rule (client
// in-port to backend port) and the reverse rule (backend in-port to
// client port), both at the per-flow priority with the same idle
// timeout. The pair is one logical unit: if the reverse leg fails
// after its retry, the forward leg is removed so no asymmetric
// half-route persists.
func (c *LBController) installPair(sw *Switch, ev *PacketIn, b *Backend, backendPort uint32) error {
	fwd := Match{InPort: ev.InPort, EthType: EthTypeIPv4, IPv4Dst: ev.DstIP}
	rev := Match{InPort: backendPort, EthType: EthTypeIPv4, IPv4Dst: ev.SrcIP}

	if err := c.installOnce(sw, fwd, backendPort); err != nil {
		return err
	}

	if err := c.installOnce(sw, rev, ev.InPort); err != nil {
		if rmErr := sw.Remove(fwd); rmErr != nil {
			glog.Errorf("Failed to roll back forward rule on dpid=%d: %v", sw.dpid, rmErr)
		}
		return fmt.Errorf("reverse leg failed after forward leg was installed (%v): %w",
			err, ErrPartialInstall)
	}
	return nil
}

// installOnce installs a rule with a single retry, per the
// InstallFailed contract.
func (c *LBController) installOnce(sw *Switch, m Match, outPort uint32) error {
	actions := []Action{OutputAction(outPort)}
	err := sw.Install(m, actions, c.flowPriority, c.idleTimeout)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSwitchDisconnected) {
		return err
	}

	glog.Warningf("Install on dpid=%d match=%s failed, retrying once: %v", sw.dpid, m.Key(), err)
	return sw.Install(m, actions, c.flowPriority, c.idleTimeout)
}

func (c *LBController) flood(sw *Switch, ev *PacketIn) {
	ctx, cancel := context.WithTimeout(context.Background(), kSwitchOpTimeout)
	defer cancel()
	if err := c.pusher.PacketOut(ctx, ev.Dpid, ev.InPort, ev.Data); err != nil {
		glog.Errorf("Flood on dpid=%d failed: %v", ev.Dpid, err)
	}
}

// packetOut re-emits the triggering packet after its rule is in
// place, so the first packet of a flow is not lost.
func (c *LBController) packetOut(sw *Switch, ev *PacketIn) {
	c.flood(sw, ev)
}
