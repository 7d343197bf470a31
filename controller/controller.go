package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/golang/glog"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
)

// Decider picks an output for an encoded load state. Satisfied by
// agent.DQNAgent; faked in tests.
type Decider interface {
	SelectAction(state []float64) int
}

// VIPStats is the served-traffic summary exposed over REST and the
// CLI: total decisions plus the per-backend split.
type VIPStats struct {
	VIP           string            `json:"vip"`
	TotalRequests uint64            `json:"total_requests"`
	PerBackend    map[string]uint64 `json:"per_backend"`
	LastDecision  time.Time         `json:"last_decision,omitempty"`
}

// LBController owns the closed control loop: it shadows switches,
// tracks host bindings, samples backend load, and turns packet-in
// events into flow rule pairs chosen by |decider|.
type LBController struct {
	pusher  FlowPusher
	decider Decider

	switches map[int64]*Switch
	swMutex  sync.Mutex

	topo         *Topology
	backends     []*Backend
	collector    *Collector
	stateBuilder *agent.StateBuilder

	vip          string
	virtualMAC   string
	flowPriority int
	idleTimeout  int

	// Decisions since the last training-window close.
	pending   []Decision
	pendingMu sync.Mutex

	totalRequests uint64
	perBackend    map[string]uint64
	lastDecision  time.Time
	statsMu       sync.Mutex
}

func NewLBController(cfg *config.Config, pusher FlowPusher, decider Decider) *LBController {
	backends := make([]*Backend, 0, len(cfg.Network.Backends))
	for _, b := range cfg.Network.Backends {
		backends = append(backends, newBackend(b.Name, b.IP, b.Dpid, b.Port, b.MetricsURL))
	}

	perBackend := make(map[string]uint64, len(backends))
	for _, b := range backends {
		perBackend[b.Name()] = 0
	}

	return &LBController{
		pusher:       pusher,
		decider:      decider,
		switches:     make(map[int64]*Switch),
		topo:         NewTopology(),
		backends:     backends,
		collector:    NewCollector(backends, cfg.Network.PollTimeout),
		stateBuilder: agent.NewStateBuilder(cfg.DRL.StateDim),
		vip:          cfg.Network.VirtualIP,
		virtualMAC:   cfg.Network.VirtualMAC,
		flowPriority: cfg.Network.FlowPriority,
		idleTimeout:  cfg.Network.FlowIdleTimeout,
		perBackend:   perBackend,
	}
}

// SwitchConnected registers a datapath and seeds its table-miss and
// ARP-band rules so every new flow reaches the controller.
func (c *LBController) SwitchConnected(dpid int64) *Switch {
	c.swMutex.Lock()
	sw, ok := c.switches[dpid]
	if ok && sw.Status() != SwitchDisconnected {
		c.swMutex.Unlock()
		return sw
	}
	sw = newSwitch(dpid, c.pusher)
	c.switches[dpid] = sw
	c.swMutex.Unlock()

	sw.setStatus(SwitchConnected)
	c.seedBaseRules(sw)
	glog.Infof("Switch dpid=%d connected", dpid)
	return sw
}

// seedBaseRules installs the permanent low-band rules on a fresh
// datapath: a table-miss rule punting unmatched packets to the
// controller and an ARP rule so bindings keep getting learned even
// after higher-priority flows cover the traffic.
func (c *LBController) seedBaseRules(sw *Switch) {
	toController := []Action{OutputAction(PortController)}
	if err := sw.Install(Match{}, toController, PriorityTableMiss, 0); err != nil {
		glog.Errorf("Table-miss rule on dpid=%d failed: %v", sw.dpid, err)
	}
	if err := sw.Install(Match{EthType: EthTypeARP}, toController, PriorityARP, 0); err != nil {
		glog.Errorf("ARP rule on dpid=%d failed: %v", sw.dpid, err)
	}
}

// SwitchDisconnected drops the datapath shadow and every host
// binding learned through it. Rules on the switch itself are gone
// with the switch; the shadow must not outlive them.
func (c *LBController) SwitchDisconnected(dpid int64) {
	c.swMutex.Lock()
	sw, ok := c.switches[dpid]
	if ok {
		delete(c.switches, dpid)
	}
	c.swMutex.Unlock()

	if !ok {
		return
	}
	sw.shutdown()
	c.topo.Forget(dpid)
	glog.Warningf("Switch dpid=%d disconnected, shadow state dropped", dpid)
}

func (c *LBController) GetSwitch(dpid int64) *Switch {
	c.swMutex.Lock()
	defer c.swMutex.Unlock()
	return c.switches[dpid]
}

// Switches returns the dpids of every registered datapath.
func (c *LBController) Switches() []int64 {
	c.swMutex.Lock()
	defer c.swMutex.Unlock()

	out := make([]int64, 0, len(c.switches))
	for dpid := range c.switches {
		out = append(out, dpid)
	}
	return out
}

func (c *LBController) Topology() *Topology {
	return c.topo
}

func (c *LBController) Backends() []*Backend {
	return c.backends
}

// InstallFlowEntry serves the northbound rule-add operation.
func (c *LBController) InstallFlowEntry(dpid int64, m Match, actions []Action, priority, idleTimeout int) error {
	sw := c.GetSwitch(dpid)
	if sw == nil {
		return fmt.Errorf("dpid %d: %w", dpid, ErrSwitchDisconnected)
	}
	return sw.Install(m, actions, priority, idleTimeout)
}

// ClearFlows removes every rule this controller installed on |dpid|.
func (c *LBController) ClearFlows(dpid int64) error {
	sw := c.GetSwitch(dpid)
	if sw == nil {
		return fmt.Errorf("dpid %d: %w", dpid, ErrSwitchDisconnected)
	}

	for _, rule := range sw.Query() {
		if err := sw.Remove(rule.Match); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot polls all backends in parallel and folds in the count of
// decisions taken since the previous snapshot. This is the training
// loop's observation step.
func (c *LBController) Snapshot(ctx context.Context) *Snapshot {
	c.pendingMu.Lock()
	recent := len(c.pending)
	c.pendingMu.Unlock()
	return c.collector.Snapshot(ctx, recent)
}

// EncodeState runs a telemetry snapshot through the state encoder.
// The training loop uses this to build the next-state observation a
// window's decisions bootstrap from; it shares the encoder with the
// decision path so churn and trend features track one sample stream.
func (c *LBController) EncodeState(snap *Snapshot) []float64 {
	obs := make([]agent.Observation, len(snap.Samples))
	for i, s := range snap.Samples {
		obs[i] = agent.Observation{
			CPU:         s.CPU,
			Memory:      s.Memory,
			RTT:         s.RTT,
			Connections: s.Connections,
			LoadScore:   s.LoadScore,
			Unknown:     s.Unknown,
		}
	}
	return c.stateBuilder.Build(obs)
}

// TakePendingDecisions drains the decisions recorded since the last
// call. The caller owns the returned slice.
func (c *LBController) TakePendingDecisions() []Decision {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	out := c.pending
	c.pending = nil
	return out
}

func (c *LBController) recordDecision(d Decision) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, d)
	c.pendingMu.Unlock()

	c.statsMu.Lock()
	c.perBackend[d.Backend]++
	c.lastDecision = d.Time
	c.statsMu.Unlock()
}

// ResetEpisode clears per-episode decision state. Called at episode
// boundaries so trend features never span a traffic restart.
func (c *LBController) ResetEpisode() {
	c.pendingMu.Lock()
	c.pending = nil
	c.pendingMu.Unlock()
	c.stateBuilder.Reset()
}

// Stats reports the served-traffic summary.
func (c *LBController) Stats() VIPStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	per := make(map[string]uint64, len(c.perBackend))
	for name, n := range c.perBackend {
		per[name] = n
	}
	return VIPStats{
		VIP:           c.vip,
		TotalRequests: atomic.LoadUint64(&c.totalRequests),
		PerBackend:    per,
		LastDecision:  c.lastDecision,
	}
}

// HandlePortStats folds a port-stats reply into the switch shadow.
func (c *LBController) HandlePortStats(dpid int64, port uint32, txBytes uint64) {
	if sw := c.GetSwitch(dpid); sw != nil {
		sw.UpdatePortStats(port, txBytes)
	}
}

// HandlePortDesc folds a port-desc reply into the switch shadow.
func (c *LBController) HandlePortDesc(dpid int64, ports []uint32) {
	if sw := c.GetSwitch(dpid); sw != nil {
		sw.UpdatePorts(ports)
	}
}

// HandleFlowStats refreshes a shadow rule's counters.
func (c *LBController) HandleFlowStats(dpid int64, cookie int, packets, bytes uint64) {
	if sw := c.GetSwitch(dpid); sw != nil {
		sw.table.UpdateCounters(cookie, packets, bytes)
	}
}

// HandleFlowRemoved evicts a shadow rule after a switch-side idle
// timeout.
func (c *LBController) HandleFlowRemoved(dpid int64, cookie int) {
	if sw := c.GetSwitch(dpid); sw != nil {
		sw.handleFlowRemoved(cookie)
	}
}

// RunStatsLoop nags every connected switch for fresh counters until
// |ctx| is done. Run as a goroutine.
func (c *LBController) RunStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(kStatsRequestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dpid := range c.Switches() {
				sw := c.GetSwitch(dpid)
				if sw == nil || sw.Status() != SwitchConnected {
					continue
				}
				reqCtx, cancel := context.WithTimeout(ctx, kSwitchOpTimeout)
				if err := c.pusher.RequestStats(reqCtx, dpid); err != nil {
					glog.Warningf("Stats request for dpid=%d failed: %v", dpid, err)
				}
				cancel()
			}
		}
	}
}
