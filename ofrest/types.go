package ofrest

import (
	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
)

// Control-message types published to switch channels.
const (
	kMsgFlowMod      = "flow_mod"
	kMsgFlowRemove   = "flow_remove"
	kMsgPacketOut    = "packet_out"
	kMsgARPReply     = "arp_reply"
	kMsgStatsRequest = "stats_request"
)

// Event types switches publish back to the controller.
const (
	kEventSwitchEnter = "switch_enter"
	kEventSwitchLeave = "switch_leave"
	kEventPacketIn    = "packet_in"
	kEventPortStats   = "port_stats"
	kEventFlowStats   = "flow_stats"
	kEventPortDesc    = "port_desc"
	kEventFlowRemoved = "flow_removed"
)

// controlMsg is the envelope published on a switch's control channel.
// Only the fields of the given |Type| are set.
type controlMsg struct {
	Type string `json:"type"`
	Dpid int64  `json:"dpid"`

	Rule  *flowModBody      `json:"rule,omitempty"`
	Match *controller.Match `json:"match,omitempty"`

	InPort uint32 `json:"in_port,omitempty"`
	Data   []byte `json:"data,omitempty"`

	SrcMAC string `json:"src_mac,omitempty"`
	SrcIP  string `json:"src_ip,omitempty"`
	DstMAC string `json:"dst_mac,omitempty"`
	DstIP  string `json:"dst_ip,omitempty"`
}

// flowModBody is the wire form of one flow rule.
type flowModBody struct {
	Cookie      int                 `json:"cookie"`
	Match       controller.Match    `json:"match"`
	Actions     []controller.Action `json:"actions"`
	Priority    int                 `json:"priority"`
	IdleTimeout int                 `json:"idle_timeout"`
}

// portStatEntry is one port counter inside a port-stats event.
type portStatEntry struct {
	Port    uint32 `json:"port"`
	TxBytes uint64 `json:"tx_bytes"`
}

// flowStatEntry is one rule counter inside a flow-stats event.
type flowStatEntry struct {
	Cookie  int    `json:"cookie"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// eventMsg is the envelope switches publish on the event channel.
type eventMsg struct {
	Type string `json:"type"`
	Dpid int64  `json:"dpid"`

	PacketIn  *controller.PacketIn `json:"packet_in,omitempty"`
	PortStats []portStatEntry      `json:"port_stats,omitempty"`
	FlowStats []flowStatEntry      `json:"flow_stats,omitempty"`
	Ports     []uint32             `json:"ports,omitempty"`
	Cookie    int                  `json:"cookie,omitempty"`
}

// FlowEntryRequest is the northbound rule-add body.
type FlowEntryRequest struct {
	Dpid        int64               `json:"dpid"`
	Match       controller.Match    `json:"match"`
	Actions     []controller.Action `json:"actions"`
	Priority    int                 `json:"priority"`
	IdleTimeout int                 `json:"idle_timeout"`
}

// ClearFlowsRequest is the northbound rule-clear body.
type ClearFlowsRequest struct {
	Dpid int64 `json:"dpid"`
}

// FlowStatsReply is one installed rule as reported northbound.
type FlowStatsReply struct {
	Cookie      int                 `json:"cookie"`
	Match       controller.Match    `json:"match"`
	Actions     []controller.Action `json:"actions"`
	Priority    int                 `json:"priority"`
	IdleTimeout int                 `json:"idle_timeout"`
	Packets     uint64              `json:"packets"`
	Bytes       uint64              `json:"bytes"`
}

// HostPortReply is one learned host binding.
type HostPortReply struct {
	Port uint32 `json:"port"`
	MAC  string `json:"mac"`
	IP   string `json:"ip"`
}

// BackendLoadReply is one backend's last-known load sample.
type BackendLoadReply struct {
	Name   string                `json:"name"`
	IP     string                `json:"ip"`
	Sample controller.LoadSample `json:"sample"`
}

// TrainingModeRequest toggles exploration and learning.
type TrainingModeRequest struct {
	Enabled bool `json:"enabled"`
}

// AgentStatusReply summarizes the decision engine.
type AgentStatusReply struct {
	Training   bool    `json:"training"`
	Epsilon    float64 `json:"epsilon"`
	LearnSteps int     `json:"learn_steps"`
	BufferLen  int     `json:"buffer_len"`
	ActionDim  int     `json:"action_dim"`
}

// CheckpointRequest names the checkpoint file to save or load.
type CheckpointRequest struct {
	Path string `json:"path"`
}

// errorReply is the JSON body of every non-2xx response.
type errorReply struct {
	Error string `json:"error"`
}
