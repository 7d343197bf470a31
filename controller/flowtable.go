package controller

import (
	"fmt"
	"sort"
	"sync"
)

// Ethernet type codes used in matches.
const (
	EthTypeIPv4 uint32 = 2048
	EthTypeARP  uint32 = 2054
)

// Priority bands. Rules with overlapping matches must sit in
// different bands so exactly one applies once a flow is learned.
const (
	PriorityTableMiss = 0
	PriorityARP       = 1
)

// Reserved output ports, mirroring the OpenFlow encodings.
const (
	PortFlood      uint32 = 0xfffffffb
	PortController uint32 = 0xfffffffd
)

// Match is the subset of the OpenFlow match the load balancer uses.
// A zero field is a wildcard.
type Match struct {
	InPort  uint32 `json:"in_port,omitempty"`
	EthType uint32 `json:"eth_type,omitempty"`
	IPv4Src string `json:"ipv4_src,omitempty"`
	IPv4Dst string `json:"ipv4_dst,omitempty"`
}

// Key returns the canonical identity of a match. Two rules with the
// same key and priority are the same rule.
func (m Match) Key() string {
	return fmt.Sprintf("in=%d,eth=%d,src=%s,dst=%s", m.InPort, m.EthType, m.IPv4Src, m.IPv4Dst)
}

// Overlaps reports whether a packet could satisfy both matches.
// Fields overlap when equal or when either side wildcards them.
func (m Match) Overlaps(o Match) bool {
	if m.InPort != 0 && o.InPort != 0 && m.InPort != o.InPort {
		return false
	}
	if m.EthType != 0 && o.EthType != 0 && m.EthType != o.EthType {
		return false
	}
	if m.IPv4Src != "" && o.IPv4Src != "" && m.IPv4Src != o.IPv4Src {
		return false
	}
	if m.IPv4Dst != "" && o.IPv4Dst != "" && m.IPv4Dst != o.IPv4Dst {
		return false
	}
	return true
}

// Action forwards a matched packet out of |Port|.
type Action struct {
	Type string `json:"type"`
	Port uint32 `json:"port"`
}

// OutputAction is the only action type the balancer installs.
func OutputAction(port uint32) Action {
	return Action{Type: "OUTPUT", Port: port}
}

// FlowRule mirrors one installed flow-table entry.
// |Cookie| identifies the rule on the wire; |Packets| and |Bytes|
// are the switch-reported counters, updated from flow-stats replies.
type FlowRule struct {
	Cookie      int
	Match       Match
	Actions     []Action
	Priority    int
	IdleTimeout int
	Packets     uint64
	Bytes       uint64
}

// FlowTable shadows the rules this controller installed on one
// switch. The switch remains the source of truth; idle timeouts
// evict entries switch-side and the shadow is trimmed when a
// flow-removed notification or a stats refresh says so.
type FlowTable struct {
	rules map[string]*FlowRule // keyed by Match.Key() + priority
	mutex sync.Mutex
}

func NewFlowTable() *FlowTable {
	return &FlowTable{
		rules: make(map[string]*FlowRule),
	}
}

func ruleKey(m Match, priority int) string {
	return fmt.Sprintf("%s/p=%d", m.Key(), priority)
}

// Insert records a rule. Re-inserting an identical match/priority
// replaces the prior actions (idempotent install). A different rule
// whose match overlaps at the same priority is rejected, since the
// switch could then apply either one.
func (t *FlowTable) Insert(rule *FlowRule) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if err := t.conflicts(rule); err != nil {
		return err
	}

	key := ruleKey(rule.Match, rule.Priority)
	if prev, exists := t.rules[key]; exists {
		prev.Actions = rule.Actions
		prev.IdleTimeout = rule.IdleTimeout
		return nil
	}
	t.rules[key] = rule
	return nil
}

// Conflicts reports whether |rule| would collide with a different
// installed rule at the same priority. Used to vet a rule before its
// flow-mod goes on the wire.
func (t *FlowTable) Conflicts(rule *FlowRule) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.conflicts(rule)
}

func (t *FlowTable) conflicts(rule *FlowRule) error {
	key := ruleKey(rule.Match, rule.Priority)
	for k, r := range t.rules {
		if k == key {
			continue
		}
		if r.Priority == rule.Priority && r.Match.Overlaps(rule.Match) {
			return fmt.Errorf("match %s overlaps installed rule %s at priority %d: %w",
				rule.Match.Key(), r.Match.Key(), rule.Priority, ErrInstallFailed)
		}
	}
	return nil
}

// Get returns the rule installed with exactly |m| at |priority|, or
// nil.
func (t *FlowTable) Get(m Match, priority int) *FlowRule {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.rules[ruleKey(m, priority)]
}

// Remove drops the rule with the given match at any priority.
// Returns the removed rules so their cookies can be freed.
func (t *FlowTable) Remove(m Match) []*FlowRule {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	removed := make([]*FlowRule, 0)
	for k, r := range t.rules {
		if r.Match == m {
			removed = append(removed, r)
			delete(t.rules, k)
		}
	}
	return removed
}

// Lookup returns the highest-priority rule matching the given
// (in_port, eth_type, dst) triple, or nil.
func (t *FlowTable) Lookup(inPort uint32, ethType uint32, dst string) *FlowRule {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var best *FlowRule
	query := Match{InPort: inPort, EthType: ethType, IPv4Dst: dst}
	for _, r := range t.rules {
		if !r.Match.Overlaps(query) {
			continue
		}
		if best == nil || r.Priority > best.Priority {
			best = r
		}
	}
	return best
}

// Query returns the installed rules ordered by priority, highest
// first; equal priorities order by match key for stable output.
func (t *FlowTable) Query() []*FlowRule {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make([]*FlowRule, 0, len(t.rules))
	for _, r := range t.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Match.Key() < out[j].Match.Key()
	})
	return out
}

// UpdateCounters refreshes the switch-reported counters for the rule
// with |cookie|. Unknown cookies are ignored; the entry may have
// been evicted by its idle timeout already.
func (t *FlowTable) UpdateCounters(cookie int, packets uint64, bytes uint64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, r := range t.rules {
		if r.Cookie == cookie {
			r.Packets = packets
			r.Bytes = bytes
			return
		}
	}
}

// Evict drops the rule with |cookie| after a switch-side flow-removed
// notification. Returns the evicted rule or nil.
func (t *FlowTable) Evict(cookie int) *FlowRule {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for k, r := range t.rules {
		if r.Cookie == cookie {
			delete(t.rules, k)
			return r
		}
	}
	return nil
}

func (t *FlowTable) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return len(t.rules)
}
