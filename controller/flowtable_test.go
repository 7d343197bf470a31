package controller

import (
	"errors"
	"testing"
)

func TestFlowTableInsertAndLookup(t *testing.T) {
	table := NewFlowTable()

	low := &FlowRule{
		Cookie:   1,
		Match:    Match{EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"},
		Actions:  []Action{OutputAction(2)},
		Priority: 100,
	}
	high := &FlowRule{
		Cookie:   2,
		Match:    Match{InPort: 1, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"},
		Actions:  []Action{OutputAction(3)},
		Priority: 1000,
	}

	if err := table.Insert(low); err != nil {
		t.Fatalf("Insert(low) failed: %v", err)
	}
	if err := table.Insert(high); err != nil {
		t.Fatalf("Insert(high) failed: %v", err)
	}

	got := table.Lookup(1, EthTypeIPv4, "10.0.0.100")
	if got == nil || got.Cookie != high.Cookie {
		t.Errorf("Lookup returned %+v, want the priority-1000 rule", got)
	}

	if table.Lookup(1, EthTypeIPv4, "10.0.0.99") != nil {
		t.Errorf("Lookup matched a destination no rule covers")
	}
}

func TestFlowTableIdempotentReinstall(t *testing.T) {
	table := NewFlowTable()
	m := Match{InPort: 1, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}

	if err := table.Insert(&FlowRule{Cookie: 1, Match: m, Actions: []Action{OutputAction(2)}, Priority: 1000}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := table.Insert(&FlowRule{Cookie: 2, Match: m, Actions: []Action{OutputAction(3)}, Priority: 1000}); err != nil {
		t.Fatalf("re-Insert of identical match/priority failed: %v", err)
	}

	if table.Len() != 1 {
		t.Fatalf("table has %d rules after idempotent reinstall, want 1", table.Len())
	}
	got := table.Lookup(1, EthTypeIPv4, "10.0.0.100")
	if got.Actions[0].Port != 3 {
		t.Errorf("reinstall did not replace actions: out port is %d, want 3", got.Actions[0].Port)
	}
}

func TestFlowTableRejectsOverlapAtSamePriority(t *testing.T) {
	table := NewFlowTable()

	if err := table.Insert(&FlowRule{
		Cookie:   1,
		Match:    Match{InPort: 1, EthType: EthTypeIPv4},
		Actions:  []Action{OutputAction(2)},
		Priority: 1000,
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Same priority, overlapping match (dst wildcarded on one side).
	err := table.Insert(&FlowRule{
		Cookie:   2,
		Match:    Match{InPort: 1, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"},
		Actions:  []Action{OutputAction(3)},
		Priority: 1000,
	})
	if !errors.Is(err, ErrInstallFailed) {
		t.Errorf("overlapping insert returned %v, want ErrInstallFailed", err)
	}

	// Same match shape is fine at a different priority band.
	if err := table.Insert(&FlowRule{
		Cookie:   3,
		Match:    Match{InPort: 1, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"},
		Actions:  []Action{OutputAction(3)},
		Priority: 2000,
	}); err != nil {
		t.Errorf("insert at a different priority returned %v, want nil", err)
	}
}

func TestFlowTableRemoveAndEvict(t *testing.T) {
	table := NewFlowTable()
	m := Match{InPort: 4, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.1"}

	if err := table.Insert(&FlowRule{Cookie: 7, Match: m, Actions: []Action{OutputAction(1)}, Priority: 1000}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed := table.Remove(m)
	if len(removed) != 1 || removed[0].Cookie != 7 {
		t.Fatalf("Remove returned %v, want the cookie-7 rule", removed)
	}
	if table.Len() != 0 {
		t.Errorf("table not empty after Remove")
	}

	if table.Evict(7) != nil {
		t.Errorf("Evict of an absent cookie returned a rule")
	}
}

func TestFlowTableQueryOrder(t *testing.T) {
	table := NewFlowTable()
	priorities := []int{0, 1000, 1}
	for i, p := range priorities {
		rule := &FlowRule{
			Cookie:   i,
			Match:    Match{InPort: uint32(i + 1), EthType: EthTypeIPv4},
			Actions:  []Action{OutputAction(1)},
			Priority: p,
		}
		if err := table.Insert(rule); err != nil {
			t.Fatalf("Insert priority=%d failed: %v", p, err)
		}
	}

	out := table.Query()
	if len(out) != 3 {
		t.Fatalf("Query returned %d rules, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Priority < out[i].Priority {
			t.Errorf("Query not sorted: priority %d before %d", out[i-1].Priority, out[i].Priority)
		}
	}
}

func TestFlowTableCountersIgnoreUnknownCookie(t *testing.T) {
	table := NewFlowTable()
	m := Match{InPort: 1, EthType: EthTypeIPv4, IPv4Dst: "10.0.0.100"}
	if err := table.Insert(&FlowRule{Cookie: 5, Match: m, Actions: []Action{OutputAction(2)}, Priority: 1000}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	table.UpdateCounters(5, 10, 1000)
	table.UpdateCounters(99, 500, 50000) // evicted rule's late stats

	got := table.Lookup(1, EthTypeIPv4, "10.0.0.100")
	if got.Packets != 10 || got.Bytes != 1000 {
		t.Errorf("counters are %d/%d, want 10/1000", got.Packets, got.Bytes)
	}
}
