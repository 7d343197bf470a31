package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	ofrest "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/ofrest"
)

// Executor runs shell commands against the controller's REST
// surface, so the same shell works in-process or against a remote
// controller.
type Executor struct {
	client *ofrest.Client
}

func NewExecutor(client *ofrest.Client) *Executor {
	return &Executor{
		client: client,
	}
}

func (e *Executor) Execute(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	} else if s == "quit" {
		os.Exit(0)
	}

	words := strings.Fields(s)

	if words[0] == "switches" {
		e.printSwitches()
	} else if words[0] == "flows" && len(words) == 2 {
		e.printFlows(words[1])
	} else if words[0] == "ports" && len(words) == 2 {
		e.printPorts(words[1])
	} else if words[0] == "hosts" && len(words) == 2 {
		e.printHosts(words[1])
	} else if words[0] == "loads" {
		e.printLoads()
	} else if words[0] == "stats" {
		e.printStats()
	} else if words[0] == "agent" {
		e.printAgent()
	} else if words[0] == "train" && len(words) == 2 {
		e.setTraining(words[1])
	} else if words[0] == "save" && len(words) == 2 {
		e.checkpoint(words[1], e.client.SaveCheckpoint)
	} else if words[0] == "load" && len(words) == 2 {
		e.checkpoint(words[1], e.client.LoadCheckpoint)
	} else if words[0] == "clear" && len(words) == 2 {
		e.clearFlows(words[1])
	} else {
		fmt.Printf("Unknown command: %s\n", s)
	}
}

func parseDpid(raw string) (int64, bool) {
	dpid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Printf("Bad dpid %q\n", raw)
		return 0, false
	}
	return dpid, true
}

func (e *Executor) printSwitches() {
	switches, err := e.client.Switches()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%d switch(es) connected\n", len(switches))
	for _, dpid := range switches {
		fmt.Printf("  dpid=%d\n", dpid)
	}
}

func (e *Executor) printFlows(raw string) {
	dpid, ok := parseDpid(raw)
	if !ok {
		return
	}
	rules, err := e.client.FlowStats(dpid)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%d rule(s) on dpid=%d\n", len(rules), dpid)
	for _, r := range rules {
		out := uint32(0)
		if len(r.Actions) > 0 {
			out = r.Actions[0].Port
		}
		fmt.Printf("  cookie=%d prio=%d in_port=%d dst=%s -> out=%d (idle=%ds, %d pkts)\n",
			r.Cookie, r.Priority, r.Match.InPort, r.Match.IPv4Dst, out, r.IdleTimeout, r.Packets)
	}
}

func (e *Executor) printPorts(raw string) {
	dpid, ok := parseDpid(raw)
	if !ok {
		return
	}
	stats, err := e.client.PortStats(dpid)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for port, tx := range stats {
		fmt.Printf("  port=%s tx_bytes=%d\n", port, tx)
	}
}

func (e *Executor) printHosts(raw string) {
	dpid, ok := parseDpid(raw)
	if !ok {
		return
	}
	hosts, err := e.client.HostPorts(dpid)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, h := range hosts {
		fmt.Printf("  port=%d mac=%s ip=%s\n", h.Port, h.MAC, h.IP)
	}
}

func (e *Executor) printLoads() {
	loads, err := e.client.BackendLoads()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, b := range loads {
		s := b.Sample
		if s.Unknown {
			fmt.Printf("  %s (%s): unknown\n", b.Name, b.IP)
			continue
		}
		fmt.Printf("  %s (%s): cpu=%.0f%% mem=%.0f%% rtt=%.1fms conns=%d load=%.2f\n",
			b.Name, b.IP, s.CPU*100, s.Memory*100, s.RTT*1000, s.Connections, s.LoadScore)
	}
}

func (e *Executor) printStats() {
	stats, err := e.client.VIPStats()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("vip=%v total_requests=%v\n", stats["vip"], stats["total_requests"])
	if per, ok := stats["per_backend"].(map[string]interface{}); ok {
		for name, n := range per {
			fmt.Printf("  %s: %v\n", name, n)
		}
	}
}

func (e *Executor) printAgent() {
	status, err := e.client.AgentStatus()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("training=%v epsilon=%.3f learn_steps=%d buffer=%d actions=%d\n",
		status.Training, status.Epsilon, status.LearnSteps, status.BufferLen, status.ActionDim)
}

func (e *Executor) setTraining(mode string) {
	if mode != "on" && mode != "off" {
		fmt.Printf("Usage: train on|off\n")
		return
	}
	if err := e.client.SetTrainingMode(mode == "on"); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Training mode set to %s\n", mode)
}

func (e *Executor) checkpoint(path string, op func(string) error) {
	if err := op(path); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("OK: %s\n", path)
}

func (e *Executor) clearFlows(raw string) {
	dpid, ok := parseDpid(raw)
	if !ok {
		return
	}
	if err := e.client.ClearFlows(dpid); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Cleared all rules on dpid=%d\n", dpid)
}
