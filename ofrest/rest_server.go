package ofrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	glog "github.com/golang/glog"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
)

// Server is the northbound REST surface: flow management, stats and
// topology queries, and training control. Routes follow the original
// controller's path scheme so existing tooling keeps working.
type Server struct {
	ctl   *controller.LBController
	agent *agent.DQNAgent
	http  *http.Server
}

func NewServer(addr string, ctl *controller.LBController, a *agent.DQNAgent) *Server {
	s := &Server{ctl: ctl, agent: a}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/flowentry/add", s.handleFlowEntryAdd)
	mux.HandleFunc("/stats/flowentry/clear", s.handleFlowEntryClear)
	mux.HandleFunc("/stats/switches", s.handleSwitches)
	mux.HandleFunc("/stats/flow/", s.handleFlowStats)
	mux.HandleFunc("/stats/port/", s.handlePortStats)
	mux.HandleFunc("/host_ports/", s.handleHostPorts)
	mux.HandleFunc("/vip/stats", s.handleVIPStats)
	mux.HandleFunc("/backend/loads", s.handleBackendLoads)
	mux.HandleFunc("/set_training_mode", s.handleSetTrainingMode)
	mux.HandleFunc("/agent/status", s.handleAgentStatus)
	mux.HandleFunc("/agent/checkpoint/save", s.handleCheckpointSave)
	mux.HandleFunc("/agent/checkpoint/load", s.handleCheckpointLoad)

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start serves until Shutdown. Blocks; run as a goroutine.
func (s *Server) Start() error {
	glog.Infof("REST surface listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorReply{Error: fmt.Sprintf(format, args...)})
}

// writeOpError maps the controller error taxonomy onto status codes:
// an unknown switch is the client's mistake (404), a rejected install
// is the southbound channel's (502).
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrSwitchDisconnected):
		writeError(w, http.StatusNotFound, "%v", err)
	case errors.Is(err, controller.ErrInstallFailed), errors.Is(err, controller.ErrPartialInstall):
		writeError(w, http.StatusBadGateway, "%v", err)
	default:
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}

// dpidFromPath parses the trailing /{dpid} path element.
func dpidFromPath(path, prefix string) (int64, error) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("path %q does not name a dpid", path)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *Server) handleFlowEntryAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req FlowEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed flow entry: %v", err)
		return
	}
	if len(req.Actions) == 0 {
		writeError(w, http.StatusBadRequest, "flow entry has no actions")
		return
	}

	err := s.ctl.InstallFlowEntry(req.Dpid, req.Match, req.Actions, req.Priority, req.IdleTimeout)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleFlowEntryClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req ClearFlowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed clear request: %v", err)
		return
	}
	if err := s.ctl.ClearFlows(req.Dpid); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSwitches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Switches())
}

func (s *Server) handleFlowStats(w http.ResponseWriter, r *http.Request) {
	dpid, err := dpidFromPath(r.URL.Path, "/stats/flow/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	sw := s.ctl.GetSwitch(dpid)
	if sw == nil {
		writeError(w, http.StatusNotFound, "dpid %d is not connected", dpid)
		return
	}

	rules := sw.Query()
	out := make([]FlowStatsReply, 0, len(rules))
	for _, rule := range rules {
		out = append(out, FlowStatsReply{
			Cookie:      rule.Cookie,
			Match:       rule.Match,
			Actions:     rule.Actions,
			Priority:    rule.Priority,
			IdleTimeout: rule.IdleTimeout,
			Packets:     rule.Packets,
			Bytes:       rule.Bytes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortStats(w http.ResponseWriter, r *http.Request) {
	dpid, err := dpidFromPath(r.URL.Path, "/stats/port/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	sw := s.ctl.GetSwitch(dpid)
	if sw == nil {
		writeError(w, http.StatusNotFound, "dpid %d is not connected", dpid)
		return
	}
	writeJSON(w, http.StatusOK, sw.PortStats())
}

func (s *Server) handleHostPorts(w http.ResponseWriter, r *http.Request) {
	dpid, err := dpidFromPath(r.URL.Path, "/host_ports/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	bindings := s.ctl.Topology().HostPorts(dpid)
	out := make([]HostPortReply, 0, len(bindings))
	for port, b := range bindings {
		out = append(out, HostPortReply{Port: port, MAC: b.MAC, IP: b.IP})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVIPStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctl.Stats())
}

func (s *Server) handleBackendLoads(w http.ResponseWriter, r *http.Request) {
	backends := s.ctl.Backends()
	out := make([]BackendLoadReply, 0, len(backends))
	for _, b := range backends {
		out = append(out, BackendLoadReply{Name: b.Name(), IP: b.IP(), Sample: b.Sample()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetTrainingMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req TrainingModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed training mode request: %v", err)
		return
	}

	s.agent.SetTrainingMode(req.Enabled)
	s.ctl.ResetEpisode()
	writeJSON(w, http.StatusOK, TrainingModeRequest{Enabled: req.Enabled})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AgentStatusReply{
		Training:   s.agent.TrainingMode(),
		Epsilon:    s.agent.Epsilon(),
		LearnSteps: s.agent.LearnSteps(),
		BufferLen:  s.agent.BufferLen(),
		ActionDim:  s.agent.ActionDim(),
	})
}

func (s *Server) handleCheckpointSave(w http.ResponseWriter, r *http.Request) {
	s.handleCheckpoint(w, r, s.agent.Save)
}

func (s *Server) handleCheckpointLoad(w http.ResponseWriter, r *http.Request) {
	s.handleCheckpoint(w, r, s.agent.Load)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request, op func(string) error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req CheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "checkpoint request needs a path")
		return
	}
	if err := op(req.Path); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
