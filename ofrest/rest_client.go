package ofrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the typed consumer of the REST surface, used by the
// interactive shell and by external tooling. Every request carries
// the client timeout.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: timeout},
	}
}

// do issues one request. |in| (if non-nil) is the JSON body; |out|
// (if non-nil) receives the decoded reply. Non-2xx replies decode
// the server's error body into the returned error.
func (c *Client) do(method, path string, in, out interface{}) error {
	var body *bytes.Buffer
	if in != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var reply errorReply
		if json.NewDecoder(resp.Body).Decode(&reply) == nil && reply.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, reply.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) Switches() ([]int64, error) {
	var out []int64
	err := c.do(http.MethodGet, "/stats/switches", nil, &out)
	return out, err
}

func (c *Client) FlowStats(dpid int64) ([]FlowStatsReply, error) {
	var out []FlowStatsReply
	err := c.do(http.MethodGet, fmt.Sprintf("/stats/flow/%d", dpid), nil, &out)
	return out, err
}

func (c *Client) PortStats(dpid int64) (map[string]uint64, error) {
	out := make(map[string]uint64)
	err := c.do(http.MethodGet, fmt.Sprintf("/stats/port/%d", dpid), nil, &out)
	return out, err
}

func (c *Client) HostPorts(dpid int64) ([]HostPortReply, error) {
	var out []HostPortReply
	err := c.do(http.MethodGet, fmt.Sprintf("/host_ports/%d", dpid), nil, &out)
	return out, err
}

func (c *Client) VIPStats() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	err := c.do(http.MethodGet, "/vip/stats", nil, &out)
	return out, err
}

func (c *Client) BackendLoads() ([]BackendLoadReply, error) {
	var out []BackendLoadReply
	err := c.do(http.MethodGet, "/backend/loads", nil, &out)
	return out, err
}

func (c *Client) InstallFlowEntry(req FlowEntryRequest) error {
	return c.do(http.MethodPost, "/stats/flowentry/add", req, nil)
}

func (c *Client) ClearFlows(dpid int64) error {
	return c.do(http.MethodPost, "/stats/flowentry/clear", ClearFlowsRequest{Dpid: dpid}, nil)
}

func (c *Client) SetTrainingMode(enabled bool) error {
	return c.do(http.MethodPost, "/set_training_mode", TrainingModeRequest{Enabled: enabled}, nil)
}

func (c *Client) AgentStatus() (AgentStatusReply, error) {
	var out AgentStatusReply
	err := c.do(http.MethodGet, "/agent/status", nil, &out)
	return out, err
}

func (c *Client) SaveCheckpoint(path string) error {
	return c.do(http.MethodPost, "/agent/checkpoint/save", CheckpointRequest{Path: path}, nil)
}

func (c *Client) LoadCheckpoint(path string) error {
	return c.do(http.MethodPost, "/agent/checkpoint/load", CheckpointRequest{Path: path}, nil)
}
