package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	body := `
drl:
  action_dim: 4
reward:
  alpha: 2.5
network:
  virtual_ip: 10.0.0.200
  backends:
    - name: h1
      ip: 10.0.0.1
      dpid: 200
      port: 3
      metrics_url: http://10.0.0.1:9100/metrics
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DRL.ActionDim != 4 {
		t.Errorf("action_dim not overridden: %d", cfg.DRL.ActionDim)
	}
	if cfg.DRL.HiddenDim != 64 {
		t.Errorf("defaults lost on overlay: hidden_dim=%d", cfg.DRL.HiddenDim)
	}
	if cfg.RewardWeights.Alpha != 2.5 {
		t.Errorf("alpha not overridden: %v", cfg.RewardWeights.Alpha)
	}
	if cfg.Network.VirtualIP != "10.0.0.200" {
		t.Errorf("virtual_ip not overridden: %s", cfg.Network.VirtualIP)
	}
	if len(cfg.Network.Backends) != 1 || cfg.Network.Backends[0].Dpid != 200 {
		t.Errorf("backends not parsed: %+v", cfg.Network.Backends)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero state dim", func(c *Config) { c.DRL.StateDim = 0 }},
		{"decay above one", func(c *Config) { c.DRL.EpsilonDecay = 1.5 }},
		{"gamma one", func(c *Config) { c.Training.Gamma = 1.0 }},
		{"memory below batch", func(c *Config) { c.Training.MemorySize = 8 }},
		{"missing vip", func(c *Config) { c.Network.VirtualIP = "" }},
		{"flow priority in flood band", func(c *Config) { c.Network.FlowPriority = 1 }},
		{"backend steals vip", func(c *Config) {
			c.Network.Backends = []Backend{{Name: "h1", IP: c.Network.VirtualIP, Port: 3}}
		}},
	}

	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
