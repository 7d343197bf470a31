package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// DRL holds the value-network and exploration hyperparameters.
type DRL struct {
	StateDim     int     `yaml:"state_dim"`
	ActionDim    int     `yaml:"action_dim"`
	HiddenDim    int     `yaml:"hidden_dim"`
	LearningRate float64 `yaml:"learning_rate"`
	EpsilonStart float64 `yaml:"epsilon_start"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
}

// Training holds the episode and replay settings.
type Training struct {
	Episodes        int     `yaml:"episodes"`
	EpisodeDuration int     `yaml:"episode_duration"` // decision windows per episode
	WindowSeconds   float64 `yaml:"window_seconds"`   // observation interval per window
	BatchSize       int     `yaml:"batch_size"`
	Gamma           float64 `yaml:"gamma"`
	MemorySize      int     `yaml:"memory_size"`
	LearnInterval   int     `yaml:"learn_interval"`    // windows between Learn() calls
	TargetSyncSteps int     `yaml:"target_sync_steps"` // learn steps between target refreshes
	CheckpointEvery int     `yaml:"checkpoint_every"`  // episodes between checkpoints
	CheckpointDir   string  `yaml:"checkpoint_dir"`
}

// RewardWeights is the tunable weighted-sum reward configuration.
// The sign convention is fixed: lower latency and lower cross-server
// load variance always yield a higher reward.
type RewardWeights struct {
	Alpha float64 `yaml:"alpha"` // latency term
	Beta  float64 `yaml:"beta"`  // load-variance term
}

// Backend describes one server behind the virtual IP.
type Backend struct {
	Name       string `yaml:"name"`
	IP         string `yaml:"ip"`
	Dpid       int64  `yaml:"dpid"` // edge switch the server hangs off
	Port       uint32 `yaml:"port"` // switch port toward the server
	MetricsURL string `yaml:"metrics_url"`
}

// Network holds the data-plane facing settings.
type Network struct {
	VirtualIP       string        `yaml:"virtual_ip"`
	VirtualMAC      string        `yaml:"virtual_mac"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RestListenAddr  string        `yaml:"rest_listen_addr"`
	FlowPriority    int           `yaml:"flow_priority"`
	FlowIdleTimeout int           `yaml:"flow_idle_timeout"` // seconds
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	Backends        []Backend     `yaml:"backends"`
}

type Config struct {
	DRL           DRL           `yaml:"drl"`
	Training      Training      `yaml:"training"`
	RewardWeights RewardWeights `yaml:"reward"`
	Network       Network       `yaml:"network"`
}

// Default returns a config matching a 3-backend fat-tree testbed.
func Default() *Config {
	return &Config{
		DRL: DRL{
			StateDim:     18,
			ActionDim:    3,
			HiddenDim:    64,
			LearningRate: 0.001,
			EpsilonStart: 1.0,
			EpsilonMin:   0.05,
			EpsilonDecay: 0.995,
		},
		Training: Training{
			Episodes:        50,
			EpisodeDuration: 60,
			WindowSeconds:   1.0,
			BatchSize:       32,
			Gamma:           0.95,
			MemorySize:      10000,
			LearnInterval:   1,
			TargetSyncSteps: 100,
			CheckpointEvery: 10,
			CheckpointDir:   "models/checkpoints",
		},
		RewardWeights: RewardWeights{
			Alpha: 10.0,
			Beta:  1.0,
		},
		Network: Network{
			VirtualIP:       "10.0.0.100",
			VirtualMAC:      "00:00:00:00:01:00",
			RedisAddr:       "127.0.0.1:6379",
			RestListenAddr:  ":8080",
			FlowPriority:    1000,
			FlowIdleTimeout: 30,
			PollTimeout:     2 * time.Second,
		},
	}
}

// Load reads |path| and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DRL.StateDim <= 0 || c.DRL.ActionDim <= 0 || c.DRL.HiddenDim <= 0 {
		return fmt.Errorf("drl dimensions must be positive (state=%d action=%d hidden=%d)",
			c.DRL.StateDim, c.DRL.ActionDim, c.DRL.HiddenDim)
	}
	if c.DRL.EpsilonDecay <= 0 || c.DRL.EpsilonDecay > 1 {
		return fmt.Errorf("epsilon_decay must be in (0, 1], got %v", c.DRL.EpsilonDecay)
	}
	if c.DRL.EpsilonMin < 0 || c.DRL.EpsilonMin > c.DRL.EpsilonStart {
		return fmt.Errorf("epsilon_min must be in [0, epsilon_start], got %v", c.DRL.EpsilonMin)
	}
	if c.Training.Gamma < 0 || c.Training.Gamma >= 1 {
		return fmt.Errorf("gamma must be in [0, 1), got %v", c.Training.Gamma)
	}
	if c.Training.BatchSize <= 0 || c.Training.MemorySize < c.Training.BatchSize {
		return fmt.Errorf("memory_size (%d) must hold at least one batch (%d)",
			c.Training.MemorySize, c.Training.BatchSize)
	}
	if c.Training.TargetSyncSteps <= 0 {
		return fmt.Errorf("target_sync_steps must be positive, got %d", c.Training.TargetSyncSteps)
	}
	if c.Network.VirtualIP == "" {
		return fmt.Errorf("virtual_ip must be set")
	}
	if c.Network.FlowPriority <= 1 {
		return fmt.Errorf("flow_priority must sit above the ARP/flood band, got %d", c.Network.FlowPriority)
	}
	for i, b := range c.Network.Backends {
		if b.Name == "" || b.IP == "" || b.Port == 0 {
			return fmt.Errorf("backend %d is missing name, ip or port", i)
		}
		if b.IP == c.Network.VirtualIP {
			return fmt.Errorf("backend %s may not use the virtual IP", b.Name)
		}
	}
	return nil
}
