package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	glog "github.com/golang/glog"
)

const kCheckpointVersion = 1

// checkpoint is the on-disk form of the policy parameters. Loading a
// checkpoint swaps the approximator weights without touching any
// installed flow rules.
type checkpoint struct {
	Version    int           `json:"version"`
	QNet       *ValueNetwork `json:"q_net"`
	TargetNet  *ValueNetwork `json:"target_net"`
	Epsilon    float64       `json:"epsilon"`
	LearnSteps int           `json:"learn_steps"`
}

// Save writes the current parameters to |path|, creating parent
// directories. The write goes through a temp file and rename so a
// crash never leaves a torn checkpoint.
func (a *DQNAgent) Save(path string) error {
	a.paramMu.RLock()
	cp := checkpoint{
		Version:    kCheckpointVersion,
		QNet:       a.qNet.Clone(),
		TargetNet:  a.targetNet.Clone(),
		Epsilon:    a.epsilon,
		LearnSteps: a.learnSteps,
	}
	a.paramMu.RUnlock()

	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %w", err)
	}

	glog.Infof("Model saved to %s (epsilon=%.3f, steps=%d)", path, cp.Epsilon, cp.LearnSteps)
	return nil
}

// Load replaces the agent's parameters with the checkpoint at
// |path|. The checkpoint must match the configured network shape.
func (a *DQNAgent) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	if cp.Version != kCheckpointVersion {
		return fmt.Errorf("checkpoint %s has unsupported version %d", path, cp.Version)
	}
	if cp.QNet == nil || cp.TargetNet == nil {
		return fmt.Errorf("checkpoint %s is missing network parameters", path)
	}
	if err := cp.QNet.validate(a.stateDim, a.hiddenDim, a.actionDim); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}
	if err := cp.TargetNet.validate(a.stateDim, a.hiddenDim, a.actionDim); err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}

	a.paramMu.Lock()
	a.qNet = cp.QNet
	a.targetNet = cp.TargetNet
	a.opt = newAdam(a.qNet, a.opt.lr)
	a.epsilon = cp.Epsilon
	a.learnSteps = cp.LearnSteps
	a.paramMu.Unlock()

	glog.Infof("Model loaded from %s (epsilon=%.3f, steps=%d)", path, cp.Epsilon, cp.LearnSteps)
	return nil
}
