package agent

import (
	"math/rand"
	"sync"
	"time"

	glog "github.com/golang/glog"

	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
)

// Gradients are rescaled to this global norm before every update.
const kGradClipNorm = 1.0

// DQNAgent selects one backend per new flow from a learned value
// function with epsilon-greedy exploration.
//
// Parameter access follows a single-writer, multiple-reader
// discipline: SelectAction takes a read lock and may run
// concurrently across simultaneous new-flow events; Learn takes the
// write lock for the parameter update and the target refresh.
// Each decision is stateless given the snapshot and the parameters,
// so the agent is safely restartable mid-episode from a checkpoint.
type DQNAgent struct {
	stateDim, hiddenDim, actionDim int
	gamma                          float64
	batchSize                      int
	targetSyncSteps                int
	epsilonMin, epsilonDecay       float64

	qNet      *ValueNetwork
	targetNet *ValueNetwork
	opt       *adam
	replay    *ReplayBuffer

	epsilon    float64
	learnSteps int
	training   bool

	paramMu sync.RWMutex
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// NewDQNAgent builds an agent from the DRL and training sections of
// the config. The agent starts in inference mode (epsilon = 0 in
// effect) until SetTrainingMode(true).
func NewDQNAgent(cfg *config.Config) *DQNAgent {
	return NewDQNAgentSeeded(cfg, time.Now().UnixNano())
}

// NewDQNAgentSeeded fixes the RNG seed; used by tests that need
// reproducible exploration and weight init.
func NewDQNAgentSeeded(cfg *config.Config, seed int64) *DQNAgent {
	rng := rand.New(rand.NewSource(seed))
	qNet := NewValueNetwork(cfg.DRL.StateDim, cfg.DRL.HiddenDim, cfg.DRL.ActionDim, rng)

	return &DQNAgent{
		stateDim:        cfg.DRL.StateDim,
		hiddenDim:       cfg.DRL.HiddenDim,
		actionDim:       cfg.DRL.ActionDim,
		gamma:           cfg.Training.Gamma,
		batchSize:       cfg.Training.BatchSize,
		targetSyncSteps: cfg.Training.TargetSyncSteps,
		epsilonMin:      cfg.DRL.EpsilonMin,
		epsilonDecay:    cfg.DRL.EpsilonDecay,
		qNet:            qNet,
		targetNet:       qNet.Clone(),
		opt:             newAdam(qNet, cfg.DRL.LearningRate),
		replay:          NewReplayBuffer(cfg.Training.MemorySize),
		epsilon:         cfg.DRL.EpsilonStart,
		rng:             rng,
	}
}

// SelectAction returns the backend index for |state|. In training
// mode it explores with the current epsilon; otherwise it is purely
// greedy and deterministic for fixed state and parameters.
func (a *DQNAgent) SelectAction(state []float64) int {
	a.paramMu.RLock()
	training := a.training
	eps := a.epsilon
	a.paramMu.RUnlock()

	if training && eps > 0 {
		a.rngMu.Lock()
		explore := a.rng.Float64() < eps
		action := a.rng.Intn(a.actionDim)
		a.rngMu.Unlock()
		if explore {
			return action
		}
	}

	a.paramMu.RLock()
	values := a.qNet.Forward(state)
	a.paramMu.RUnlock()
	return ArgMax(values)
}

// Observe appends one transition to the replay buffer.
func (a *DQNAgent) Observe(t Transition) {
	a.replay.Append(t)
}

// CanLearn reports whether the buffer holds at least one mini-batch.
func (a *DQNAgent) CanLearn() bool {
	return a.replay.Len() >= a.batchSize
}

// Learn samples a mini-batch and performs one temporal-difference
// update: target = reward + gamma * max_a Q_target(next, a), or just
// the reward for terminal transitions. Targets come from the
// periodically-synchronized target network so the update does not
// chase itself. Returns the batch MSE and whether an update ran.
func (a *DQNAgent) Learn() (float64, bool) {
	a.rngMu.Lock()
	batch := a.replay.Sample(a.batchSize, a.rng)
	a.rngMu.Unlock()
	if batch == nil {
		return 0, false
	}

	a.paramMu.Lock()
	defer a.paramMu.Unlock()

	grads := newGradients(a.qNet)
	scale := 1.0 / float64(len(batch))

	loss := 0.0
	for _, t := range batch {
		target := t.Reward
		if !t.Terminal {
			next := a.targetNet.Forward(t.NextState)
			target += a.gamma * next[ArgMax(next)]
		}
		loss += a.qNet.accumulate(grads, t.State, t.Action, target, scale)
	}
	loss *= scale

	grads.clip(kGradClipNorm)
	a.opt.step(a.qNet, grads)

	a.learnSteps++
	if a.learnSteps%a.targetSyncSteps == 0 {
		a.targetNet.CopyFrom(a.qNet)
		glog.V(1).Infof("Target network refreshed at learn step %d", a.learnSteps)
	}

	// Epsilon decays per learn step toward its floor.
	a.epsilon *= a.epsilonDecay
	if a.epsilon < a.epsilonMin {
		a.epsilon = a.epsilonMin
	}
	return loss, true
}

// SyncTarget forces a target-network refresh, called at episode end.
func (a *DQNAgent) SyncTarget() {
	a.paramMu.Lock()
	a.targetNet.CopyFrom(a.qNet)
	a.paramMu.Unlock()
}

// SetTrainingMode toggles exploration. Inference mode is pure greedy
// (epsilon = 0 in effect) regardless of the stored epsilon.
func (a *DQNAgent) SetTrainingMode(on bool) {
	a.paramMu.Lock()
	a.training = on
	a.paramMu.Unlock()
	glog.Infof("Training mode set to %v", on)
}

func (a *DQNAgent) TrainingMode() bool {
	a.paramMu.RLock()
	defer a.paramMu.RUnlock()
	return a.training
}

func (a *DQNAgent) Epsilon() float64 {
	a.paramMu.RLock()
	defer a.paramMu.RUnlock()
	return a.epsilon
}

func (a *DQNAgent) LearnSteps() int {
	a.paramMu.RLock()
	defer a.paramMu.RUnlock()
	return a.learnSteps
}

func (a *DQNAgent) BufferLen() int {
	return a.replay.Len()
}

func (a *DQNAgent) ActionDim() int {
	return a.actionDim
}
