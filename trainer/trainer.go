package trainer

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	glog "github.com/golang/glog"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
)

// ControlLoop is the trainer's view of the load balancer: observe
// the network, encode observations, and collect the decisions
// awaiting reward closure.
type ControlLoop interface {
	Snapshot(ctx context.Context) *controller.Snapshot
	EncodeState(snap *controller.Snapshot) []float64
	TakePendingDecisions() []controller.Decision
	ResetEpisode()
}

// Learner is the trainer's side of the decision agent. Satisfied by
// agent.DQNAgent.
type Learner interface {
	Observe(t agent.Transition)
	CanLearn() bool
	Learn() (float64, bool)
	SyncTarget()
	SetTrainingMode(on bool)
	Save(path string) error
	Epsilon() float64
	LearnSteps() int
}

// TrafficGen drives synthetic load during episodes. Implemented by
// ofrest.OfctlHandler over the traffic control channel; a no-op
// implementation trains against live traffic only.
type TrafficGen interface {
	StartTraffic(ctx context.Context, episode int, duration time.Duration) error
	StopTraffic(ctx context.Context) error
}

// NopTraffic trains against whatever traffic already flows.
type NopTraffic struct{}

func (NopTraffic) StartTraffic(ctx context.Context, episode int, duration time.Duration) error {
	return nil
}
func (NopTraffic) StopTraffic(ctx context.Context) error { return nil }

// Trainer closes the decision-reward loop: it windows time, scores
// each window's telemetry snapshot, converts the window's decisions
// into transitions, and drives the agent's learning schedule.
type Trainer struct {
	cfg     *config.Config
	loop    ControlLoop
	agent   Learner
	traffic TrafficGen
}

func NewTrainer(cfg *config.Config, loop ControlLoop, a Learner, traffic TrafficGen) *Trainer {
	if traffic == nil {
		traffic = NopTraffic{}
	}
	return &Trainer{
		cfg:     cfg,
		loop:    loop,
		agent:   a,
		traffic: traffic,
	}
}

// Run executes the configured number of episodes, or fewer if |ctx|
// is cancelled. Training mode is active only while Run is; a final
// checkpoint is written on the way out.
func (t *Trainer) Run(ctx context.Context) error {
	t.agent.SetTrainingMode(true)
	defer t.agent.SetTrainingMode(false)
	defer t.traffic.StopTraffic(context.Background())

	glog.Infof("Training for %d episodes, %d windows each",
		t.cfg.Training.Episodes, t.cfg.Training.EpisodeDuration)

	for ep := 1; ep <= t.cfg.Training.Episodes; ep++ {
		if ctx.Err() != nil {
			glog.Warningf("Training stopped at episode %d: %v", ep, ctx.Err())
			break
		}

		summary := t.runEpisode(ctx, ep)
		t.agent.SyncTarget()
		glog.Infof("Episode %d/%d: %s", ep, t.cfg.Training.Episodes, summary)

		if t.cfg.Training.CheckpointEvery > 0 && ep%t.cfg.Training.CheckpointEvery == 0 {
			t.checkpoint(fmt.Sprintf("episode_%04d.json", ep))
		}
	}

	t.checkpoint("final.json")
	return ctx.Err()
}

// episodeSummary aggregates one episode for logging.
type episodeSummary struct {
	windows    int
	decisions  int
	rewardSum  float64
	lossSum    float64
	lossCount  int
	actionHist map[int]int
}

func (s *episodeSummary) String() string {
	avgReward := 0.0
	if s.windows > 0 {
		avgReward = s.rewardSum / float64(s.windows)
	}
	avgLoss := math.NaN()
	if s.lossCount > 0 {
		avgLoss = s.lossSum / float64(s.lossCount)
	}
	return fmt.Sprintf("windows=%d decisions=%d avg_reward=%.3f avg_loss=%.5f actions=%v",
		s.windows, s.decisions, avgReward, avgLoss, s.actionHist)
}

func (t *Trainer) runEpisode(ctx context.Context, episode int) *episodeSummary {
	t.loop.ResetEpisode()

	windowLen := time.Duration(t.cfg.Training.WindowSeconds * float64(time.Second))
	episodeLen := time.Duration(t.cfg.Training.EpisodeDuration) * windowLen
	if err := t.traffic.StartTraffic(ctx, episode, episodeLen); err != nil {
		glog.Warningf("Traffic trigger for episode %d failed: %v", episode, err)
	}

	summary := &episodeSummary{actionHist: make(map[int]int)}
	for w := 0; w < t.cfg.Training.EpisodeDuration; w++ {
		select {
		case <-ctx.Done():
			return summary
		case <-time.After(windowLen):
		}

		terminal := w == t.cfg.Training.EpisodeDuration-1
		reward, ok := t.closeWindow(ctx, terminal, summary)
		if ok {
			summary.windows++
			summary.rewardSum += reward
		}

		if t.cfg.Training.LearnInterval > 0 && (w+1)%t.cfg.Training.LearnInterval == 0 && t.agent.CanLearn() {
			if loss, ran := t.agent.Learn(); ran {
				summary.lossSum += loss
				summary.lossCount++
			}
		}
	}
	return summary
}

// closeWindow snapshots telemetry, scores it, and converts every
// decision taken during the window into a transition against that
// shared reward. The post-window snapshot is encoded once and serves
// as the next state for all of the window's decisions, so TD targets
// bootstrap from the metrics the decisions produced.
func (t *Trainer) closeWindow(ctx context.Context, terminal bool, summary *episodeSummary) (float64, bool) {
	snap := t.loop.Snapshot(ctx)
	reward := controller.ComputeReward(snap, t.cfg.RewardWeights)
	next := t.loop.EncodeState(snap)

	for _, d := range t.loop.TakePendingDecisions() {
		t.agent.Observe(agent.Transition{
			State:     d.State,
			Action:    d.Action,
			Reward:    reward,
			NextState: next,
			Terminal:  terminal,
		})
		summary.decisions++
		summary.actionHist[d.Action]++
	}
	return reward, true
}

func (t *Trainer) checkpoint(name string) {
	path := filepath.Join(t.cfg.Training.CheckpointDir, name)
	if err := t.agent.Save(path); err != nil {
		glog.Errorf("Checkpoint %s failed: %v", path, err)
		return
	}
	glog.Infof("Checkpoint written to %s (epsilon=%.3f, %d learn steps)",
		path, t.agent.Epsilon(), t.agent.LearnSteps())
}
