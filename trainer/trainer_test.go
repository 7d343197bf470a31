package trainer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	agent "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/agent"
	config "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/config"
	controller "github.com/kaushik-bhattarai/DRL-SDN-LoadBalancer/controller"
)

// fakeLoop hands out one pending decision per window over a healthy
// two-backend snapshot.
type fakeLoop struct {
	mu     sync.Mutex
	resets int
	takes  int
}

func (f *fakeLoop) Snapshot(ctx context.Context) *controller.Snapshot {
	return &controller.Snapshot{
		Samples: []controller.LoadSample{
			{RTT: 0.010, LoadScore: 0.3},
			{RTT: 0.012, LoadScore: 0.4},
		},
		Time: time.Now(),
	}
}

func (f *fakeLoop) EncodeState(snap *controller.Snapshot) []float64 {
	return []float64{0, 0.5, 0.5, 0}
}

func (f *fakeLoop) TakePendingDecisions() []controller.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.takes++
	return []controller.Decision{
		{State: []float64{1, 0, 0, 0}, Action: f.takes % 2, Backend: "server1", Time: time.Now()},
	}
}

func (f *fakeLoop) ResetEpisode() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

type fakeTraffic struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (f *fakeTraffic) StartTraffic(ctx context.Context, episode int, duration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeTraffic) StopTraffic(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func trainerConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.DRL.StateDim = 4
	cfg.DRL.ActionDim = 2
	cfg.DRL.HiddenDim = 8
	cfg.Training.Episodes = 2
	cfg.Training.EpisodeDuration = 3
	cfg.Training.WindowSeconds = 0.001
	cfg.Training.BatchSize = 2
	cfg.Training.LearnInterval = 1
	cfg.Training.CheckpointEvery = 1
	cfg.Training.CheckpointDir = t.TempDir()
	return cfg
}

func TestTrainerRunsEpisodesAndLearns(t *testing.T) {
	cfg := trainerConfig(t)
	a := agent.NewDQNAgentSeeded(cfg, 1)
	loop := &fakeLoop{}
	traffic := &fakeTraffic{}

	tr := NewTrainer(cfg, loop, a, traffic)
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if a.TrainingMode() {
		t.Errorf("agent left in training mode")
	}
	if a.BufferLen() == 0 {
		t.Errorf("no transitions observed")
	}
	if a.LearnSteps() == 0 {
		t.Errorf("no learn steps taken")
	}
	if a.Epsilon() >= 1.0 {
		t.Errorf("epsilon never decayed: %f", a.Epsilon())
	}

	if loop.resets != cfg.Training.Episodes {
		t.Errorf("episode resets = %d, want %d", loop.resets, cfg.Training.Episodes)
	}
	if traffic.starts != cfg.Training.Episodes || traffic.stops != 1 {
		t.Errorf("traffic starts/stops = %d/%d, want %d/1", traffic.starts, traffic.stops, cfg.Training.Episodes)
	}

	for _, name := range []string{"episode_0001.json", "episode_0002.json", "final.json"} {
		if _, err := os.Stat(filepath.Join(cfg.Training.CheckpointDir, name)); err != nil {
			t.Errorf("checkpoint %s missing: %v", name, err)
		}
	}
}

// recordingLearner captures every transition the trainer observes.
type recordingLearner struct {
	mu          sync.Mutex
	transitions []agent.Transition
}

func (l *recordingLearner) Observe(tr agent.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, tr)
}

func (l *recordingLearner) CanLearn() bool          { return false }
func (l *recordingLearner) Learn() (float64, bool)  { return 0, false }
func (l *recordingLearner) SyncTarget()             {}
func (l *recordingLearner) SetTrainingMode(on bool) {}
func (l *recordingLearner) Save(path string) error  { return nil }
func (l *recordingLearner) Epsilon() float64        { return 0 }
func (l *recordingLearner) LearnSteps() int         { return 0 }

func TestTransitionsBootstrapFromPostWindowState(t *testing.T) {
	cfg := trainerConfig(t)
	cfg.Training.Episodes = 1
	loop := &fakeLoop{}
	rec := &recordingLearner{}

	if err := NewTrainer(cfg, loop, rec, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rec.transitions) != cfg.Training.EpisodeDuration {
		t.Fatalf("observed %d transitions, want %d", len(rec.transitions), cfg.Training.EpisodeDuration)
	}

	// Every window's decision bootstraps from the state encoded out
	// of the window-close snapshot, not from a decision-time state.
	want := loop.EncodeState(nil)
	for i, tr := range rec.transitions {
		for j := range want {
			if tr.NextState[j] != want[j] {
				t.Errorf("transition %d next state = %v, want %v", i, tr.NextState, want)
				break
			}
		}
		if tr.NextState[1] == tr.State[1] {
			t.Errorf("transition %d bootstraps from its own decision state", i)
		}
		if terminal := i == len(rec.transitions)-1; tr.Terminal != terminal {
			t.Errorf("transition %d terminal = %v, want %v", i, tr.Terminal, terminal)
		}
	}
}

func TestTrainerStopsOnContextCancel(t *testing.T) {
	cfg := trainerConfig(t)
	cfg.Training.Episodes = 10000
	cfg.Training.WindowSeconds = 0.005
	a := agent.NewDQNAgentSeeded(cfg, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewTrainer(cfg, &fakeLoop{}, a, nil).Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("trainer did not stop after cancellation")
	}

	if a.TrainingMode() {
		t.Errorf("agent left in training mode after cancellation")
	}
	// The stop still produced a resumable checkpoint.
	if _, err := os.Stat(filepath.Join(cfg.Training.CheckpointDir, "final.json")); err != nil {
		t.Errorf("final checkpoint missing after cancellation: %v", err)
	}
}
