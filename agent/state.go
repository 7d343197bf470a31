package agent

import (
	"sync"
)

// Features encoded per backend.
const kFeaturesPerBackend = 6

// Normalization scales, matching the original training setup:
// 100ms RTT saturates the latency feature, 100 connections/window
// saturates the churn feature, ±50ms bounds the trend feature.
const (
	kRTTScale       = 0.1
	kConnRateScale  = 100.0
	kRTTTrendWindow = 0.05
)

// Observation is the per-backend input to state encoding. It mirrors
// one telemetry load sample; |Unknown| marks the worst-case sentinel
// produced when a backend could not be polled.
type Observation struct {
	CPU         float64
	Memory      float64
	RTT         float64
	Connections int
	LoadScore   float64
	Unknown     bool
}

// StateBuilder turns a row of backend observations into the fixed
// size vector the value network consumes. It remembers the previous
// row so it can encode connection churn and RTT trend; that memory
// never outlives one decision cycle's distance.
type StateBuilder struct {
	stateDim int
	prev     map[int]Observation
	mutex    sync.Mutex
}

func NewStateBuilder(stateDim int) *StateBuilder {
	return &StateBuilder{
		stateDim: stateDim,
		prev:     make(map[int]Observation),
	}
}

// Build encodes |obs| (in stable backend order) into a state vector
// of exactly stateDim entries, padding with zeros or truncating.
// An unknown observation encodes as the most conservative signal so
// greedy selection never prefers an unpolled backend.
func (b *StateBuilder) Build(obs []Observation) []float64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	state := make([]float64, 0, len(obs)*kFeaturesPerBackend)
	for i, o := range obs {
		if o.Unknown {
			state = append(state, 1.0, 1.0, 1.0, 1.0, 1.0, 0.0)
			b.prev[i] = o
			continue
		}

		rtt := o.RTT / kRTTScale
		if rtt > 1.0 {
			rtt = 1.0
		}

		prev, seen := b.prev[i]
		connRate := 0.0
		rttTrend := 0.5
		if seen && !prev.Unknown {
			delta := float64(o.Connections - prev.Connections)
			if delta < 0 {
				delta = -delta
			}
			connRate = delta / kConnRateScale
			if connRate > 1.0 {
				connRate = 1.0
			}

			trend := (prev.RTT - o.RTT) / kRTTTrendWindow
			if trend > 0.5 {
				trend = 0.5
			}
			if trend < -0.5 {
				trend = -0.5
			}
			rttTrend = 0.5 + trend
		}

		state = append(state, o.CPU, o.Memory, rtt, o.LoadScore, connRate, rttTrend)
		b.prev[i] = o
	}

	if len(state) >= b.stateDim {
		return state[:b.stateDim]
	}
	padded := make([]float64, b.stateDim)
	copy(padded, state)
	return padded
}

// Reset clears the previous-row memory, used at episode boundaries.
func (b *StateBuilder) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.prev = make(map[int]Observation)
}
