package controller

import (
	"fmt"
	"sync"
	"time"
)

// LoadSample is one backend load reading. A failed poll yields the
// sentinel sample (|Unknown| set, worst-case fields) so a decision
// cycle never fails on telemetry; the engine must treat it as
// do-not-prefer.
type LoadSample struct {
	CPU         float64   `json:"cpu"`         // 0..1
	Memory      float64   `json:"memory"`      // 0..1
	RTT         float64   `json:"rtt"`         // seconds
	Connections int       `json:"connections"`
	LoadScore   float64   `json:"load_score"` // 0..1, derived
	Unknown     bool      `json:"unknown,omitempty"`
	Time        time.Time `json:"-"`
}

// loadScore folds a sample into a single 0..1 load figure.
// CPU dominates; connections saturate at 1000.
func loadScore(cpu, memory float64, connections int) float64 {
	conns := float64(connections) / 1000.0
	if conns > 1.0 {
		conns = 1.0
	}
	score := 0.6*cpu + 0.2*memory + 0.2*conns
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// unknownSample is the worst-case sentinel used when a backend poll
// fails or times out.
func unknownSample(pollTimeout time.Duration) LoadSample {
	return LoadSample{
		CPU:       1.0,
		Memory:    1.0,
		RTT:       pollTimeout.Seconds(),
		LoadScore: 1.0,
		Unknown:   true,
		Time:      time.Now(),
	}
}

// Backend is one server behind the virtual IP.
// |dpid| and |port| locate it on its edge switch. |sample| is the
// last-known load; written only by the telemetry collector, read by
// the decision path.
type Backend struct {
	name       string
	ip         string
	dpid       int64
	port       uint32
	metricsURL string

	sample LoadSample
	mutex  sync.Mutex
}

func newBackend(name, ip string, dpid int64, port uint32, metricsURL string) *Backend {
	return &Backend{
		name:       name,
		ip:         ip,
		dpid:       dpid,
		port:       port,
		metricsURL: metricsURL,
		sample:     LoadSample{Unknown: true, CPU: 1.0, Memory: 1.0, LoadScore: 1.0},
	}
}

func (b *Backend) Name() string { return b.name }
func (b *Backend) IP() string   { return b.ip }
func (b *Backend) Dpid() int64  { return b.dpid }
func (b *Backend) Port() uint32 { return b.port }

func (b *Backend) Sample() LoadSample {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.sample
}

func (b *Backend) setSample(s LoadSample) {
	b.mutex.Lock()
	b.sample = s
	b.mutex.Unlock()
}

func (b *Backend) String() string {
	s := b.Sample()
	return fmt.Sprintf("%s[%s dpid=%d port=%d cpu=%.0f%% rtt=%.1fms load=%.2f unknown=%v]",
		b.name, b.ip, b.dpid, b.port, s.CPU*100, s.RTT*1000, s.LoadScore, s.Unknown)
}
