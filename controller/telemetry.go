package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	glog "github.com/golang/glog"
)

// Switches publish fresh counters on this cadence.
const kStatsRequestInterval = 5 * time.Second

// Snapshot is one telemetry cut across all backends, taken once per
// decision or training window. |Samples| preserves the configured
// backend order so state encoding is stable across snapshots.
type Snapshot struct {
	Samples     []LoadSample
	RecentFlows int
	Time        time.Time
}

// backendMetricsBody is the JSON a backend's metrics endpoint serves.
// RTT is not trusted from the body; the collector measures the HTTP
// round trip itself.
type backendMetricsBody struct {
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	Connections int     `json:"connections"`
}

// Collector pulls load samples from backend servers and counters
// from switches into a single snapshot. Polls are time-bounded; a
// poll that misses its deadline yields the unknown-load sentinel
// instead of stalling the decision path.
type Collector struct {
	backends []*Backend
	client   *http.Client
	timeout  time.Duration
}

func NewCollector(backends []*Backend, pollTimeout time.Duration) *Collector {
	return &Collector{
		backends: backends,
		client:   &http.Client{Timeout: pollTimeout},
		timeout:  pollTimeout,
	}
}

// PollBackend fetches one load sample. Never returns an error: an
// unreachable backend produces the worst-case sentinel sample.
func (c *Collector) PollBackend(ctx context.Context, b *Backend) LoadSample {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.metricsURL, nil)
	if err != nil {
		glog.Errorf("Bad metrics URL for backend %s: %v", b.name, err)
		return unknownSample(c.timeout)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		glog.Warningf("Backend %s poll failed: %v (%v)", b.name, err, ErrUnknownLoad)
		return unknownSample(c.timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		glog.Warningf("Backend %s poll returned %d (%v)", b.name, resp.StatusCode, ErrUnknownLoad)
		return unknownSample(c.timeout)
	}

	var body backendMetricsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		glog.Warningf("Backend %s sent malformed metrics: %v (%v)", b.name, err, ErrUnknownLoad)
		return unknownSample(c.timeout)
	}

	rtt := time.Since(start).Seconds()
	return LoadSample{
		CPU:         clamp01(body.CPU),
		Memory:      clamp01(body.Memory),
		RTT:         rtt,
		Connections: body.Connections,
		LoadScore:   loadScore(clamp01(body.CPU), clamp01(body.Memory), body.Connections),
		Time:        time.Now(),
	}
}

// Snapshot polls every backend in parallel and stores the fresh
// samples on the backend descriptors. |recentFlows| is the number of
// decisions taken since the previous snapshot.
func (c *Collector) Snapshot(ctx context.Context, recentFlows int) *Snapshot {
	samples := make([]LoadSample, len(c.backends))

	var wg sync.WaitGroup
	for i, b := range c.backends {
		wg.Add(1)
		go func(i int, b *Backend) {
			defer wg.Done()
			s := c.PollBackend(ctx, b)
			b.setSample(s)
			samples[i] = s
		}(i, b)
	}
	wg.Wait()

	return &Snapshot{
		Samples:     samples,
		RecentFlows: recentFlows,
		Time:        time.Now(),
	}
}

// PollSwitch returns the cached per-port tx counters of |sw|. The
// cache is refreshed by the stats-request loop; the collector never
// blocks on the switch channel here.
func (c *Collector) PollSwitch(sw *Switch) map[uint32]uint64 {
	return sw.PortStats()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
