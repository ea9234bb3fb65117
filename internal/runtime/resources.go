package runtime

import (
	"math"
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// cpuUsedMetrics are the runtime CPU classes spent doing work. The total
// class is left out since it also counts idle time. The runtime refreshes
// these estimates at every GC, so short windows without a GC read as 0.
var cpuUsedMetrics = []string{
	"/cpu/classes/user:cpu-seconds",
	"/cpu/classes/gc/total:cpu-seconds",
	"/cpu/classes/scavenge/total:cpu-seconds",
}

func cpuUsedSamples() []metrics.Sample {
	samples := make([]metrics.Sample, len(cpuUsedMetrics))
	for i, name := range cpuUsedMetrics {
		samples[i].Name = name
	}
	return samples
}

// cpuSampler measures the process CPU usage between two samples, as a
// percentage of all available cores. HEARTBEAT packets carry the result.
type cpuSampler struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newCPUSampler() *cpuSampler {
	return &cpuSampler{
		samples: cpuUsedSamples(),
		numCPU:  float64(runtime.NumCPU()),
	}
}

// Percent returns the usage since the previous call. The first call only
// establishes the baseline and returns 0.
func (c *cpuSampler) Percent() float64 {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) == 0 {
		c.samples = cpuUsedSamples()
	}

	metrics.Read(c.samples)
	var cpuSeconds float64
	for _, sample := range c.samples {
		if sample.Value.Kind() != metrics.KindFloat64 {
			return 0
		}
		cpuSeconds += sample.Value.Float64()
	}
	now := time.Now()

	var percent float64
	if !c.lastSample.IsZero() {
		deltaCPU := cpuSeconds - c.lastCPUSeconds
		deltaWall := now.Sub(c.lastSample).Seconds()
		if deltaWall > 0 && c.numCPU > 0 {
			percent = (deltaCPU / deltaWall) / c.numCPU * 100
		}
	}
	c.lastCPUSeconds = cpuSeconds
	c.lastSample = now

	return math.Max(0, math.Min(100, math.Round(percent*100)/100))
}
