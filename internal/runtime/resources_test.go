package runtime

import (
	"runtime"
	"testing"
	"time"
)

func TestCPUSamplerPercent(t *testing.T) {
	sampler := newCPUSampler()

	if got := sampler.Percent(); got != 0 {
		t.Errorf("expected 0 on the baseline sample, got %f", got)
	}

	deadline := time.Now().Add(10 * time.Millisecond)
	for time.Now().Before(deadline) {
	}

	got := sampler.Percent()
	if got < 0 || got > 100 {
		t.Errorf("expected a percentage, got %f", got)
	}
}

func TestCPUSamplerIdleWindow(t *testing.T) {
	sampler := newCPUSampler()
	runtime.GC()
	sampler.Percent()

	time.Sleep(300 * time.Millisecond)
	runtime.GC()

	if got := sampler.Percent(); got > 25 {
		t.Errorf("expected low usage for an idle window, got %f", got)
	}
}

func TestCPUSamplerEmptySamples(t *testing.T) {
	sampler := &cpuSampler{numCPU: 1}
	sampler.Percent()
	if len(sampler.samples) != len(cpuUsedMetrics) {
		t.Fatal("expected the sample set to be rebuilt")
	}
}

func TestCPUSamplerNil(t *testing.T) {
	var sampler *cpuSampler
	if got := sampler.Percent(); got != 0 {
		t.Errorf("expected 0 for nil sampler, got %f", got)
	}
}
