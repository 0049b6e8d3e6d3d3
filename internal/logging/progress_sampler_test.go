package logging

import "testing"

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		fraction float64
		want     bool
	}{
		{0, true},
		{0.1, false},
		{0.26, true},
		{0.3, false},
		{0.2, false},
		{0.75, true},
		{1.5, true},
		{1, false},
		{-1, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.fraction); got != step.want {
			t.Fatalf("step %d: ShouldLog(%v) = %v, want %v", i, step.fraction, got, step.want)
		}
	}

	s.Reset()
	if !s.ShouldLog(0.3) {
		t.Fatal("expected emit after reset")
	}
}

func TestProgressSamplerDefaults(t *testing.T) {
	s := NewProgressSampler(0)
	if s.bucketSize != 0.1 {
		t.Fatalf("bucketSize = %v, want 0.1", s.bucketSize)
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(0.5) {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()
}
