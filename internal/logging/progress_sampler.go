package logging

// ProgressSampler suppresses repetitive transfer progress logs. It emits when
// the fraction crosses a bucket boundary or when a new attempt starts.
type ProgressSampler struct {
	bucketSize float64
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent (default 10%).
func NewProgressSampler(bucketPercent float64) *ProgressSampler {
	if bucketPercent <= 0 {
		bucketPercent = 10
	}
	return &ProgressSampler{bucketSize: bucketPercent / 100, lastBucket: -1}
}

// ShouldLog reports whether a progress fraction in [0,1] should be logged.
// Negative fractions mean "unknown" and are never logged.
func (s *ProgressSampler) ShouldLog(fraction float64) bool {
	if s == nil {
		return true
	}
	if fraction < 0 {
		return false
	}
	if fraction > 1 {
		fraction = 1
	}
	bucket := int(fraction / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

// Reset clears the sampler state when a new attempt starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastBucket = -1
}
