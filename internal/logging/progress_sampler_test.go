package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 5},
		{"default bucket size for negative", -1, 5},
		{"custom bucket size", 10, 10},
		{"small bucket size", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "transfer") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset() // should not panic
}

func TestProgressSampler_ShouldLogStageChange(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldLog(0, "transfer") {
		t.Error("first stage should log")
	}

	if s.ShouldLog(0, "transfer") {
		t.Error("same stage and percent should not log again")
	}

	if !s.ShouldLog(0, "extract") {
		t.Error("different stage should log")
	}

	if s.lastStage != "extract" {
		t.Errorf("lastStage = %q, want extract", s.lastStage)
	}
}

func TestProgressSampler_ShouldLogStageTrimsWhitespace(t *testing.T) {
	s := NewProgressSampler(5)

	s.ShouldLog(0, "  transfer  ")
	if s.lastStage != "transfer" {
		t.Errorf("lastStage = %q, want transfer (trimmed)", s.lastStage)
	}
}

func TestProgressSampler_ShouldLogPercentBuckets(t *testing.T) {
	s := NewProgressSampler(5) // 5% buckets

	if !s.ShouldLog(0, "transfer") {
		t.Error("0% should log")
	}

	if s.ShouldLog(3, "transfer") {
		t.Error("3% should not log (same bucket)")
	}

	if !s.ShouldLog(5, "transfer") {
		t.Error("5% should log (new bucket)")
	}

	if s.ShouldLog(7, "transfer") {
		t.Error("7% should not log (same bucket)")
	}

	if !s.ShouldLog(10, "transfer") {
		t.Error("10% should log (new bucket)")
	}
}

func TestProgressSampler_ShouldLogNegativePercent(t *testing.T) {
	s := NewProgressSampler(5)

	// First call with negative percent should still log (stage change).
	if !s.ShouldLog(-1, "probe") {
		t.Error("first call should log even with negative percent")
	}

	if s.ShouldLog(-1, "probe") {
		t.Error("negative percent should not trigger bucket logging")
	}
}

func TestProgressSampler_ShouldLogCaps100Percent(t *testing.T) {
	s := NewProgressSampler(5)

	s.ShouldLog(95, "transfer")

	if !s.ShouldLog(100, "transfer") {
		t.Error("100% should log")
	}

	// Values over 100% should use the 100% bucket.
	if s.ShouldLog(105, "transfer") {
		t.Error("105% should not log again (same as 100% bucket)")
	}
}

func TestProgressSampler_ShouldLogBucketResetOnStageChange(t *testing.T) {
	s := NewProgressSampler(5)

	s.ShouldLog(50, "transfer")

	// Change stage - bucket should reset.
	s.ShouldLog(0, "extract")

	if !s.ShouldLog(10, "extract") {
		t.Error("10% should log after stage change reset bucket")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "transfer")

	s.Reset()

	if s.lastStage != "" {
		t.Errorf("lastStage = %q, want empty after reset", s.lastStage)
	}
	if s.lastBucket != -1 {
		t.Errorf("lastBucket = %d, want -1 after reset", s.lastBucket)
	}
	if !s.ShouldLog(50, "transfer") {
		t.Error("should log after reset")
	}
}

func TestProgressSampler_BucketSizes(t *testing.T) {
	t.Run("1% buckets", func(t *testing.T) {
		s := NewProgressSampler(1)
		s.ShouldLog(0, "transfer")

		if !s.ShouldLog(1, "transfer") {
			t.Error("1% should log")
		}
		if s.ShouldLog(1.5, "transfer") {
			t.Error("1.5% should not log (same bucket)")
		}
		if !s.ShouldLog(2, "transfer") {
			t.Error("2% should log")
		}
	})

	t.Run("25% buckets", func(t *testing.T) {
		s := NewProgressSampler(25)
		s.ShouldLog(0, "transfer")

		if s.ShouldLog(20, "transfer") {
			t.Error("20% should not log")
		}
		if !s.ShouldLog(25, "transfer") {
			t.Error("25% should log")
		}
		if s.ShouldLog(49, "transfer") {
			t.Error("49% should not log")
		}
		if !s.ShouldLog(50, "transfer") {
			t.Error("50% should log")
		}
	})
}
