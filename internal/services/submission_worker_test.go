package services

import (
	"testing"
	"time"
)

func TestBackoffWithJitterGrowsAndCaps(t *testing.T) {
	base := 5 * time.Second
	cap := 1 * time.Minute

	for retryCount := 0; retryCount < 12; retryCount++ {
		for i := 0; i < 20; i++ { // jitter is randomized, sample repeatedly
			d := backoffWithJitter(base, cap, retryCount)
			if d < 0 {
				t.Fatalf("retryCount=%d produced negative delay %v", retryCount, d)
			}
			// cap * 1.3 upper bound accounts for jitter on the capped value
			maxAllowed := time.Duration(float64(cap) * 1.3)
			if d > maxAllowed {
				t.Fatalf("retryCount=%d delay %v exceeded cap*1.3 %v", retryCount, d, maxAllowed)
			}
			// the un-jittered delay doubles from base until it reaches cap
			expected := base << uint(retryCount)
			if expected > cap {
				expected = cap
			}
			minAllowed := time.Duration(float64(expected) * 0.7)
			if d < minAllowed {
				t.Fatalf("retryCount=%d delay %v below 0.7 * %v", retryCount, d, expected)
			}
		}
	}
}

func TestBackoffWithJitterFirstAttemptNearBase(t *testing.T) {
	base := 5 * time.Second
	cap := 5 * time.Minute
	d := backoffWithJitter(base, cap, 0)
	minAllowed := time.Duration(float64(base) * 0.7)
	maxAllowed := time.Duration(float64(base) * 1.3)
	if d < minAllowed || d > maxAllowed {
		t.Errorf("first attempt delay %v outside [%v, %v]", d, minAllowed, maxAllowed)
	}
}
