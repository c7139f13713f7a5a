package clock

import (
	"testing"
	"time"
)

func TestSystemNowIsUTC(t *testing.T) {
	t.Parallel()

	now := System{}.Now()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", now.Location())
	}
	if time.Since(now) > time.Minute {
		t.Fatalf("system clock drifted: %v", now)
	}
}

func TestManualAdvance(t *testing.T) {
	t.Parallel()

	start := time.Unix(1700000000, 0).UTC()
	c := NewManual(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("expected 90s advance, got %v", got)
	}
}
