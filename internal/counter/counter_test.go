package counter

import (
	"math"
	"sync"
	"testing"
)

func TestSaturatingCounts(t *testing.T) {
	var c Saturating
	for i := 1; i <= 5; i++ {
		if got := c.Inc(); got != uint32(i) {
			t.Errorf("Inc %d: got %d", i, got)
		}
	}
	if c.Load() != 5 {
		t.Errorf("expected 5, got %d", c.Load())
	}
	c.Reset()
	if c.Load() != 0 {
		t.Errorf("expected 0 after Reset, got %d", c.Load())
	}
}

func TestSaturatingDoesNotWrap(t *testing.T) {
	var c Saturating
	c.v.Store(math.MaxUint32 - 1)

	if got := c.Inc(); got != math.MaxUint32 {
		t.Errorf("expected MaxUint32, got %d", got)
	}
	if got := c.Inc(); got != math.MaxUint32 {
		t.Errorf("expected counter to stay saturated, got %d", got)
	}
}

func TestSaturatingConcurrent(t *testing.T) {
	var c Saturating
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if c.Load() != 8000 {
		t.Errorf("expected 8000, got %d", c.Load())
	}
}

func TestInc32(t *testing.T) {
	if Inc32(0) != 1 {
		t.Error("Inc32(0) should be 1")
	}
	if Inc32(math.MaxUint32) != math.MaxUint32 {
		t.Error("Inc32 should saturate")
	}
}
