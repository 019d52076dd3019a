package metrics

import (
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
)

func TestDisabledReturnsNil(t *testing.T) {
	Enabled = false
	if _, ok := NewCounter("x").(*metrics.NilCounter); !ok {
		t.Fatal("expected NilCounter when disabled")
	}
	if _, ok := NewTimer("x").(*metrics.NilTimer); !ok {
		t.Fatal("expected NilTimer when disabled")
	}
	if _, ok := NewMeter("x").(*metrics.NilMeter); !ok {
		t.Fatal("expected NilMeter when disabled")
	}
	if _, ok := NewHistogram("x").(*metrics.NilHistogram); !ok {
		t.Fatal("expected NilHistogram when disabled")
	}
}

func TestEnabledRegisters(t *testing.T) {
	Enabled = true
	defer func() { Enabled = false }()

	c := NewCounter("test/counter")
	c.Inc(3)
	NewTimer("test/timer").Update(time.Millisecond)

	snap := Snapshot()
	if snap["test/counter"] != 3 {
		t.Fatalf("counter = %d, want 3", snap["test/counter"])
	}
	if snap["test/timer"] != 1 {
		t.Fatalf("timer count = %d, want 1", snap["test/timer"])
	}
	if NewCounter("test/counter") != c {
		t.Fatal("GetOrRegister should return the same counter")
	}
}
