// Package metrics hands out go-metrics instruments that collapse to no-op
// implementations unless collection is enabled.
package metrics

import (
	"github.com/rcrowley/go-metrics"
)

// Enabled switches collection on. It must be set before instruments are
// created; the CLI sets it from the config file or the -metrics flag.
var Enabled = false

// Registry receives every enabled instrument.
var Registry = metrics.NewRegistry()

func NewCounter(name string) metrics.Counter {
	if !Enabled {
		return new(metrics.NilCounter)
	}
	return metrics.GetOrRegisterCounter(name, Registry)
}

func NewMeter(name string) metrics.Meter {
	if !Enabled {
		return new(metrics.NilMeter)
	}
	return metrics.GetOrRegisterMeter(name, Registry)
}

func NewTimer(name string) metrics.Timer {
	if !Enabled {
		return new(metrics.NilTimer)
	}
	return metrics.GetOrRegisterTimer(name, Registry)
}

func NewHistogram(name string) metrics.Histogram {
	if !Enabled {
		return new(metrics.NilHistogram)
	}
	return metrics.GetOrRegisterHistogram(name, Registry, metrics.NewUniformSample(1028))
}

// Snapshot returns the current value of every registered counter, meter
// count, timer count and histogram count, keyed by name.
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	Registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case metrics.Counter:
			out[name] = m.Count()
		case metrics.Meter:
			out[name] = m.Count()
		case metrics.Timer:
			out[name] = m.Count()
		case metrics.Histogram:
			out[name] = m.Count()
		}
	})
	return out
}
