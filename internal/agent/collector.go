// Package agent implements the reading collection subsystem for the
// PicoRelay host agent. It uses gopsutil for cross-platform temperature
// telemetry, with a synthetic fallback for hosts that expose no sensors
// (containers, most VMs).
package agent

import (
	"math/rand"
	"sync"

	"github.com/shirou/gopsutil/v4/sensors"
)

// Snapshot holds a single collection cycle's data.
type Snapshot struct {
	Temp float64
	Fan  float64
	Mode string
}

// Collector produces temperature snapshots and tracks the fan/mode state
// that mailbox commands adjust.
type Collector struct {
	mu   sync.Mutex
	fan  float64
	mode string

	// synthTemp is the fallback random-walk temperature used when the
	// host exposes no thermal sensors.
	synthTemp float64
}

// NewCollector creates a ready-to-use Collector.
func NewCollector() *Collector {
	return &Collector{
		fan:       40,
		mode:      "auto",
		synthTemp: 30,
	}
}

// Collect gathers the current snapshot. gopsutil sensor errors are not
// fatal: the synthetic temperature keeps the agent reporting.
func (c *Collector) Collect() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Temp: c.readTemp(),
		Fan:  c.fan,
		Mode: c.mode,
	}
}

// Apply adjusts collector state from a received command payload.
// Recognized params: "fan" (number, percent) and "mode" (string).
// Unknown keys are ignored. Returns true if anything changed.
func (c *Collector) Apply(params map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	if v, ok := params["fan"].(float64); ok {
		c.fan = clamp(v, 0, 100)
		changed = true
	}
	if v, ok := params["mode"].(string); ok && v != "" {
		c.mode = v
		changed = true
	}
	return changed
}

// Fan returns the current fan duty.
func (c *Collector) Fan() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fan
}

// Mode returns the current control mode.
func (c *Collector) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// readTemp returns the hottest reported sensor temperature, or advances
// the synthetic random walk when none is available. Caller holds c.mu.
func (c *Collector) readTemp() float64 {
	if stats, err := sensors.SensorsTemperatures(); err == nil {
		var max float64
		for _, s := range stats {
			if s.Temperature > max {
				max = s.Temperature
			}
		}
		if max > 0 {
			return max
		}
	}

	// Random walk within a plausible indoor band; higher fan pulls it down.
	c.synthTemp += rand.Float64()*2 - 1 - (c.fan-40)/200
	c.synthTemp = clamp(c.synthTemp, 18, 45)
	return c.synthTemp
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
