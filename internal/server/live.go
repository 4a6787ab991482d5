// Package server implements the in-memory live state for PicoRelay:
// which devices are currently reporting, and a bounded ring of the most
// recent readings for lightweight dashboard charting. Durable history
// lives in the database; nothing here survives a restart, by design.
package server

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jkoivu/picorelay/internal/models"
)

// PresenceView is the DTO returned by /api/live-devices.
type PresenceView struct {
	DeviceID   string         `json:"device_id"`
	LastSeen   time.Time      `json:"last_seen"`
	AgeSeconds float64        `json:"age_seconds"`
	LastSample models.Reading `json:"last_sample"`
}

// LiveState tracks device presence and the recent-readings ring.
// Construct one per process with NewLiveState, call Start to launch the
// eviction sweep, and Stop during teardown. All methods are safe for
// concurrent use; record, sweep and reads serialize on one mutex so a
// reader never observes a half-applied update.
type LiveState struct {
	mu         sync.RWMutex
	lastSeen   map[string]time.Time
	lastSample map[string]models.Reading
	ring       []models.Reading

	ttl     time.Duration
	sweep   time.Duration
	ringMax int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewLiveState creates an empty tracker. ttl is the silence window after
// which a device is no longer live; sweepEvery is the eviction period;
// ringMax bounds the recent-readings ring.
func NewLiveState(ttl, sweepEvery time.Duration, ringMax int) *LiveState {
	return &LiveState{
		lastSeen:   make(map[string]time.Time),
		lastSample: make(map[string]models.Reading),
		ring:       make([]models.Reading, 0, ringMax),
		ttl:        ttl,
		sweep:      sweepEvery,
		ringMax:    ringMax,
		done:       make(chan struct{}),
	}
}

// Record notes that a device reported at now. It overwrites the device's
// last-seen time and last sample and appends the reading to the ring,
// evicting from the head once the ring is full. One lock acquisition
// covers both structures.
func (l *LiveState) Record(sample models.Reading, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeen[sample.DeviceID] = now
	l.lastSample[sample.DeviceID] = sample

	l.ring = append(l.ring, sample)
	if over := len(l.ring) - l.ringMax; over > 0 {
		l.ring = append(l.ring[:0], l.ring[over:]...)
	}
}

// ListLive returns one PresenceView per device seen within the TTL,
// most recently seen first. The boundary is inclusive: a device exactly
// ttl old is still listed (the sweep evicts strictly-older entries only).
func (l *LiveState) ListLive(now time.Time) []PresenceView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	views := make([]PresenceView, 0, len(l.lastSeen))
	for id, seen := range l.lastSeen {
		age := now.Sub(seen)
		if age > l.ttl {
			continue
		}
		views = append(views, PresenceView{
			DeviceID:   id,
			LastSeen:   seen,
			AgeSeconds: age.Seconds(),
			LastSample: l.lastSample[id],
		})
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].LastSeen.After(views[j].LastSeen)
	})
	return views
}

// RingSnapshot returns a copy of the ring in arrival order, oldest first.
func (l *LiveState) RingSnapshot() []models.Reading {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Reading, len(l.ring))
	copy(out, l.ring)
	return out
}

// LiveCount returns the number of tracked devices within the TTL.
func (l *LiveState) LiveCount() int {
	return len(l.ListLive(time.Now()))
}

// RingLen returns the current ring length.
func (l *LiveState) RingLen() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ring)
}

// Start launches the background sweep loop. Call Stop to terminate it.
func (l *LiveState) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweepOnce(time.Now())
			case <-l.done:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (l *LiveState) Stop() {
	close(l.done)
	l.wg.Wait()
}

// sweepOnce evicts every device whose silence strictly exceeds the TTL.
// Eviction only affects the presence maps: ring entries and durable
// history are untouched.
func (l *LiveState) sweepOnce(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, seen := range l.lastSeen {
		if now.Sub(seen) > l.ttl {
			delete(l.lastSeen, id)
			delete(l.lastSample, id)
			log.Printf("[live] evicted %s (silent for %s)", id, now.Sub(seen).Round(time.Second))
		}
	}
}
