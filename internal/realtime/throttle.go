package realtime

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// throttleShards splits the accepted-sample map to keep lock contention
// low when a large fleet reports at once.
const throttleShards = 16

// TelemetryThrottle rate-limits telemetry per (hardware unit, metric key).
// The first sample in a window is accepted; later samples for the same
// pair are suppressed until the window elapses.
type TelemetryThrottle struct {
	window time.Duration
	shards [throttleShards]throttleShard
}

type throttleShard struct {
	mu       sync.Mutex
	accepted map[string]time.Time // "hardwareID:key" -> last accepted
}

// NewTelemetryThrottle creates a throttle with the given window.
func NewTelemetryThrottle(window time.Duration) *TelemetryThrottle {
	t := &TelemetryThrottle{window: window}
	for i := range t.shards {
		t.shards[i].accepted = make(map[string]time.Time)
	}
	return t
}

// Allow reports whether a sample for the given unit and metric key should
// be accepted at the given time. Acceptance records the timestamp, so the
// check and the claim are a single atomic step per shard.
func (t *TelemetryThrottle) Allow(hardwareID, key string, now time.Time) bool {
	entry := hardwareID + ":" + key
	shard := &t.shards[shardIndex(entry)]

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if last, ok := shard.accepted[entry]; ok && now.Sub(last) < t.window {
		return false
	}
	shard.accepted[entry] = now
	return true
}

// Sweep removes entries older than the window and returns how many were
// dropped. Stale entries are harmless for correctness; sweeping just keeps
// memory bounded when units disappear.
func (t *TelemetryThrottle) Sweep(now time.Time) int {
	removed := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		for entry, last := range shard.accepted {
			if now.Sub(last) >= t.window {
				delete(shard.accepted, entry)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Run sweeps at the given interval until the context is cancelled.
func (t *TelemetryThrottle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.Sweep(now)
		}
	}
}

// size returns the total number of tracked entries, for tests.
func (t *TelemetryThrottle) size() int {
	total := 0
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		total += len(shard.accepted)
		shard.mu.Unlock()
	}
	return total
}

func shardIndex(entry string) int {
	h := fnv.New32a()
	h.Write([]byte(entry)) //nolint:errcheck // fnv never errors
	return int(h.Sum32() % throttleShards)
}
