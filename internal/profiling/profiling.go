package profiling

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Lightweight per-frame CPU profiler for frame-loop insights.

var (
	mu          sync.Mutex
	frameTotals = make(map[string]time.Duration)
)

// Track returns a stop function that records the elapsed time under name.
// Usage: defer profiling.Track("render.Frame")()
func Track(name string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		mu.Lock()
		frameTotals[name] += d
		mu.Unlock()
	}
}

// ResetFrame clears the per-frame totals. Call at the start of each frame.
func ResetFrame() {
	mu.Lock()
	clear(frameTotals)
	mu.Unlock()
}

// Snapshot returns a copy of the current per-frame totals.
func Snapshot() map[string]time.Duration {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]time.Duration, len(frameTotals))
	for k, v := range frameTotals {
		out[k] = v
	}
	return out
}

// SumWithPrefix totals every entry whose name starts with prefix.
func SumWithPrefix(prefix string) time.Duration {
	mu.Lock()
	defer mu.Unlock()
	var total time.Duration
	for k, v := range frameTotals {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total
}

// TopN formats the N largest totals from the current frame.
// Example: "render.Frame:4.2ms, scene.Commands:0.3ms"
func TopN(n int) string {
	ss := Snapshot()
	type pair struct {
		name string
		dur  time.Duration
	}
	list := make([]pair, 0, len(ss))
	for k, v := range ss {
		list = append(list, pair{name: k, dur: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].dur > list[j].dur })
	if n > len(list) {
		n = len(list)
	}
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ms := float64(list[i].dur.Microseconds()) / 1000.0
		parts = append(parts, list[i].name+":"+strconv.FormatFloat(ms, 'f', 1, 64)+"ms")
	}
	return strings.Join(parts, ", ")
}
