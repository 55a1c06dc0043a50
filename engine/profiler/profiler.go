package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-graph/common"
	"github.com/Carmen-Shannon/oxy-graph/engine/scene"
)

// Profiler aggregates frame reports and memory statistics and logs them at Info level once per
// interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	drawn, skipped  int
	passes, copies  int
	failed, stalled int
}

// NewProfiler creates a Profiler that reports every interval. Intervals <= 0 default to one second.
//
// Parameters:
//   - interval: time between reports
//
// Returns:
//   - *Profiler: the new profiler
func NewProfiler(interval time.Duration) *Profiler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Profiler{
		lastTime:       time.Now(),
		updateInterval: interval,
	}
}

// Tick records one frame and the reports of every stack rendered in it. Statistics are logged when
// the interval has elapsed.
//
// Parameters:
//   - reports: the frame reports of this frame
//
// Returns:
//   - bool: true if stats were logged this tick
func (p *Profiler) Tick(reports ...scene.FrameReport) bool {
	p.frameCount++
	for _, r := range reports {
		p.drawn += r.Drawn
		p.skipped += r.Skipped
		p.passes += r.Passes
		p.copies += r.Copies
		switch r.Status {
		case scene.FrameFailed:
			p.failed++
		case scene.FrameSkippedNotReady:
			p.stalled++
		}
	}

	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a ring of the last 256 pauses.
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	frames := float64(p.frameCount)
	seconds := elapsed.Seconds()
	common.Logger().Info("profiler",
		"fps", frames/seconds,
		"drawsPerFrame", float64(p.drawn)/frames,
		"skippedPerFrame", float64(p.skipped)/frames,
		"passesPerFrame", float64(p.passes)/frames,
		"copiesPerFrame", float64(p.copies)/frames,
		"failedFrames", p.failed,
		"stalledFrames", p.stalled,
		"heapMB", float64(p.memStats.Alloc)/1024/1024,
		"allocMBps", float64(p.memStats.TotalAlloc-p.lastTotalAlloc)/1024/1024/seconds,
		"gc", gcCount,
		"gcLastUs", lastPauseUs,
		"gcMaxUs", maxPauseUs,
	)

	p.frameCount = 0
	p.drawn, p.skipped, p.passes, p.copies, p.failed, p.stalled = 0, 0, 0, 0, 0, 0
	p.lastTime = now
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
