// Package procmem samples the resident set size of the current process
// so the analysis pipeline can report its peak memory footprint.
//
// Readings come from /proc/self/statm, which is cheap enough to poll on
// a short interval. On platforms without procfs every read fails and the
// peak is reported as unavailable rather than zero.
package procmem

import (
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the polling cadence used when none is given. It is
// short enough to catch the allocation spike of a large CSV chunk.
const DefaultInterval = 100 * time.Millisecond

const bytesPerMB = 1 << 20

// ReadRSS returns the current resident set size in bytes.
//
// /proc/self/statm reports sizes in pages; the second field is the
// resident set. Multiplying by the system page size yields bytes.
func ReadRSS() (int64, error) {
	f, err := os.Open("/proc/self/statm")
	if err != nil {
		return 0, fmt.Errorf("open statm: %w", err)
	}
	defer f.Close()

	var vsize, rss int64
	if _, err := fmt.Fscan(f, &vsize, &rss); err != nil {
		return 0, fmt.Errorf("parse statm: %w", err)
	}
	return rss * int64(os.Getpagesize()), nil
}

// Sampler polls the process RSS on a fixed interval and records the
// highest value seen. One sampler serves one pipeline run.
type Sampler struct {
	interval time.Duration

	// peakBits holds math.Float64bits of the peak in MB so updates can
	// race-free through a compare-and-swap loop.
	peakBits atomic.Uint64
	sampled  atomic.Bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins sampling in a background goroutine. It takes one sample
// immediately so even a pipeline that finishes inside the first tick
// reports a peak. Intervals <= 0 fall back to DefaultInterval.
func Start(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.sample()
	go s.run()
	return s
}

func (s *Sampler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample reads the RSS once and raises the recorded peak if needed.
// Read failures are ignored; the peak simply stays unavailable.
func (s *Sampler) sample() {
	rss, err := ReadRSS()
	if err != nil {
		return
	}
	mb := float64(rss) / bytesPerMB
	s.sampled.Store(true)

	for {
		old := s.peakBits.Load()
		if mb <= math.Float64frombits(old) {
			return
		}
		if s.peakBits.CompareAndSwap(old, math.Float64bits(mb)) {
			return
		}
	}
}

// Stop halts sampling after taking one final sample, so a spike in the
// last partial interval still counts. It is idempotent and returns only
// once the sampling goroutine has exited.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.sample()
	})
	<-s.done
}

// PeakMB returns the highest resident set size observed, in megabytes.
// ok is false when no read has succeeded, which is the expected outcome
// on platforms without /proc.
func (s *Sampler) PeakMB() (peak float64, ok bool) {
	if !s.sampled.Load() {
		return 0, false
	}
	return math.Float64frombits(s.peakBits.Load()), true
}
