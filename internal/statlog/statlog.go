// Package statlog reports periodic capture statistics, adapted from the
// teacher's src/audio_stats.go: accumulate sample counts and error counts
// over an interval, and print an approximate achieved rate once the
// interval elapses — suppressing the very first, deliberately-shortened
// report so a cold start doesn't look like a rate anomaly.
package statlog

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// timestampPattern mirrors the teacher's use of strftime-style formatting
// (src/tq.go, src/xmit.go) for human-readable log timestamps.
const timestampPattern = "%Y-%m-%d %H:%M:%S"

// Reporter accumulates capture throughput and periodically logs it.
type Reporter struct {
	logger   *log.Logger
	interval time.Duration

	mu            sync.Mutex
	lastReport    time.Time
	sampleCount   int64
	errorCount    int64
	suppressFirst bool
}

// NewReporter creates a Reporter. An interval <= 0 disables reporting,
// matching the statistics-interval option's "0 disables" semantics.
func NewReporter(logger *log.Logger, interval time.Duration) *Reporter {
	return &Reporter{logger: logger, interval: interval}
}

// Observe records one read batch: nsamp frames read (nsamp==0 records an
// error instead, matching the teacher's audio_stats signature).
func (r *Reporter) Observe(nsamp int) {
	if r.interval <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.lastReport.IsZero() {
		r.suppressFirst = true
		// Make the first collection interval short (3s) so the cold-start
		// report doesn't have to wait a full interval, same as the
		// teacher's comment in audio_stats.go.
		r.lastReport = now.Add(-1 * (r.interval - 3*time.Second))
		return
	}

	if nsamp > 0 {
		r.sampleCount += int64(nsamp)
	} else {
		r.errorCount++
	}

	if now.Before(r.lastReport.Add(r.interval)) {
		return
	}

	if r.suppressFirst {
		r.suppressFirst = false
	} else {
		avgRateKHz := (float64(r.sampleCount) / 1000.0) / r.interval.Seconds()
		ts, _ := strftime.Format(timestampPattern, now)
		r.logger.Infof("capture rate approx %.1f k, %d errors, at %s", avgRateKHz, r.errorCount, ts)
	}

	r.lastReport = now
	r.sampleCount = 0
	r.errorCount = 0
}
