// Package progress rate-limits and shapes batch-operation progress
// callbacks: updates are coalesced to at most ~10/sec or every N files,
// whichever is first, to bound callback overhead.
package progress

import "time"

// Info is one progress update for a batch operation.
type Info struct {
	// Current is the 1-based index of the file just completed.
	Current uint64
	// Total is the total number of files in the batch, if known.
	Total uint64
	// Progress is Current/Total in [0,1], or 0 if Total is unknown.
	Progress float64
	// CurrentFile is the path of the file just completed.
	CurrentFile string
	// BytesDone is the cumulative bytes processed so far.
	BytesDone uint64
	// Rate is bytes/sec computed over a moving window.
	Rate float64
	// ETA is the estimated seconds remaining, or 0 if Total or Rate is
	// unknown.
	ETA float64
}

// Func receives progress updates. Implementations must be safe to call
// synchronously on the worker goroutine driving the batch.
type Func func(Info)

// defaultEveryN bounds callback frequency by file count when the time
// budget alone would fire too often for large numbers of tiny files.
const defaultEveryN = 50

// window is the duration over which Rate is averaged.
const window = 2 * time.Second

// sample is one (time, cumulative bytes) observation used for the moving
// rate window.
type sample struct {
	at    time.Time
	bytes uint64
}

// Emitter coalesces raw per-file completions into rate-limited Info
// updates and tracks the moving-window byte rate.
type Emitter struct {
	fn       Func
	total    uint64
	everyN   uint64
	minGap   time.Duration
	lastSent time.Time
	samples  []sample
	started  time.Time
	nowFn    func() time.Time
}

// New returns an Emitter that calls fn for progress updates. total is the
// known file count, or 0 if unknown.
func New(fn Func, total uint64) *Emitter {
	return &Emitter{
		fn:      fn,
		total:   total,
		everyN:  defaultEveryN,
		minGap:  100 * time.Millisecond, // ~10/sec
		nowFn:   time.Now,
		started: time.Now(),
	}
}

// Report records completion of the current-th file (1-based), having
// processed bytesDone cumulative bytes, and invokes fn if the update is
// due (per the coalescing policy) or force is true.
func (e *Emitter) Report(current uint64, path string, bytesDone uint64, force bool) {
	if e.fn == nil {
		return
	}
	now := e.nowFn()
	e.samples = append(e.samples, sample{at: now, bytes: bytesDone})
	e.trimSamples(now)

	due := force || e.lastSent.IsZero() || now.Sub(e.lastSent) >= e.minGap || (e.everyN > 0 && current%e.everyN == 0)
	if !due {
		return
	}
	e.lastSent = now

	info := Info{
		Current:     current,
		Total:       e.total,
		CurrentFile: path,
		BytesDone:   bytesDone,
		Rate:        e.rate(),
	}
	if e.total > 0 {
		info.Progress = float64(current) / float64(e.total)
		if info.Rate > 0 {
			filesLeft := e.total - current
			if filesLeft > 0 && current > 0 {
				perFile := now.Sub(e.started).Seconds() / float64(current)
				info.ETA = perFile * float64(filesLeft)
			}
		}
	}
	e.fn(info)
}

func (e *Emitter) trimSamples(now time.Time) {
	cut := now.Add(-window)
	i := 0
	for i < len(e.samples) && e.samples[i].at.Before(cut) {
		i++
	}
	e.samples = e.samples[i:]
}

func (e *Emitter) rate() float64 {
	if len(e.samples) < 2 {
		return 0
	}
	first, last := e.samples[0], e.samples[len(e.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.bytes-first.bytes) / elapsed
}
