package download

import (
	"context"
	"sync"
	"time"

	"github.com/ayahplayer/ayah/internal/ayah"
)

// JobState is the lifecycle state of a job.
type JobState int

const (
	// JobRunning indicates items are being fetched.
	JobRunning JobState = iota
	// JobPaused indicates the loop is waiting for Resume.
	JobPaused
	// JobCanceled indicates the job was canceled. It is terminal.
	JobCanceled
	// JobCompleted indicates every item was attempted.
	JobCompleted
)

// String returns the string representation of the state.
func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobPaused:
		return "paused"
	case JobCanceled:
		return "canceled"
	case JobCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Progress is a snapshot of a job.
type Progress struct {
	State     JobState
	Done      int // items attempted, successful or not
	Total     int
	Cursor    int // index of the next item
	Succeeded int
	Skipped   int // already cached
	Failed    int
}

// Fraction returns Done/Total for display.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// Finished reports whether the job reached a terminal state.
func (p Progress) Finished() bool {
	return p.State == JobCanceled || p.State == JobCompleted
}

// Summary is the end-of-job report.
type Summary struct {
	ID        string
	Selection ayah.Selection
	Progress
	Failures []ayah.Verse
	Elapsed  time.Duration
}

// Complete reports whether every item is now cached.
func (s Summary) Complete() bool {
	return s.State == JobCompleted && s.Failed == 0
}

// Job is the handle of one bulk download.
type Job struct {
	id    string
	sel   ayah.Selection
	items []ayah.Verse

	mu       sync.Mutex
	cond     *sync.Cond
	state    JobState
	cursor   int
	done     int
	ok       int
	skipped  int
	failed   int
	failures []ayah.Verse
	started  time.Time
	ended    time.Time
	finished chan struct{}
}

func newJob(id string, sel ayah.Selection, items []ayah.Verse) *Job {
	j := &Job{
		id:       id,
		sel:      sel,
		items:    items,
		state:    JobRunning,
		started:  time.Now(),
		finished: make(chan struct{}),
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Selection returns the reciter and bitrate the job caches.
func (j *Job) Selection() ayah.Selection { return j.sel }

// Pause suspends the job after the item in flight. It reports whether the
// job was running.
func (j *Job) Pause() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobRunning {
		return false
	}
	j.state = JobPaused
	return true
}

// Resume continues a paused job. It reports whether the job was paused.
func (j *Job) Resume() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobPaused {
		return false
	}
	j.state = JobRunning
	j.cond.Broadcast()
	return true
}

// Cancel stops the job before its next item. It reports whether the job
// was still active.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == JobCanceled || j.state == JobCompleted {
		return false
	}
	j.state = JobCanceled
	j.cond.Broadcast()
	return true
}

// Progress returns the current progress.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progressLocked()
}

func (j *Job) progressLocked() Progress {
	return Progress{
		State:     j.state,
		Done:      j.done,
		Total:     len(j.items),
		Cursor:    j.cursor,
		Succeeded: j.ok,
		Skipped:   j.skipped,
		Failed:    j.failed,
	}
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.finished
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-j.finished:
		return j.Summary(), nil
	case <-ctx.Done():
		return j.Summary(), ctx.Err()
	}
}

// Summary returns the report. It is final once Done is closed.
func (j *Job) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	end := j.ended
	if end.IsZero() {
		end = time.Now()
	}
	return Summary{
		ID:        j.id,
		Selection: j.sel,
		Progress:  j.progressLocked(),
		Failures:  append([]ayah.Verse(nil), j.failures...),
		Elapsed:   end.Sub(j.started),
	}
}

// next returns the item at the cursor, waiting while the job is paused. It
// reports false once the job is canceled or out of items.
func (j *Job) next() (ayah.Verse, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for j.state == JobPaused {
		j.cond.Wait()
	}
	if j.state == JobCanceled || j.cursor >= len(j.items) {
		return ayah.Verse{}, false
	}
	return j.items[j.cursor], true
}

type outcome int

const (
	stored outcome = iota
	cached
	failed
)

// record counts the item at the cursor and advances past it.
func (j *Job) record(v ayah.Verse, o outcome) Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch o {
	case stored:
		j.ok++
	case cached:
		j.skipped++
	case failed:
		j.failed++
		j.failures = append(j.failures, v)
	}
	j.done++
	j.cursor++
	return j.progressLocked()
}

func (j *Job) finish() {
	j.mu.Lock()
	if j.state != JobCanceled {
		j.state = JobCompleted
	}
	j.ended = time.Now()
	j.mu.Unlock()

	close(j.finished)
}
