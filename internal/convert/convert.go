// Package convert holds the conversion job domain: request validation, the
// job lifecycle controller, error taxonomy, and diagnostic classification.
package convert

import (
	"path/filepath"
	"sync"
	"time"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for jobs and filenames.
type IDGenerator interface {
	NewID() (string, error)
	NewShortID() (string, error)
}

// Request is one accepted conversion request. Immutable once validated.
type Request struct {
	URL      string
	Filename string
}

// Profile is a named fallback strategy: extra arguments layered on top of the
// extraction tool's fixed base invocation.
type Profile struct {
	Name string
	Args []string
}

// Outcome is the terminal state of one subprocess attempt.
type Outcome string

// Attempt outcomes. Exactly one is produced per supervisor invocation.
const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeStalled  Outcome = "stalled"
)

// Attempt records one profile's run against the extraction tool. Never
// mutated after creation.
type Attempt struct {
	Profile    Profile
	Outcome    Outcome
	OutputPath string
	Diagnostic string
	Duration   time.Duration
}

// Job is one request's end-to-end conversion attempt. It owns exactly one
// workspace directory, destroyed exactly once via Finalize regardless of
// which path terminates the job.
type Job struct {
	ID         string
	Workspace  string
	Request    Request
	OutputBase string
	StartedAt  time.Time

	mu       sync.Mutex
	attempts []Attempt

	destroyOnce sync.Once
	destroy     func()
}

// NewJob constructs a Job bound to its workspace. destroy is invoked at most
// once, by Finalize.
func NewJob(id, workspace, outputBase string, req Request, startedAt time.Time, destroy func()) *Job {
	return &Job{
		ID:         id,
		Workspace:  workspace,
		Request:    req,
		OutputBase: outputBase,
		StartedAt:  startedAt,
		destroy:    destroy,
	}
}

// RecordAttempt appends an attempt result in profile order.
func (j *Job) RecordAttempt(a Attempt) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
}

// Attempts returns a copy of the recorded attempts.
func (j *Job) Attempts() []Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Attempt, len(j.attempts))
	copy(out, j.attempts)
	return out
}

// LastAttempt returns the most recent attempt, if any.
func (j *Job) LastAttempt() (Attempt, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.attempts) == 0 {
		return Attempt{}, false
	}
	return j.attempts[len(j.attempts)-1], true
}

// OutputTemplate is the extraction tool's output pattern inside the
// workspace: the tool substitutes the real extension.
func (j *Job) OutputTemplate() string {
	return filepath.Join(j.Workspace, j.OutputBase+".%(ext)s")
}

// PredictedOutput is where the WAV file should land when the tool does not
// announce a destination.
func (j *Job) PredictedOutput() string {
	return filepath.Join(j.Workspace, j.OutputBase+".wav")
}

// OutputFilename is the attachment name offered to the caller.
func (j *Job) OutputFilename() string {
	return j.OutputBase + ".wav"
}

// Finalize destroys the job workspace. Safe to call from any terminal path;
// only the first call has effect.
func (j *Job) Finalize() {
	j.destroyOnce.Do(func() {
		if j.destroy != nil {
			j.destroy()
		}
	})
}
