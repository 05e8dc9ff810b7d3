// Package extractor supervises the external extraction tool: one subprocess
// per attempt, with stall and hard-timeout enforcement, fallback profile
// selection, and output-file resolution.
package extractor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/convert"
)

// RunnerConfig controls one attempt's subprocess supervision.
type RunnerConfig struct {
	Binary             string
	HardTimeout        time.Duration
	StallWindow        time.Duration
	KillGrace          time.Duration
	MaxDownloadMB      int
	MaxDurationSeconds int
}

// Runner spawns the extraction tool for one profile at a time and enforces
// the hard and stall timeouts. It mutates nothing outside the Job.
type Runner struct {
	cfg    RunnerConfig
	logger *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

var destinationRe = regexp.MustCompile(`^\[(?:ExtractAudio|download)\] Destination: (.+)$`)

// Run executes one extraction attempt. Exactly one of the four outcomes is
// produced; the spawned process is confirmed terminated before Run returns.
func (r *Runner) Run(ctx context.Context, profile convert.Profile, job *convert.Job) convert.Attempt {
	start := time.Now()
	attempt := convert.Attempt{Profile: profile}

	cmd := exec.Command(r.cfg.Binary, r.buildArgs(profile, job)...)
	cmd.Dir = job.Workspace
	// Own process group, so termination reaches children the tool spawns
	// (the transcoder) and not just the tool itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return failed(attempt, start, fmt.Sprintf("stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return failed(attempt, start, fmt.Sprintf("stderr pipe: %v", err))
	}

	obs := newObserver()
	if err := cmd.Start(); err != nil {
		return failed(attempt, start, fmt.Sprintf("start %s: %v", r.cfg.Binary, err))
	}
	r.logger.Debug("extraction process started",
		zap.String("job_id", job.ID),
		zap.String("profile", profile.Name),
		zap.Int("pid", cmd.Process.Pid),
	)

	var readers sync.WaitGroup
	readers.Add(2)
	go obs.consume(&readers, stdout, true)
	go obs.consume(&readers, stderr, false)

	// Readers must drain before Wait closes the pipes under them.
	waitCh := make(chan error, 1)
	go func() {
		readers.Wait()
		waitCh <- cmd.Wait()
	}()

	hard := time.NewTimer(r.cfg.HardTimeout)
	defer hard.Stop()
	stallPoll := time.NewTicker(stallPollInterval(r.cfg.StallWindow))
	defer stallPoll.Stop()

	for {
		select {
		case werr := <-waitCh:
			attempt.Duration = time.Since(start)
			return obs.finish(attempt, werr)
		case <-ctx.Done():
			r.terminate(cmd, waitCh, job.ID, profile.Name)
			return failed(attempt, start, "request canceled: "+ctx.Err().Error())
		case <-hard.C:
			r.terminate(cmd, waitCh, job.ID, profile.Name)
			attempt.Duration = time.Since(start)
			attempt.Outcome = convert.OutcomeTimedOut
			attempt.Diagnostic = obs.diagnostic()
			return attempt
		case <-stallPoll.C:
			if obs.idleFor() < r.cfg.StallWindow {
				continue
			}
			r.terminate(cmd, waitCh, job.ID, profile.Name)
			attempt.Duration = time.Since(start)
			attempt.Outcome = convert.OutcomeStalled
			attempt.Diagnostic = obs.diagnostic()
			return attempt
		}
	}
}

// buildArgs assembles the fixed base invocation plus the profile's extras.
func (r *Runner) buildArgs(profile convert.Profile, job *convert.Job) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"--no-playlist",
		"--newline",
		"--no-colors",
		"--max-filesize", fmt.Sprintf("%dM", r.cfg.MaxDownloadMB),
	}
	if r.cfg.MaxDurationSeconds > 0 {
		args = append(args, "--match-filter", fmt.Sprintf("duration <= %d", r.cfg.MaxDurationSeconds))
	}
	args = append(args, "--output", job.OutputTemplate())
	args = append(args, profile.Args...)
	args = append(args, job.Request.URL)
	return args
}

// killDrainTimeout bounds the post-SIGKILL reap: a descendant that escaped
// the process group can hold the pipes open indefinitely, and the caller
// still owes the client a response.
const killDrainTimeout = 2 * time.Second

// terminate signals the process group and waits for it to be reaped,
// escalating to SIGKILL after the grace period. Signaling an already-exited
// process is harmless.
func (r *Runner) terminate(cmd *exec.Cmd, waitCh <-chan error, jobID, profile string) {
	if cmd.Process == nil {
		return
	}
	r.signal(cmd, syscall.SIGTERM)
	select {
	case <-waitCh:
		return
	case <-time.After(r.cfg.KillGrace):
	}
	r.logger.Warn("extraction process ignored SIGTERM, killing process group",
		zap.String("job_id", jobID), zap.String("profile", profile))
	r.signal(cmd, syscall.SIGKILL)
	select {
	case <-waitCh:
	case <-time.After(killDrainTimeout):
		r.logger.Error("extraction process tree not reaped after SIGKILL",
			zap.String("job_id", jobID), zap.String("profile", profile))
	}
}

// signal targets the whole process group; the tool's children share it via
// Setpgid. Falls back to the direct child if the group is already gone.
func (r *Runner) signal(cmd *exec.Cmd, sig syscall.Signal) {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		_ = cmd.Process.Signal(sig)
	}
}

func failed(attempt convert.Attempt, start time.Time, diagnostic string) convert.Attempt {
	attempt.Outcome = convert.OutcomeFailed
	attempt.Diagnostic = diagnostic
	attempt.Duration = time.Since(start)
	return attempt
}

// stallPollInterval checks often enough that short windows fire promptly
// without busy-waiting on long ones.
func stallPollInterval(window time.Duration) time.Duration {
	poll := window / 4
	if poll < 50*time.Millisecond {
		return 50 * time.Millisecond
	}
	if poll > time.Second {
		return time.Second
	}
	return poll
}

// observer incrementally captures subprocess output: it timestamps activity
// for stall detection, keeps bounded tails for diagnostics, and watches for
// the tool's destination announcement.
type observer struct {
	lastActivity atomic.Int64

	mu            sync.Mutex
	stdoutTail    *tailBuffer
	stderrTail    *tailBuffer
	destination   string
	filterSkipped bool
}

func newObserver() *observer {
	o := &observer{
		stdoutTail: newTailBuffer(80, 16*1024),
		stderrTail: newTailBuffer(80, 16*1024),
	}
	o.lastActivity.Store(time.Now().UnixNano())
	return o
}

func (o *observer) consume(wg *sync.WaitGroup, r io.Reader, isStdout bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		o.lastActivity.Store(time.Now().UnixNano())
		if isStdout {
			o.observeStdout(line)
		} else {
			o.mu.Lock()
			o.stderrTail.append(line)
			o.mu.Unlock()
		}
	}
}

func (o *observer) observeStdout(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stdoutTail.append(line)
	if m := destinationRe.FindStringSubmatch(line); m != nil {
		o.destination = strings.TrimSpace(m[1])
	}
	if strings.Contains(line, "does not pass filter") {
		o.filterSkipped = true
	}
}

func (o *observer) idleFor() time.Duration {
	return time.Since(time.Unix(0, o.lastActivity.Load()))
}

// finish resolves the attempt for a process that exited on its own.
func (o *observer) finish(attempt convert.Attempt, waitErr error) convert.Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	if waitErr != nil {
		attempt.Outcome = convert.OutcomeFailed
		attempt.Diagnostic = o.diagnosticLocked()
		return attempt
	}
	// A zero exit after a duration-filter skip produced nothing to resolve;
	// report it as a failure so the diagnostic gets classified.
	if o.filterSkipped && o.destination == "" {
		attempt.Outcome = convert.OutcomeFailed
		attempt.Diagnostic = o.diagnosticLocked()
		return attempt
	}
	attempt.Outcome = convert.OutcomeSuccess
	attempt.OutputPath = o.destination
	return attempt
}

func (o *observer) diagnostic() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.diagnosticLocked()
}

func (o *observer) diagnosticLocked() string {
	if diag := strings.TrimSpace(o.stderrTail.String()); diag != "" {
		return diag
	}
	return strings.TrimSpace(o.stdoutTail.String())
}

// tailBuffer retains the last lines of a stream within line and byte caps.
type tailBuffer struct {
	lines    []string
	maxLines int
	maxBytes int
	bytes    int
}

func newTailBuffer(maxLines, maxBytes int) *tailBuffer {
	return &tailBuffer{maxLines: maxLines, maxBytes: maxBytes}
}

func (b *tailBuffer) append(line string) {
	b.lines = append(b.lines, line)
	b.bytes += len(line) + 1
	for (len(b.lines) > b.maxLines || b.bytes > b.maxBytes) && len(b.lines) > 1 {
		b.bytes -= len(b.lines[0]) + 1
		b.lines = b.lines[1:]
	}
}

func (b *tailBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
