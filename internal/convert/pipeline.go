package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/metrics"
)

// WorkspaceManager creates and destroys per-job scratch directories.
type WorkspaceManager interface {
	Create(jobID string) (string, error)
	Destroy(path string)
}

// AttemptRunner supervises one extraction subprocess for one profile.
type AttemptRunner interface {
	Run(ctx context.Context, profile Profile, job *Job) Attempt
}

// ProfileSource yields extraction profiles in fallback priority order and the
// bounded delay to insert between failed attempts.
type ProfileSource interface {
	Profiles() []Profile
	AttemptDelay() time.Duration
}

// OutputResolver locates and validates the produced audio file.
type OutputResolver interface {
	Resolve(ctx context.Context, job *Job, claimed string) (string, int64, error)
}

// Result is a successful conversion: a validated file inside a workspace that
// stays alive until Finalize is called.
type Result struct {
	Path     string
	Size     int64
	Filename string
	job      *Job
}

// NewResult binds a validated output file to the job that produced it.
func NewResult(path string, size int64, filename string, job *Job) *Result {
	return &Result{Path: path, Size: size, Filename: filename, job: job}
}

// Attempts exposes the attempt history behind the result.
func (r *Result) Attempts() []Attempt {
	return r.job.Attempts()
}

// Finalize destroys the result's workspace. Only the first call has effect.
func (r *Result) Finalize() {
	r.job.Finalize()
}

// Pipeline drives one conversion job from request to validated output file:
// validation, workspace acquisition, sequential profile attempts, output
// resolution, and guaranteed workspace destruction on every failure path.
type Pipeline struct {
	workspaces WorkspaceManager
	profiles   ProfileSource
	runner     AttemptRunner
	resolver   OutputResolver
	classifier *Classifier
	ids        IDGenerator
	clock      Clock
	logger     *zap.Logger
}

// NewPipeline wires the lifecycle controller.
func NewPipeline(
	workspaces WorkspaceManager,
	profiles ProfileSource,
	runner AttemptRunner,
	resolver OutputResolver,
	classifier *Classifier,
	ids IDGenerator,
	clock Clock,
	logger *zap.Logger,
) *Pipeline {
	metrics.Init()
	return &Pipeline{
		workspaces: workspaces,
		profiles:   profiles,
		runner:     runner,
		resolver:   resolver,
		classifier: classifier,
		ids:        ids,
		clock:      clock,
		logger:     logger,
	}
}

// Convert runs the full job lifecycle. On success the caller owns the Result
// and must call Finalize after streaming; on error the workspace is already
// destroyed and the returned error is a classified *Error.
func (p *Pipeline) Convert(ctx context.Context, req Request) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		metrics.ObserveConversion("rejected")
		return nil, err
	}

	jobID, err := p.ids.NewID()
	if err != nil {
		return nil, WrapError(CategoryWorkspace, "Internal server error", err)
	}
	token, err := p.ids.NewShortID()
	if err != nil {
		return nil, WrapError(CategoryWorkspace, "Internal server error", err)
	}

	wsPath, err := p.workspaces.Create(jobID)
	if err != nil {
		metrics.ObserveConversion("workspace_error")
		return nil, WrapError(CategoryWorkspace, "Internal server error", err)
	}

	job := NewJob(jobID, wsPath, OutputBaseName(req.Filename, token), req, p.clock.Now(), func() {
		p.workspaces.Destroy(wsPath)
	})

	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	result, convErr := p.runAttempts(ctx, job)
	if convErr != nil {
		job.Finalize()
		metrics.ObserveConversion(string(convErr.Category))
		return nil, convErr
	}
	metrics.ObserveConversion("success")
	return result, nil
}

// runAttempts iterates the profile list strictly in order, one subprocess at
// a time, until a usable output file exists or the list is exhausted.
func (p *Pipeline) runAttempts(ctx context.Context, job *Job) (*Result, *Error) {
	profiles := p.profiles.Profiles()
	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("url", job.Request.URL))

	for i, profile := range profiles {
		if ctx.Err() != nil {
			return nil, WrapError(CategoryUnknown, "Conversion canceled", ctx.Err())
		}
		if i > 0 {
			if err := sleepCtx(ctx, p.profiles.AttemptDelay()); err != nil {
				return nil, WrapError(CategoryUnknown, "Conversion canceled", err)
			}
		}

		logger.Info("starting extraction attempt",
			zap.String("profile", profile.Name),
			zap.Int("attempt", i+1),
			zap.Int("profiles_total", len(profiles)),
		)
		attempt := p.runner.Run(ctx, profile, job)
		job.RecordAttempt(attempt)
		metrics.ObserveAttempt(profile.Name, string(attempt.Outcome), attempt.Duration)

		switch attempt.Outcome {
		case OutcomeSuccess:
			path, size, err := p.resolver.Resolve(ctx, job, attempt.OutputPath)
			if err != nil {
				logger.Error("output resolution failed",
					zap.String("profile", profile.Name), zap.Error(err))
				return nil, asError(err)
			}
			logger.Info("conversion succeeded",
				zap.String("profile", profile.Name),
				zap.String("path", path),
				zap.Int64("size_bytes", size),
			)
			return NewResult(path, size, job.OutputFilename(), job), nil
		case OutcomeTimedOut:
			// Timeouts short-circuit the remaining profiles: the same ceiling
			// would be hit again and the caller has already waited minutes.
			logger.Warn("attempt hit hard timeout", zap.String("profile", profile.Name))
			return nil, NewError(CategoryTimedOut, "Conversion timed out. Please try a shorter video.")
		case OutcomeStalled:
			logger.Warn("attempt stalled", zap.String("profile", profile.Name))
			return nil, NewError(CategoryStalled, "Conversion stalled without progress. Please try again.")
		default:
			logger.Warn("attempt failed",
				zap.String("profile", profile.Name),
				zap.String("diagnostic_tail", tail(attempt.Diagnostic, 300)),
			)
		}
	}

	last, ok := job.LastAttempt()
	if !ok {
		return nil, NewError(CategoryUnknown, "Conversion failed. Please check the URL and try again.")
	}
	return nil, p.classifier.Classify(last.Diagnostic)
}

func asError(err error) *Error {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	return WrapError(CategoryUnknown, "Internal server error", err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("attempt delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
