package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/convert"
)

// ResolverConfig controls output polling and the post-conversion size cap.
type ResolverConfig struct {
	PollRetries  int
	PollInterval time.Duration
	MaxBytes     int64
}

// Resolver locates and vets the converted file after a successful attempt.
// The tool announces its destination before the audio post-processing step
// finishes flushing, so the file is polled rather than stat'd once.
type Resolver struct {
	cfg    ResolverConfig
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig, logger *zap.Logger) *Resolver {
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve returns the absolute path and size of the output file, preferring
// the path the tool claimed, then the predicted path, then any .wav in the
// workspace.
func (r *Resolver) Resolve(ctx context.Context, job *convert.Job, claimed string) (string, int64, error) {
	var candidates []string
	if claimed != "" {
		candidates = append(candidates, asWav(absIn(job.Workspace, claimed)))
	}
	predicted := job.PredictedOutput()
	if len(candidates) == 0 || candidates[0] != predicted {
		candidates = append(candidates, predicted)
	}

	for attempt := 0; attempt <= r.cfg.PollRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", 0, convert.WrapError(convert.CategoryOutputMissing,
					"Conversion completed but output file not found", ctx.Err())
			case <-time.After(r.cfg.PollInterval):
			}
		}
		for _, c := range candidates {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return r.vet(c, info.Size())
			}
		}
		if matches, err := filepath.Glob(filepath.Join(job.Workspace, "*.wav")); err == nil && len(matches) > 0 {
			if info, err := os.Stat(matches[0]); err == nil && !info.IsDir() {
				r.logger.Debug("output resolved by workspace scan",
					zap.String("job_id", job.ID), zap.String("path", matches[0]))
				return r.vet(matches[0], info.Size())
			}
		}
	}
	return "", 0, convert.NewError(convert.CategoryOutputMissing,
		"Conversion completed but output file not found")
}

func (r *Resolver) vet(path string, size int64) (string, int64, error) {
	if size == 0 {
		return "", 0, convert.NewError(convert.CategoryOutputEmpty,
			"Conversion produced an empty file")
	}
	if r.cfg.MaxBytes > 0 && size > r.cfg.MaxBytes {
		return "", 0, convert.NewError(convert.CategorySizeExceeded,
			"Converted file is too large. Please try a shorter video.")
	}
	return path, size, nil
}

// absIn anchors a relative destination to the per-job workspace the tool
// ran in.
func absIn(workspace, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// asWav maps an intermediate download destination to the post-processed
// audio path.
func asWav(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".wav") {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".wav"
}
