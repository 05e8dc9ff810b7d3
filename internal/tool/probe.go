// Package tool reports on the external binaries the service shells out to.
package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Versions carries the probed tool versions for the health endpoint.
type Versions struct {
	Extractor  string `json:"ytdlp"`
	Transcoder string `json:"ffmpeg"`
}

// ProberConfig names the binaries to probe.
type ProberConfig struct {
	Extractor  string
	Transcoder string
	Timeout    time.Duration
}

// Prober checks that both external tools are present and runnable.
type Prober struct {
	cfg    ProberConfig
	logger *zap.Logger
}

// NewProber constructs a Prober.
func NewProber(cfg ProberConfig, logger *zap.Logger) *Prober {
	return &Prober{cfg: cfg, logger: logger}
}

// Probe runs both tools' version commands. It returns whatever versions it
// could gather along with the first failure, so a partial report still
// reaches the caller.
func (p *Prober) Probe(ctx context.Context) (Versions, error) {
	var v Versions
	var firstErr error

	ev, err := p.run(ctx, p.cfg.Extractor, "--version")
	if err != nil {
		firstErr = fmt.Errorf("%s: %w", p.cfg.Extractor, err)
	} else {
		v.Extractor = ev
	}

	tv, err := p.run(ctx, p.cfg.Transcoder, "-version")
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%s: %w", p.cfg.Transcoder, err)
	} else if err == nil {
		v.Transcoder = firstLine(tv)
	}

	return v, firstErr
}

func (p *Prober) run(ctx context.Context, binary string, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, arg).Output()
	if err != nil {
		p.logger.Warn("tool probe failed", zap.String("binary", binary), zap.Error(err))
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
