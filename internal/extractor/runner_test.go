package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/primowork/WavForce/internal/convert"
)

// writeStub creates an executable shell script standing in for the
// extraction tool. Scripts ignore the real argument list.
func writeStub(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func newTestJob(t *testing.T) *convert.Job {
	t.Helper()
	return convert.NewJob(
		"job-1",
		t.TempDir(),
		"audio_tok1",
		convert.Request{URL: "https://youtu.be/abc123"},
		time.Now(),
		nil,
	)
}

func newTestRunner(binary string, hard, stall time.Duration) *Runner {
	return NewRunner(RunnerConfig{
		Binary:             binary,
		HardTimeout:        hard,
		StallWindow:        stall,
		KillGrace:          100 * time.Millisecond,
		MaxDownloadMB:      100,
		MaxDurationSeconds: 1200,
	}, zap.NewNop())
}

func TestRunner_SuccessCapturesDestination(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, `echo "[download] Destination: audio_tok1.m4a"
echo "[ExtractAudio] Destination: audio_tok1.wav"
exit 0`)
	r := newTestRunner(stub, 5*time.Second, 5*time.Second)

	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeSuccess, attempt.Outcome)
	require.Equal(t, "audio_tok1.wav", attempt.OutputPath)
	require.Positive(t, attempt.Duration)
}

func TestRunner_NonZeroExitIsFailureWithStderrDiagnostic(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, `echo "[youtube] abc123: Downloading webpage"
echo "ERROR: [youtube] abc123: Private video" >&2
exit 1`)
	r := newTestRunner(stub, 5*time.Second, 5*time.Second)

	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeFailed, attempt.Outcome)
	require.Contains(t, attempt.Diagnostic, "Private video")
}

func TestRunner_DurationFilterSkipIsFailure(t *testing.T) {
	t.Parallel()

	// The tool exits zero when the match filter rejects the video; with no
	// destination announced there is nothing to resolve.
	stub := writeStub(t, `echo "video abc123 does not pass filter (duration <= 1200), skipping .."
exit 0`)
	r := newTestRunner(stub, 5*time.Second, 5*time.Second)

	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeFailed, attempt.Outcome)
	require.Contains(t, attempt.Diagnostic, "does not pass filter")
}

func TestRunner_SilentProcessIsStalled(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, `echo starting
sleep 30`)
	r := newTestRunner(stub, 10*time.Second, 200*time.Millisecond)

	start := time.Now()
	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeStalled, attempt.Outcome)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_NoisyProcessHitsHardTimeout(t *testing.T) {
	t.Parallel()

	// Continuous output keeps the stall detector quiet; only the hard
	// deadline can stop it.
	stub := writeStub(t, `while true; do echo "[download] 42.0% of 10MiB"; sleep 0.05; done`)
	r := newTestRunner(stub, 300*time.Millisecond, 10*time.Second)

	start := time.Now()
	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeTimedOut, attempt.Outcome)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_KillsToolProcessTree(t *testing.T) {
	t.Parallel()

	// A tool that shrugs off SIGTERM and has backgrounded a child holding
	// the inherited pipes. Killing only the direct child would leave the
	// child keeping stdout open and Run blocked past any timeout.
	stub := writeStub(t, `trap '' TERM
echo starting
sleep 60 &
sleep 60`)
	r := newTestRunner(stub, 10*time.Second, 300*time.Millisecond)

	start := time.Now()
	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeStalled, attempt.Outcome)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_CanceledContextIsFailure(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, `sleep 30`)
	r := newTestRunner(stub, 10*time.Second, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	attempt := r.Run(ctx, convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeFailed, attempt.Outcome)
	require.Contains(t, attempt.Diagnostic, "request canceled")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestRunner_MissingBinaryIsFailure(t *testing.T) {
	t.Parallel()

	r := newTestRunner(filepath.Join(t.TempDir(), "missing-tool"), time.Second, time.Second)
	attempt := r.Run(context.Background(), convert.Profile{Name: "default"}, newTestJob(t))
	require.Equal(t, convert.OutcomeFailed, attempt.Outcome)
	require.NotEmpty(t, attempt.Diagnostic)
}

func TestRunner_BuildArgsShape(t *testing.T) {
	t.Parallel()

	job := newTestJob(t)
	r := newTestRunner("yt-dlp", time.Second, time.Second)
	args := r.buildArgs(convert.Profile{
		Name: "android",
		Args: []string{"--extractor-args", "youtube:player_client=android"},
	}, job)

	require.Contains(t, args, "--extract-audio")
	require.Contains(t, args, "--max-filesize")
	require.Contains(t, args, "100M")
	require.Contains(t, args, "duration <= 1200")
	require.Contains(t, args, job.OutputTemplate())
	require.Contains(t, args, "youtube:player_client=android")
	// The URL is always the final argument.
	require.Equal(t, job.Request.URL, args[len(args)-1])
}

func TestTailBuffer_KeepsRecentLines(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(3, 1024)
	for _, line := range []string{"one", "two", "three", "four"} {
		b.append(line)
	}
	require.Equal(t, "two\nthree\nfour", b.String())
}

func TestTailBuffer_ByteCap(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(100, 10)
	b.append("aaaaaaaa")
	b.append("bbbb")
	require.Equal(t, "bbbb", b.String())
}
