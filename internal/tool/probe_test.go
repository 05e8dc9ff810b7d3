package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeStub(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestProber_BothToolsAvailable(t *testing.T) {
	t.Parallel()

	extractor := writeStub(t, "ytdlp", `echo "2025.08.11"`)
	transcoder := writeStub(t, "ffmpeg", `echo "ffmpeg version 7.1 Copyright (c) 2000-2024"
echo "built with gcc"`)

	p := NewProber(ProberConfig{
		Extractor:  extractor,
		Transcoder: transcoder,
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	v, err := p.Probe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025.08.11", v.Extractor)
	require.Equal(t, "ffmpeg version 7.1 Copyright (c) 2000-2024", v.Transcoder)
}

func TestProber_MissingExtractorReportsErrorAndPartialVersions(t *testing.T) {
	t.Parallel()

	transcoder := writeStub(t, "ffmpeg", `echo "ffmpeg version 7.1"`)

	p := NewProber(ProberConfig{
		Extractor:  filepath.Join(t.TempDir(), "missing"),
		Transcoder: transcoder,
		Timeout:    5 * time.Second,
	}, zap.NewNop())

	v, err := p.Probe(context.Background())
	require.Error(t, err)
	require.Empty(t, v.Extractor)
	require.Equal(t, "ffmpeg version 7.1", v.Transcoder)
}

func TestProber_HungToolTimesOut(t *testing.T) {
	t.Parallel()

	hung := writeStub(t, "ytdlp", `sleep 30`)

	p := NewProber(ProberConfig{
		Extractor:  hung,
		Transcoder: hung,
		Timeout:    100 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	_, err := p.Probe(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}
