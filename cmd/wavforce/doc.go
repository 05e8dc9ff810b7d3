// Package main hosts the audio conversion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes the info, health, metrics, and
//     conversion endpoints. A conversion request is validated, sanitized, and
//     handed to the pipeline; the converted WAV streams back in the same
//     response with attachment headers.
//   - Pipeline: internal/convert.Pipeline owns one job's lifecycle. It
//     creates an isolated scratch workspace, walks the ordered extraction
//     profiles until one succeeds, resolves and vets the output file, and
//     guarantees the workspace is removed exactly once on every path.
//   - Subprocess supervision: internal/extractor.Runner spawns the external
//     extraction tool per attempt, watches stdout/stderr incrementally for a
//     stall window, enforces a hard deadline, and escalates SIGTERM to
//     SIGKILL on termination. A profile timing out or stalling aborts the
//     remaining fallbacks; an ordinary failure moves to the next profile.
//   - Error classification: internal/convert.Classifier maps tool output to
//     stable categories and client-safe messages, which the API layer turns
//     into HTTP statuses (bad input 400, sign-in walls 403, timeouts 504).
//   - Configuration & plumbing: Viper populates config from env/files under
//     the WAVFORCE_ prefix; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler.
//     The service keeps no state between requests beyond the short-lived
//     session token shared across attempts.
//
// Operational notes:
//   - Concurrency model: each request runs its own job; within a job,
//     attempts are strictly sequential and a new process starts only after
//     the previous one is confirmed dead.
//   - The external tools (yt-dlp, ffmpeg) are probed at startup and on every
//     /health call; a missing tool degrades health to 503 without killing
//     the process.
//   - Run locally: go run ./cmd/wavforce -config config.yaml, or rely on
//     WAVFORCE_* env overrides (WAVFORCE_SERVER_PORT, WAVFORCE_CONVERT_*).
//     The process reacts to SIGTERM for graceful drain.
package main
