// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Tools    ToolsConfig     `mapstructure:"tools"`
	Convert  ConvertConfig   `mapstructure:"convert"`
	Profiles []ProfileConfig `mapstructure:"profiles"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ToolsConfig names the external binaries and probe behavior.
type ToolsConfig struct {
	Extractor       string `mapstructure:"extractor"`
	Transcoder      string `mapstructure:"transcoder"`
	ProbeTimeoutSec int    `mapstructure:"probe_timeout_seconds"`
}

// ConvertConfig governs the conversion job lifecycle: workspace placement,
// subprocess timeouts, size/duration ceilings, and cleanup behavior.
type ConvertConfig struct {
	ScratchRoot         string `mapstructure:"scratch_root"`
	WorkspacePrefix     string `mapstructure:"workspace_prefix"`
	MaxDownloadMB       int    `mapstructure:"max_download_mb"`
	MaxOutputMB         int    `mapstructure:"max_output_mb"`
	MaxDurationSeconds  int    `mapstructure:"max_duration_seconds"`
	HardTimeoutSeconds  int    `mapstructure:"hard_timeout_seconds"`
	StallWindowSeconds  int    `mapstructure:"stall_window_seconds"`
	KillGraceSeconds    int    `mapstructure:"kill_grace_seconds"`
	AttemptDelayMs      int    `mapstructure:"attempt_delay_ms"`
	OutputPollRetries   int    `mapstructure:"output_poll_retries"`
	OutputPollMs        int    `mapstructure:"output_poll_ms"`
	CleanupDelaySeconds int    `mapstructure:"cleanup_delay_seconds"`
	SessionTokenTTLSec  int    `mapstructure:"session_token_ttl_seconds"`
}

// ProfileConfig is one named fallback strategy for the extraction tool:
// extra arguments layered on top of the fixed base invocation.
type ProfileConfig struct {
	Name string   `mapstructure:"name"`
	Args []string `mapstructure:"args"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAVFORCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Profiles) == 0 {
		cfg.Profiles = DefaultProfiles()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.max_body_bytes", 10*1024*1024)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("tools.extractor", "yt-dlp")
	v.SetDefault("tools.transcoder", "ffmpeg")
	v.SetDefault("tools.probe_timeout_seconds", 10)
	v.SetDefault("convert.scratch_root", "/tmp")
	v.SetDefault("convert.workspace_prefix", "wavforce")
	v.SetDefault("convert.max_download_mb", 100)
	v.SetDefault("convert.max_output_mb", 50)
	v.SetDefault("convert.max_duration_seconds", 1200)
	v.SetDefault("convert.hard_timeout_seconds", 600)
	v.SetDefault("convert.stall_window_seconds", 45)
	v.SetDefault("convert.kill_grace_seconds", 5)
	v.SetDefault("convert.attempt_delay_ms", 1500)
	v.SetDefault("convert.output_poll_retries", 5)
	v.SetDefault("convert.output_poll_ms", 200)
	v.SetDefault("convert.cleanup_delay_seconds", 0)
	v.SetDefault("convert.session_token_ttl_seconds", 600)
	v.SetDefault("logging.development", true)
}

// DefaultProfiles is the built-in fallback order: the plain invocation first,
// then alternate simulated player clients that tend to get past blocks the
// default client hits.
func DefaultProfiles() []ProfileConfig {
	return []ProfileConfig{
		{Name: "default"},
		{Name: "android", Args: []string{"--extractor-args", "youtube:player_client=android"}},
		{Name: "ios", Args: []string{"--extractor-args", "youtube:player_client=ios"}},
		{Name: "tv_embedded", Args: []string{"--extractor-args", "youtube:player_client=tv_embedded"}},
		{Name: "web_safari", Args: []string{"--extractor-args", "youtube:player_client=web_safari"}},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tools.Extractor == "" || c.Tools.Transcoder == "" {
		return fmt.Errorf("tools.extractor and tools.transcoder must be set")
	}
	if c.Convert.ScratchRoot == "" {
		return fmt.Errorf("convert.scratch_root must be set")
	}
	if c.Convert.HardTimeoutSeconds <= 0 {
		return fmt.Errorf("convert.hard_timeout_seconds must be > 0")
	}
	if c.Convert.StallWindowSeconds <= 0 {
		return fmt.Errorf("convert.stall_window_seconds must be > 0")
	}
	if c.Convert.StallWindowSeconds >= c.Convert.HardTimeoutSeconds {
		return fmt.Errorf("convert.stall_window_seconds must be < convert.hard_timeout_seconds")
	}
	if c.Convert.MaxOutputMB <= 0 || c.Convert.MaxDownloadMB <= 0 {
		return fmt.Errorf("convert size ceilings must be > 0")
	}
	if c.Convert.AttemptDelayMs < 0 || c.Convert.AttemptDelayMs > 10000 {
		return fmt.Errorf("convert.attempt_delay_ms must be between 0 and 10000")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one extraction profile is required")
	}
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("profiles[%d].name must be set", i)
		}
	}
	return nil
}

// HardTimeout is the per-attempt subprocess ceiling.
func (c ConvertConfig) HardTimeout() time.Duration {
	return time.Duration(c.HardTimeoutSeconds) * time.Second
}

// StallWindow is the no-output window after which a live subprocess is
// considered wedged.
func (c ConvertConfig) StallWindow() time.Duration {
	return time.Duration(c.StallWindowSeconds) * time.Second
}

// KillGrace is how long a terminated subprocess gets to honor SIGTERM before
// it is killed outright.
func (c ConvertConfig) KillGrace() time.Duration {
	return time.Duration(c.KillGraceSeconds) * time.Second
}

// AttemptDelay is the pause inserted between failed profile attempts.
func (c ConvertConfig) AttemptDelay() time.Duration {
	return time.Duration(c.AttemptDelayMs) * time.Millisecond
}

// OutputPollInterval is the wait between output-file visibility polls.
func (c ConvertConfig) OutputPollInterval() time.Duration {
	return time.Duration(c.OutputPollMs) * time.Millisecond
}

// CleanupDelay is the pause between finishing a response stream and
// destroying the job workspace.
func (c ConvertConfig) CleanupDelay() time.Duration {
	return time.Duration(c.CleanupDelaySeconds) * time.Second
}

// SessionTokenTTL bounds reuse of the selector's session token.
func (c ConvertConfig) SessionTokenTTL() time.Duration {
	return time.Duration(c.SessionTokenTTLSec) * time.Second
}

// MaxOutputBytes is the response-size ceiling in bytes.
func (c ConvertConfig) MaxOutputBytes() int64 {
	return int64(c.MaxOutputMB) * 1024 * 1024
}

// ProbeTimeout bounds external tool version probes.
func (c ToolsConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}
