// Package config provides configuration management for fc2dl using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultQuality          = "3Mbps"
	defaultLatency          = "mid"
	defaultThreads          = 1
	defaultOutputTemplate   = "%(date)s %(title)s (%(channel_name)s).%(ext)s"
	defaultWaitPollInterval = 5 * time.Second
	defaultHTTPTimeout      = 60 * time.Second
)

// ValidQualities lists the quality names accepted by the recording
// configuration, in ascending order of bitrate with the audio-only "sound"
// stream last.
var ValidQualities = []string{"150Kbps", "400Kbps", "1.2Mbps", "2Mbps", "3Mbps", "sound"}

// ValidLatencies lists the latency names accepted by the recording configuration.
var ValidLatencies = []string{"low", "high", "mid"}

// Config holds all configuration for the application.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Recording RecordingConfig `mapstructure:"recording"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // silent, error, warn, info, debug, trace
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RecordingConfig holds the per-session recording options.
type RecordingConfig struct {
	Quality           string        `mapstructure:"quality"`
	Latency           string        `mapstructure:"latency"`
	Threads           int           `mapstructure:"threads"`
	OutputTemplate    string        `mapstructure:"output_template"`
	WriteChat         bool          `mapstructure:"write_chat"`
	WriteInfoJSON     bool          `mapstructure:"write_info_json"`
	WriteThumbnail    bool          `mapstructure:"write_thumbnail"`
	WaitForLive       bool          `mapstructure:"wait_for_live"`
	WaitPollInterval  time.Duration `mapstructure:"wait_poll_interval"`
	CookiesFile       string        `mapstructure:"cookies_file"`
	Remux             bool          `mapstructure:"remux"`
	KeepIntermediates bool          `mapstructure:"keep_intermediates"`
	ExtractAudio      bool          `mapstructure:"extract_audio"`
	DumpWebsocket     bool          `mapstructure:"dump_websocket"`
}

// HTTPConfig holds HTTP client configuration.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = look up on PATH)
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with FC2DL_, using underscores for nesting.
// Example: FC2DL_RECORDING_THREADS=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fc2dl")
	}

	v.SetEnvPrefix("FC2DL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so the defaults are
// in place when viper unmarshals.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Recording defaults
	v.SetDefault("recording.quality", defaultQuality)
	v.SetDefault("recording.latency", defaultLatency)
	v.SetDefault("recording.threads", defaultThreads)
	v.SetDefault("recording.output_template", defaultOutputTemplate)
	v.SetDefault("recording.write_chat", false)
	v.SetDefault("recording.write_info_json", false)
	v.SetDefault("recording.write_thumbnail", false)
	v.SetDefault("recording.wait_for_live", false)
	v.SetDefault("recording.wait_poll_interval", defaultWaitPollInterval)
	v.SetDefault("recording.cookies_file", "")
	v.SetDefault("recording.remux", true)
	v.SetDefault("recording.keep_intermediates", false)
	v.SetDefault("recording.extract_audio", false)
	v.SetDefault("recording.dump_websocket", false)

	// HTTP defaults
	v.SetDefault("http.timeout", defaultHTTPTimeout)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"silent": true, "error": true, "warn": true,
		"info": true, "debug": true, "trace": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: silent, error, warn, info, debug, trace")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if !slices.Contains(ValidQualities, c.Recording.Quality) {
		return fmt.Errorf("recording.quality must be one of: %s", strings.Join(ValidQualities, ", "))
	}
	if !slices.Contains(ValidLatencies, c.Recording.Latency) {
		return fmt.Errorf("recording.latency must be one of: %s", strings.Join(ValidLatencies, ", "))
	}
	if c.Recording.Threads < 1 {
		return fmt.Errorf("recording.threads must be at least 1")
	}
	if c.Recording.OutputTemplate == "" {
		return fmt.Errorf("recording.output_template is required")
	}
	if c.Recording.WaitPollInterval <= 0 {
		return fmt.Errorf("recording.wait_poll_interval must be positive")
	}

	return nil
}
