// Package config provides configuration management for the timeline agent.
// Defaults are overlaid by an optional TOML file, then by environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".timeline-agent"

	DefaultWaveformDebounce = 300 * time.Millisecond
	DefaultWaveformWidth    = 1600
	DefaultWaveformHeight   = 120
	DefaultOpTimeout        = 30 * time.Minute
	DefaultProbeTimeout     = 30 * time.Second
	DefaultJanitorInterval  = 10 * time.Minute
	DefaultOrphanGrace      = time.Hour

	// Environment variable names
	EnvConfigFile       = "TIMELINE_CONFIG"
	EnvPort             = "TIMELINE_PORT"
	EnvLogLevel         = "TIMELINE_LOG_LEVEL"
	EnvDataDir          = "TIMELINE_DATA_DIR"
	EnvFFmpeg           = "TIMELINE_FFMPEG"
	EnvFFprobe          = "TIMELINE_FFPROBE"
	EnvWaveformDebounce = "TIMELINE_WAVEFORM_DEBOUNCE_MS"
	EnvWaveformSize     = "TIMELINE_WAVEFORM_SIZE"
	EnvOpTimeout        = "TIMELINE_OP_TIMEOUT"
	EnvProbeTimeout     = "TIMELINE_PROBE_TIMEOUT"
	EnvJanitorInterval  = "TIMELINE_JANITOR_INTERVAL"
	EnvOrphanGrace      = "TIMELINE_ORPHAN_GRACE"
	EnvHeadless         = "TIMELINE_HEADLESS"

	// Database filename
	DBFilename = "timeline.db"

	configDirName  = "timeline-agent"
	configFileName = "config.toml"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	WorkDir() string
	FFmpegPath() string
	FFprobePath() string
	WaveformDebounce() time.Duration
	WaveformSize() (width, height int)
	OpTimeout() time.Duration
	ProbeTimeout() time.Duration
	JanitorInterval() time.Duration
	OrphanGrace() time.Duration
	Headless() bool
}

var _ Config = (*EnvConfig)(nil)

// fileConfig mirrors the TOML file. Durations are Go duration strings.
type fileConfig struct {
	Port               int    `toml:"port"`
	LogLevel           string `toml:"log_level"`
	DataDir            string `toml:"data_dir"`
	FFmpeg             string `toml:"ffmpeg"`
	FFprobe            string `toml:"ffprobe"`
	WaveformDebounceMs int    `toml:"waveform_debounce_ms"`
	WaveformWidth      int    `toml:"waveform_width"`
	WaveformHeight     int    `toml:"waveform_height"`
	OpTimeout          string `toml:"op_timeout"`
	ProbeTimeout       string `toml:"probe_timeout"`
	JanitorInterval    string `toml:"janitor_interval"`
	OrphanGrace        string `toml:"orphan_grace"`
	Headless           *bool  `toml:"headless"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port             int
	logLevel         string
	dataDir          string
	ffmpeg           string
	ffprobe          string
	waveformDebounce time.Duration
	waveformWidth    int
	waveformHeight   int
	opTimeout        time.Duration
	probeTimeout     time.Duration
	janitorInterval  time.Duration
	orphanGrace      time.Duration
	headless         bool

	source string
}

// New creates an EnvConfig from defaults, the config file at
// $TIMELINE_CONFIG or the user config dir, and environment overrides.
func New() (*EnvConfig, error) {
	return Load(configFilePath())
}

// Load is New with an explicit config file path. A missing file is not an
// error.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		waveformDebounce: DefaultWaveformDebounce,
		waveformWidth:    DefaultWaveformWidth,
		waveformHeight:   DefaultWaveformHeight,
		opTimeout:        DefaultOpTimeout,
		probeTimeout:     DefaultProbeTimeout,
		janitorInterval:  DefaultJanitorInterval,
		orphanGrace:      DefaultOrphanGrace,
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	var fc fileConfig
	_, err := toml.DecodeFile(path, &fc)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	c.source = path

	if fc.Port != 0 {
		if err := validPort(fc.Port); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if fc.FFmpeg != "" {
		c.ffmpeg = fc.FFmpeg
	}
	if fc.FFprobe != "" {
		c.ffprobe = fc.FFprobe
	}
	if fc.WaveformDebounceMs > 0 {
		c.waveformDebounce = time.Duration(fc.WaveformDebounceMs) * time.Millisecond
	}
	if fc.WaveformWidth > 0 {
		c.waveformWidth = fc.WaveformWidth
	}
	if fc.WaveformHeight > 0 {
		c.waveformHeight = fc.WaveformHeight
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"op_timeout", fc.OpTimeout, &c.opTimeout},
		{"probe_timeout", fc.ProbeTimeout, &c.probeTimeout},
		{"janitor_interval", fc.JanitorInterval, &c.janitorInterval},
		{"orphan_grace", fc.OrphanGrace, &c.orphanGrace},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := parsePositiveDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: invalid %s: %w", path, d.key, err)
		}
		*d.dst = v
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validPort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.ffmpeg = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		c.ffprobe = v
	}
	if v := os.Getenv(EnvWaveformDebounce); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid %s: must be a positive integer", EnvWaveformDebounce)
		}
		c.waveformDebounce = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(EnvWaveformSize); v != "" {
		w, h, err := parseSize(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvWaveformSize, err)
		}
		c.waveformWidth, c.waveformHeight = w, h
	}
	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvOpTimeout, &c.opTimeout},
		{EnvProbeTimeout, &c.probeTimeout},
		{EnvJanitorInterval, &c.janitorInterval},
		{EnvOrphanGrace, &c.orphanGrace},
	}
	for _, d := range durations {
		raw := os.Getenv(d.env)
		if raw == "" {
			continue
		}
		v, err := parsePositiveDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = v
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = b
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// WorkDir is the root under which sessions keep their artifacts.
func (c *EnvConfig) WorkDir() string {
	return filepath.Join(c.dataDir, "work")
}

// FFmpegPath is the configured ffmpeg binary, or "" to search PATH.
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

func (c *EnvConfig) WaveformDebounce() time.Duration {
	return c.waveformDebounce
}

func (c *EnvConfig) WaveformSize() (width, height int) {
	return c.waveformWidth, c.waveformHeight
}

func (c *EnvConfig) OpTimeout() time.Duration {
	return c.opTimeout
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return c.probeTimeout
}

func (c *EnvConfig) JanitorInterval() time.Duration {
	return c.janitorInterval
}

func (c *EnvConfig) OrphanGrace() time.Duration {
	return c.orphanGrace
}

// Headless disables the system tray.
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// Source returns the config file that was read, or "".
func (c *EnvConfig) Source() string {
	return c.source
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

// parseSize parses WIDTHxHEIGHT.
func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("want WIDTHxHEIGHT, got %q", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("bad width %q", ws)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("bad height %q", hs)
	}
	return w, h, nil
}

func configFilePath() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
