// Package config provides configuration management for the video-slice agent.
// Values start from defaults, are overlaid by an optional TOML file and then
// by environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort      = 8787
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDataDir   = ".videoslice"
	DefaultExtension = "mp4"
	DefaultProgram   = "transcode"

	DefaultSeekForward         = 15.0
	DefaultSeekBack            = 5.0
	DefaultSeekLongForwardMins = 2.0
	DefaultSeekLongBackMins    = 2.0

	DefaultViewportWidth  = 1280.0
	DefaultViewportHeight = 720.0

	// Environment variable names
	EnvPort                = "VIDEOSLICE_PORT"
	EnvLogLevel            = "VIDEOSLICE_LOG_LEVEL"
	EnvLogFormat           = "VIDEOSLICE_LOG_FORMAT"
	EnvDataDir             = "VIDEOSLICE_DATA_DIR"
	EnvConfigFile          = "VIDEOSLICE_CONFIG"
	EnvHeadless            = "VIDEOSLICE_HEADLESS"
	EnvStreamingExtensions = "VIDEOSLICE_STREAMING_EXTENSIONS"
	EnvProgram             = "VIDEOSLICE_PROGRAM"

	// File names inside the data directory
	DBFilename     = "videoslice.db"
	LockFilename   = "videoslice.lock"
	ConfigFilename = "config.toml"
)

// DefaultStreamingExtensions are routed to the streaming demuxer.
var DefaultStreamingExtensions = []string{"flv", "ts", "m2ts"}

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	ConfigPath() string
	Headless() bool
	StreamingExtensions() []string
	DefaultExtension() string
	Program() string
	SeekForward() float64
	SeekBack() float64
	SeekLongForward() float64
	SeekLongBack() float64
	ViewportWidth() float64
	ViewportHeight() float64
}

// fileConfig mirrors config.toml. Pointer fields distinguish "unset" from a
// zero value.
type fileConfig struct {
	Port                *int     `toml:"port"`
	LogLevel            string   `toml:"log_level"`
	LogFormat           string   `toml:"log_format"`
	DataDir             string   `toml:"data_dir"`
	Headless            *bool    `toml:"headless"`
	StreamingExtensions []string `toml:"streaming_extensions"`
	DefaultExtension    string   `toml:"default_extension"`
	Program             string   `toml:"program"`
	Seek                struct {
		ForwardSeconds  float64 `toml:"forward_seconds"`
		BackSeconds     float64 `toml:"back_seconds"`
		LongForwardMins float64 `toml:"long_forward_minutes"`
		LongBackMins    float64 `toml:"long_back_minutes"`
	} `toml:"seek"`
	Viewport struct {
		Width  float64 `toml:"width"`
		Height float64 `toml:"height"`
	} `toml:"viewport"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port       int
	logLevel   string
	logFormat  string
	dataDir    string
	configPath string
	fileLoaded bool
	headless   bool
	streamExts []string
	defaultExt string
	program    string

	seekForward     float64
	seekBack        float64
	seekLongForward float64
	seekLongBack    float64

	viewportWidth  float64
	viewportHeight float64
}

// New creates a new EnvConfig with defaults, the config file and environment
// variable overrides applied in that order.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		logFormat:       DefaultLogFormat,
		dataDir:         defaultDataDir(),
		streamExts:      append([]string(nil), DefaultStreamingExtensions...),
		defaultExt:      DefaultExtension,
		program:         DefaultProgram,
		seekForward:     DefaultSeekForward,
		seekBack:        DefaultSeekBack,
		seekLongForward: DefaultSeekLongForwardMins * 60,
		seekLongBack:    DefaultSeekLongBackMins * 60,
		viewportWidth:   DefaultViewportWidth,
		viewportHeight:  DefaultViewportHeight,
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.configPath = os.Getenv(EnvConfigFile)
	if cfg.configPath == "" {
		cfg.configPath = filepath.Join(cfg.dataDir, ConfigFilename)
	}
	if err := cfg.loadFile(cfg.configPath); err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.fileLoaded = true

	if fc.Port != nil {
		if err := validPort(*fc.Port); err != nil {
			return fmt.Errorf("config port: %w", err)
		}
		c.port = *fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if fc.DataDir != "" && os.Getenv(EnvDataDir) == "" {
		c.dataDir = fc.DataDir
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.StreamingExtensions != nil {
		c.streamExts = normalizeExtensions(fc.StreamingExtensions)
	}
	if ext := strings.TrimPrefix(strings.TrimSpace(fc.DefaultExtension), "."); ext != "" {
		c.defaultExt = ext
	}
	if fc.Program != "" {
		c.program = fc.Program
	}
	if fc.Seek.ForwardSeconds > 0 {
		c.seekForward = fc.Seek.ForwardSeconds
	}
	if fc.Seek.BackSeconds > 0 {
		c.seekBack = fc.Seek.BackSeconds
	}
	if fc.Seek.LongForwardMins > 0 {
		c.seekLongForward = fc.Seek.LongForwardMins * 60
	}
	if fc.Seek.LongBackMins > 0 {
		c.seekLongBack = fc.Seek.LongBackMins * 60
	}
	if fc.Viewport.Width > 0 {
		c.viewportWidth = fc.Viewport.Width
	}
	if fc.Viewport.Height > 0 {
		c.viewportHeight = fc.Viewport.Height
	}
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
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
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	if exts := os.Getenv(EnvStreamingExtensions); exts != "" {
		c.streamExts = normalizeExtensions(strings.Split(exts, ","))
	}
	if prog := os.Getenv(EnvProgram); prog != "" {
		c.program = prog
	}
	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func normalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ext := range in {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns json or text
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LockPath returns the single-instance lock file path
func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// ConfigPath returns the config file consulted, whether or not it existed
func (c *EnvConfig) ConfigPath() string {
	return c.configPath
}

// FileLoaded reports whether the config file existed and was applied
func (c *EnvConfig) FileLoaded() bool {
	return c.fileLoaded
}

// Headless disables the system tray
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) StreamingExtensions() []string {
	return append([]string(nil), c.streamExts...)
}

func (c *EnvConfig) DefaultExtension() string {
	return c.defaultExt
}

// Program is the transcoder named in generated commands
func (c *EnvConfig) Program() string {
	return c.program
}

func (c *EnvConfig) SeekForward() float64     { return c.seekForward }
func (c *EnvConfig) SeekBack() float64        { return c.seekBack }
func (c *EnvConfig) SeekLongForward() float64 { return c.seekLongForward }
func (c *EnvConfig) SeekLongBack() float64    { return c.seekLongBack }

func (c *EnvConfig) ViewportWidth() float64  { return c.viewportWidth }
func (c *EnvConfig) ViewportHeight() float64 { return c.viewportHeight }

// Setting is one resolved value, for display.
type Setting struct {
	Key   string
	Value string
}

// Settings lists every resolved value in a stable order.
func Settings(c Config) []Setting {
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []Setting{
		{"port", strconv.Itoa(c.Port())},
		{"log_level", c.LogLevel()},
		{"log_format", c.LogFormat()},
		{"data_dir", c.DataDir()},
		{"db_path", c.DBPath()},
		{"config_file", c.ConfigPath()},
		{"headless", strconv.FormatBool(c.Headless())},
		{"streaming_extensions", strings.Join(c.StreamingExtensions(), ",")},
		{"default_extension", c.DefaultExtension()},
		{"program", c.Program()},
		{"seek.forward_seconds", num(c.SeekForward())},
		{"seek.back_seconds", num(c.SeekBack())},
		{"seek.long_forward_seconds", num(c.SeekLongForward())},
		{"seek.long_back_seconds", num(c.SeekLongBack())},
		{"viewport", num(c.ViewportWidth()) + "x" + num(c.ViewportHeight())},
	}
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
