package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// isolate points the config at an empty data dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	for _, k := range []string{EnvPort, EnvLogLevel, EnvLogFormat, EnvConfigFile, EnvHeadless, EnvStreamingExtensions, EnvProgram} {
		t.Setenv(k, "")
	}
	return dir
}

func TestNew_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort || cfg.LogLevel() != DefaultLogLevel || cfg.LogFormat() != DefaultLogFormat {
		t.Errorf("defaults = %d %q %q", cfg.Port(), cfg.LogLevel(), cfg.LogFormat())
	}
	if cfg.DBPath() != filepath.Join(dir, DBFilename) {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
	if cfg.ConfigPath() != filepath.Join(dir, ConfigFilename) || cfg.FileLoaded() {
		t.Errorf("config file = %q loaded=%v", cfg.ConfigPath(), cfg.FileLoaded())
	}
	if !reflect.DeepEqual(cfg.StreamingExtensions(), []string{"flv", "ts", "m2ts"}) {
		t.Errorf("StreamingExtensions = %v", cfg.StreamingExtensions())
	}
	if cfg.SeekLongForward() != 120 || cfg.SeekBack() != 5 {
		t.Errorf("seek steps = %v %v", cfg.SeekLongForward(), cfg.SeekBack())
	}
	if cfg.Program() != "transcode" || cfg.DefaultExtension() != "mp4" {
		t.Errorf("program/ext = %q %q", cfg.Program(), cfg.DefaultExtension())
	}
}

func TestNew_File(t *testing.T) {
	dir := isolate(t)
	content := `
port = 9000
log_format = "text"
headless = true
streaming_extensions = [".FLV", "ts"]
default_extension = ".mkv"
program = "ffcut"

[seek]
forward_seconds = 30
long_back_minutes = 5

[viewport]
width = 1920
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.FileLoaded() {
		t.Fatal("config file not loaded")
	}
	if cfg.Port() != 9000 || cfg.LogFormat() != "text" || !cfg.Headless() {
		t.Errorf("port/format/headless = %d %q %v", cfg.Port(), cfg.LogFormat(), cfg.Headless())
	}
	if !reflect.DeepEqual(cfg.StreamingExtensions(), []string{"flv", "ts"}) {
		t.Errorf("StreamingExtensions = %v", cfg.StreamingExtensions())
	}
	if cfg.DefaultExtension() != "mkv" || cfg.Program() != "ffcut" {
		t.Errorf("ext/program = %q %q", cfg.DefaultExtension(), cfg.Program())
	}
	if cfg.SeekForward() != 30 || cfg.SeekLongBack() != 300 || cfg.SeekBack() != DefaultSeekBack {
		t.Errorf("seek = %v %v %v", cfg.SeekForward(), cfg.SeekLongBack(), cfg.SeekBack())
	}
	if cfg.ViewportWidth() != 1920 || cfg.ViewportHeight() != DefaultViewportHeight {
		t.Errorf("viewport = %vx%v", cfg.ViewportWidth(), cfg.ViewportHeight())
	}
}

func TestNew_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	if err := os.WriteFile(path, []byte("port = 9000\nprogram = \"ffcut\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvStreamingExtensions, "flv, M2TS")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port = %d, want env value", cfg.Port())
	}
	if cfg.Program() != "ffcut" {
		t.Errorf("Program = %q, want file value", cfg.Program())
	}
	if !reflect.DeepEqual(cfg.StreamingExtensions(), []string{"flv", "m2ts"}) {
		t.Errorf("StreamingExtensions = %v", cfg.StreamingExtensions())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"port not a number", map[string]string{EnvPort: "abc"}, ""},
		{"port out of range", map[string]string{EnvPort: "70000"}, ""},
		{"headless not a bool", map[string]string{EnvHeadless: "maybe"}, ""},
		{"file port out of range", nil, "port = 0\n"},
		{"malformed file", nil, "port = \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				if err := os.WriteFile(filepath.Join(dir, ConfigFilename), []byte(tt.file), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := New(); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestSettings(t *testing.T) {
	isolate(t)
	cfg, err := New()
	if err != nil {
		t.Fatal(err)
	}
	settings := Settings(cfg)
	if settings[0].Key != "port" || settings[0].Value != "8787" {
		t.Errorf("first setting = %+v", settings[0])
	}
	if got := settings[len(settings)-1].Value; got != "1280x720" {
		t.Errorf("viewport = %q", got)
	}
}
