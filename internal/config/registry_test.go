package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/pktlink/internal/engine"
	"github.com/muurk/pktlink/internal/filexfer"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if filepath.Base(configDir) != "pktlink" {
		t.Errorf("GetConfigDir() = %v, should end in 'pktlink'", configDir)
	}
	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "pktlink") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME based path", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestGetConfigPathFromEnv(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(ConfigEnvVar, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != want {
		t.Errorf("GetConfigPath() = %v, want %v", got, want)
	}
}

func TestSaveToCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")

	if err := NewRegistry().SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if _, err := LoadFrom(path); err != nil {
		t.Errorf("LoadFrom() error = %v", err)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("Version = %v, want 1", reg.Version)
	}
	if reg.Links == nil {
		t.Error("Links should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("Preferences should not be nil")
	}
	if reg.Engine != DefaultEngineSettings() {
		t.Errorf("Engine = %+v, want defaults", reg.Engine)
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEngineSettingsOptions(t *testing.T) {
	s := EngineSettings{
		ReadTimeout:        2 * time.Second,
		TransmitRetries:    5,
		TransmitRetryDelay: 10 * time.Millisecond,
		ReceiveRetries:     1,
		ReceiveRetryDelay:  20 * time.Millisecond,
		BufferSize:         64,
		MaxPayloadSize:     4096,
	}

	got := engine.New(&bytes.Buffer{}, filexfer.Protocol{}, s.Options()...).Config()
	want := engine.Config{
		ReadTimeout:        2 * time.Second,
		TransmitRetries:    5,
		TransmitRetryDelay: 10 * time.Millisecond,
		ReceiveRetries:     1,
		ReceiveRetryDelay:  20 * time.Millisecond,
		BufferSize:         64,
		MaxPayloadSize:     4096,
	}
	if got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	reg := NewRegistry()
	reg.Engine.ReadTimeout = 3 * time.Second
	reg.Transfer.ChunkSize = 512
	reg.SetLink("bench", "tcp://192.168.1.20:7070", "bench rig")

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the config file", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		t.Errorf("config file mode = %v, want private to the user", info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# pktlink Configuration File") {
		t.Error("saved file is missing the header comment")
	}
	if !strings.Contains(string(data), "read_timeout: 3s") {
		t.Errorf("durations should be written in Go syntax:\n%s", data)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if loaded.Engine != reg.Engine {
		t.Errorf("Engine = %+v, want %+v", loaded.Engine, reg.Engine)
	}
	if loaded.Transfer.ChunkSize != 512 {
		t.Errorf("ChunkSize = %d, want 512", loaded.Transfer.ChunkSize)
	}
	if l := loaded.GetLink("bench"); l == nil || l.Target != "tcp://192.168.1.20:7070" {
		t.Errorf("GetLink(bench) = %+v", l)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	reg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if reg.Engine != DefaultEngineSettings() {
		t.Errorf("Engine = %+v, want defaults", reg.Engine)
	}
}

func TestLoadFromPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: 1\nengine:\n  transmit_retries: 7\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if reg.Engine.TransmitRetries != 7 {
		t.Errorf("TransmitRetries = %d, want 7", reg.Engine.TransmitRetries)
	}
	want := DefaultEngineSettings()
	if reg.Engine.ReadTimeout != want.ReadTimeout || reg.Engine.BufferSize != want.BufferSize {
		t.Errorf("unset settings should keep defaults, got %+v", reg.Engine)
	}
	if reg.Preferences == nil {
		t.Error("Preferences should default when absent")
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "version: [", "failed to parse"},
		{"wrong version", "version: 2\n", "unsupported config version"},
		{"negative timeout", "version: 1\nengine:\n  read_timeout: -1s\n", "read_timeout"},
		{"zero buffer", "version: 1\nengine:\n  buffer_size: 0\n", "buffer_size"},
		{"chunk over max", "version: 1\nengine:\n  max_payload_size: 100\ntransfer:\n  chunk_size: 200\n", "exceeds"},
		{"empty link", "version: 1\nlinks:\n  bench:\n    description: x\n", "no target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFrom(path)
			if err == nil {
				t.Fatal("LoadFrom() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryLinks(t *testing.T) {
	reg := NewRegistry()

	if got := reg.ResolveTarget("tcp://10.0.0.1:7070"); got != "tcp://10.0.0.1:7070" {
		t.Errorf("ResolveTarget(raw) = %q", got)
	}

	reg.SetLink("lab", "ws://lab.local:7071/link", "")
	if got := reg.ResolveTarget("lab"); got != "ws://lab.local:7071/link" {
		t.Errorf("ResolveTarget(lab) = %q", got)
	}

	reg.TouchLink("lab")
	used := reg.GetLink("lab").LastUsed
	if used.IsZero() {
		t.Fatal("TouchLink should set LastUsed")
	}

	reg.SetLink("lab", "tcp://lab.local:7070", "moved")
	if l := reg.GetLink("lab"); !l.LastUsed.Equal(used) || l.Description != "moved" {
		t.Errorf("SetLink should keep LastUsed and replace the rest, got %+v", l)
	}

	if !reg.RemoveLink("lab") {
		t.Error("RemoveLink(lab) = false, want true")
	}
	if reg.RemoveLink("lab") {
		t.Error("second RemoveLink(lab) = true, want false")
	}
	reg.TouchLink("lab")
}

func TestReloadRegistry(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	reg, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	reg.SetLink("bench", "tcp://127.0.0.1:7070", "")
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	again, err := LoadRegistry()
	if err != nil || again != reg {
		t.Errorf("LoadRegistry() should return the cached registry, err = %v", err)
	}

	fresh, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if fresh == reg || fresh.GetLink("bench") == nil {
		t.Error("ReloadRegistry() should reread the saved file")
	}
}
