package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for demosync.
type Config struct {
	DefaultStorage string          `toml:"default_storage"` // "local", "remote-file", or "server"
	BaseDir        string          `toml:"base_dir"`
	LogDir         string          `toml:"log_dir"`
	Cache          CacheConfig     `toml:"cache"`
	Remote         RemoteConfig    `toml:"remote"`
	ServerAPI      ServerAPIConfig `toml:"server_api"`
	Autosave       AutosaveConfig  `toml:"autosave"`
	Poll           PollConfig      `toml:"poll"`
	Serve          ServeConfig     `toml:"serve"`
}

// CacheConfig represents configuration for the local cache store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type    string      `toml:"type"`               // "sqlite" or "memory"
	DataDir string      `toml:"data_dir,omitempty"` // only used for type=sqlite
	Flush   FlushConfig `toml:"flush"`
}

// FlushConfig represents configuration for the crash-survivable flush store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type FlushConfig struct {
	Type string `toml:"type"`          // "filesystem" or "memory"
	Dir  string `toml:"dir,omitempty"` // only used for type=filesystem
}

// RemoteConfig holds the remote file store endpoints and container name.
type RemoteConfig struct {
	BaseURL    string `toml:"base_url"`
	UploadURL  string `toml:"upload_url"`
	FolderName string `toml:"folder_name"`
}

// ServerAPIConfig holds the server-backed storage API endpoint.
type ServerAPIConfig struct {
	BaseURL string `toml:"base_url"`
}

// AutosaveConfig tunes the autosave scheduler. Zero values fall back to
// the defaults in the autosave package.
type AutosaveConfig struct {
	LocalDebounceMs  int `toml:"local_debounce_ms"`  // local cache saves are cheap
	RemoteDebounceMs int `toml:"remote_debounce_ms"` // remote-file and server saves
	SavedDisplayMs   int `toml:"saved_display_ms"`   // how long "saved" shows before reverting
}

// PollConfig tunes the external-change poller.
type PollConfig struct {
	IntervalMs int `toml:"interval_ms"`
	GraceMs    int `toml:"grace_ms"` // echo-suppression window after an external change
}

// ServeConfig configures the server-authoritative document API process.
type ServeConfig struct {
	Addr         string `toml:"addr"`
	DatabaseURL  string `toml:"database_url"`
	SitePassword string `toml:"site_password,omitempty"`
}

// NewConfig creates a new Config with the provided base directory and
// default storage locations underneath it.
func NewConfig(baseDir string) *Config {
	return &Config{
		DefaultStorage: "local",
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		Cache: CacheConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "cache"),
			Flush: FlushConfig{
				Type: "filesystem",
				Dir:  filepath.Join(baseDir, "flush"),
			},
		},
		Remote: RemoteConfig{
			FolderName: "Demo Builder Projects",
		},
		Serve: ServeConfig{
			Addr: ":3000",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
