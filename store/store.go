// Package store keeps the router connection settings in a JSON file.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"i4.energy/across/atbridge/secret"
)

// DefaultFileName is the settings file name used beside the executable.
const DefaultFileName = "remote_config.json"

// DefaultPath places the settings file beside the running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

// record is the on-disk form of Settings, with the password in the clear.
type record struct {
	Host        string `json:"host"`
	Port        int    `json:"ssh_port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Interface   string `json:"interface"`
	CommandTool string `json:"at_command_tool"`
	CommandArgs string `json:"at_command_args"`
	Debug       bool   `json:"debug"`
}

func toRecord(s Settings) record {
	return record{
		Host:        s.Host,
		Port:        s.Port,
		Username:    s.Username,
		Password:    s.Password.Reveal(),
		Interface:   s.Interface,
		CommandTool: s.CommandTool,
		CommandArgs: s.CommandArgs,
		Debug:       s.Debug,
	}
}

func (r record) settings() Settings {
	return Settings{
		Host:        r.Host,
		Port:        r.Port,
		Username:    r.Username,
		Password:    secret.New(r.Password),
		Interface:   r.Interface,
		CommandTool: r.CommandTool,
		CommandArgs: r.CommandArgs,
		Debug:       r.Debug,
	}
}

// FileStore reads and writes Settings at a fixed path. It is safe for
// concurrent use; writers replace the file atomically so readers never see a
// partial document.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileStore returns a store for path. A nil logger discards.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the settings file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stored settings merged over Defaults. A missing or
// unreadable file yields Defaults; unknown keys are ignored.
func (s *FileStore) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() Settings {
	defaults := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Failed to read settings, using defaults", "path", s.path, "error", err)
		}
		return defaults
	}

	r := toRecord(defaults)
	if err := json.Unmarshal(data, &r); err != nil {
		s.logger.Warn("Failed to parse settings, using defaults", "path", s.path, "error", err)
		return defaults
	}
	if r.Port == 0 {
		r.Port = defaults.Port
	}
	return r.settings()
}

// Save replaces the stored settings. Only the port is checked; incomplete
// settings may be saved and are rejected when used.
func (s *FileStore) Save(settings Settings) error {
	if err := settings.validatePort(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

// Update applies p to the stored settings, saves and returns the result.
func (s *FileStore) Update(p Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := p.Apply(s.load())
	if err := updated.validatePort(); err != nil {
		return Settings{}, err
	}
	if err := s.save(updated); err != nil {
		return Settings{}, err
	}
	return updated, nil
}

func (s *FileStore) save(settings Settings) error {
	data, err := json.MarshalIndent(toRecord(settings), "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}

	s.logger.Info("Settings saved", "path", s.path, "settings", settings)
	return nil
}
