package global

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configTOMLFileName = "config.toml"

	DefaultTerminalCols = 80
	DefaultTerminalRows = 30
)

type TerminalConfig struct {
	Shell       string `json:"shell" toml:"shell"`
	DefaultCols int    `json:"default_cols" toml:"default_cols"`
	DefaultRows int    `json:"default_rows" toml:"default_rows"`
}

type GlobalConfig struct {
	RepoPath string         `json:"repo_path" toml:"repo_path"`
	AITool   string         `json:"ai_tool" toml:"ai_tool"`
	Terminal TerminalConfig `json:"terminal" toml:"terminal"`
}

type ConfigStore struct {
	dir string
}

func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir}
}

func (s *ConfigStore) Dir() string {
	return s.dir
}

func (s *ConfigStore) LoadOrInit() (GlobalConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return GlobalConfig{}, err
	}

	path := filepath.Join(s.dir, configTOMLFileName)
	if b, err := os.ReadFile(path); err == nil {
		var cfg GlobalConfig
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return GlobalConfig{}, err
		}
		return normalizeConfig(cfg), nil
	} else if !os.IsNotExist(err) {
		return GlobalConfig{}, err
	}

	cfg := normalizeConfig(GlobalConfig{})
	if err := writeTOMLAtomically(path, cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func (s *ConfigStore) Save(cfg GlobalConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, configTOMLFileName), normalizeConfig(cfg))
}

// RepoRoot returns the configured repository root, or "" when unset or unreadable.
func (s *ConfigStore) RepoRoot() string {
	cfg, err := s.LoadOrInit()
	if err != nil {
		return ""
	}
	return cfg.RepoPath
}

func normalizeConfig(cfg GlobalConfig) GlobalConfig {
	cfg.RepoPath = strings.TrimSpace(cfg.RepoPath)
	if cfg.RepoPath != "" {
		cfg.RepoPath = filepath.Clean(cfg.RepoPath)
	}
	if id, ok := NormalizeAssistantToolID(cfg.AITool); ok {
		cfg.AITool = id
	} else {
		cfg.AITool = ""
	}
	cfg.Terminal.Shell = strings.TrimSpace(cfg.Terminal.Shell)
	if cfg.Terminal.DefaultCols <= 0 {
		cfg.Terminal.DefaultCols = DefaultTerminalCols
	}
	if cfg.Terminal.DefaultRows <= 0 {
		cfg.Terminal.DefaultRows = DefaultTerminalRows
	}
	return cfg
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeJSONAtomically(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
