package global

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

const assistantToolsFileName = "assistant-tools.json"

type AssistantTool struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	// Command is the line typed into the task terminal to start the assistant.
	Command string `json:"command"`
	// ConfigDir is relative to the operator home; its presence counts as "installed"
	// when the binary is not on PATH.
	ConfigDir string `json:"config_dir,omitempty"`
}

type AssistantToolsConfig struct {
	Version int             `json:"version"`
	Tools   []AssistantTool `json:"tools"`
}

func (c AssistantToolsConfig) Find(id string) (AssistantTool, bool) {
	id, ok := NormalizeAssistantToolID(id)
	if !ok {
		return AssistantTool{}, false
	}
	for _, item := range c.Tools {
		if item.ID == id {
			return item, true
		}
	}
	return AssistantTool{}, false
}

type AssistantToolsStore struct {
	dir string
}

func NewAssistantToolsStore(dir string) *AssistantToolsStore {
	return &AssistantToolsStore{dir: dir}
}

func (s *AssistantToolsStore) LoadOrInit() (AssistantToolsConfig, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return AssistantToolsConfig{}, err
	}
	path := filepath.Join(s.dir, assistantToolsFileName)
	if b, err := os.ReadFile(path); err == nil {
		var cfg AssistantToolsConfig
		if err := json.Unmarshal(b, &cfg); err != nil {
			return AssistantToolsConfig{}, err
		}
		return normalizeAssistantTools(cfg), nil
	} else if !os.IsNotExist(err) {
		return AssistantToolsConfig{}, err
	}

	cfg := defaultAssistantToolsConfig()
	if err := writeJSONAtomically(path, cfg); err != nil {
		return AssistantToolsConfig{}, err
	}
	return cfg, nil
}

func (s *AssistantToolsStore) Save(cfg AssistantToolsConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeJSONAtomically(filepath.Join(s.dir, assistantToolsFileName), normalizeAssistantTools(cfg))
}

func normalizeAssistantTools(cfg AssistantToolsConfig) AssistantToolsConfig {
	if cfg.Version <= 0 {
		cfg.Version = 1
	}
	out := AssistantToolsConfig{Version: cfg.Version, Tools: make([]AssistantTool, 0, len(cfg.Tools))}
	seen := map[string]bool{}
	for _, item := range cfg.Tools {
		id, ok := NormalizeAssistantToolID(item.ID)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		def := assistantToolDefaults(id)
		if v := strings.TrimSpace(item.DisplayName); v != "" {
			def.DisplayName = v
		}
		if v := strings.TrimSpace(item.Command); v != "" {
			def.Command = v
		}
		if v := strings.TrimSpace(item.ConfigDir); v != "" {
			def.ConfigDir = v
		}
		out.Tools = append(out.Tools, def)
	}
	// Tools missing from the file keep their builtin definition.
	for _, id := range assistantToolIDs {
		if !seen[id] {
			out.Tools = append(out.Tools, assistantToolDefaults(id))
		}
	}
	return out
}

var assistantToolIDs = []string{"claude", "codex", "gemini"}

func defaultAssistantToolsConfig() AssistantToolsConfig {
	out := AssistantToolsConfig{Version: 1}
	for _, id := range assistantToolIDs {
		out.Tools = append(out.Tools, assistantToolDefaults(id))
	}
	return out
}

// NormalizeAssistantToolID lowercases raw and reports whether it names a known tool.
func NormalizeAssistantToolID(raw string) (string, bool) {
	id := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range assistantToolIDs {
		if id == known {
			return id, true
		}
	}
	return "", false
}

func assistantToolDefaults(id string) AssistantTool {
	switch id {
	case "claude":
		return AssistantTool{ID: id, DisplayName: "Claude", Command: "claude", ConfigDir: ".anthropic"}
	case "codex":
		return AssistantTool{ID: id, DisplayName: "Codex", Command: "codex", ConfigDir: ".codex"}
	case "gemini":
		return AssistantTool{ID: id, DisplayName: "Gemini", Command: "gemini", ConfigDir: ".gemini"}
	default:
		return AssistantTool{ID: id, DisplayName: id, Command: id}
	}
}
