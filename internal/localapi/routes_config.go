package localapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/takecian/vibe-flow/internal/global"
)

const defaultRecentReposLimit = 10

func (s *Server) registerConfigRoutes(r chi.Router) {
	r.Get("/config", s.handleGetConfig)
	r.Put("/config", s.handlePutConfig)
	r.Get("/config/recent-repos", s.handleRecentRepos)
	r.Delete("/config/recent-repos", s.handleClearRecentRepos)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.deps.ConfigStore.LoadOrInit()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
		return
	}
	respondOK(w, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoPath *string `json:"repo_path"`
		AITool   *string `json:"ai_tool"`
		Terminal *struct {
			Shell       *string `json:"shell"`
			DefaultCols *int    `json:"default_cols"`
			DefaultRows *int    `json:"default_rows"`
		} `json:"terminal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	cfg, err := s.deps.ConfigStore.LoadOrInit()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
		return
	}

	if req.RepoPath != nil {
		repo := strings.TrimSpace(*req.RepoPath)
		if repo != "" {
			repo = filepath.Clean(repo)
			info, err := os.Stat(repo)
			if err != nil || !info.IsDir() {
				respondError(w, http.StatusBadRequest, "INVALID_REPO_PATH", "repo_path must be an existing directory")
				return
			}
		}
		cfg.RepoPath = repo
	}
	if req.AITool != nil {
		tool := strings.TrimSpace(*req.AITool)
		if tool != "" {
			id, ok := global.NormalizeAssistantToolID(tool)
			if !ok {
				respondError(w, http.StatusBadRequest, "INVALID_AI_TOOL", "unknown ai_tool: "+tool)
				return
			}
			tool = id
		}
		cfg.AITool = tool
	}
	if req.Terminal != nil {
		if req.Terminal.Shell != nil {
			cfg.Terminal.Shell = strings.TrimSpace(*req.Terminal.Shell)
		}
		if req.Terminal.DefaultCols != nil {
			cfg.Terminal.DefaultCols = *req.Terminal.DefaultCols
		}
		if req.Terminal.DefaultRows != nil {
			cfg.Terminal.DefaultRows = *req.Terminal.DefaultRows
		}
	}

	if err := s.deps.ConfigStore.Save(cfg); err != nil {
		respondError(w, http.StatusInternalServerError, "CONFIG_SAVE_FAILED", err.Error())
		return
	}
	if req.RepoPath != nil && cfg.RepoPath != "" && s.deps.RepoHistory != nil {
		if err := s.deps.RepoHistory.Record(cfg.RepoPath); err != nil {
			s.logger.Warn("record repo history failed", "repo", cfg.RepoPath, "err", err)
		}
	}
	saved, err := s.deps.ConfigStore.LoadOrInit()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
		return
	}
	s.publish(TopicConfig, "", map[string]any{"repo_path": saved.RepoPath, "ai_tool": saved.AITool})
	respondOK(w, saved)
}

func (s *Server) handleRecentRepos(w http.ResponseWriter, r *http.Request) {
	if s.deps.RepoHistory == nil {
		respondOK(w, []any{})
		return
	}
	limit := defaultRecentReposLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.RepoHistory.List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "REPO_HISTORY_FAILED", err.Error())
		return
	}
	respondOK(w, entries)
}

func (s *Server) handleClearRecentRepos(w http.ResponseWriter, _ *http.Request) {
	if s.deps.RepoHistory == nil {
		respondOK(w, map[string]any{"cleared": true})
		return
	}
	if err := s.deps.RepoHistory.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "REPO_HISTORY_FAILED", err.Error())
		return
	}
	respondOK(w, map[string]any{"cleared": true})
}
