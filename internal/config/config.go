package config

import (
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	ListenLogLevel   string
	LogFormat        string
	LocalHost        string
	LocalPort        int
	WebUIMode        string
	WebUIDevProxyURL string
	WebUIDistDir     string
	TermName         string
	DBPath           string
}

var defaultWebUIMode = "dev"

func LoadConfig() Config {
	level := os.Getenv("VIBEFLOW_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logFormat := strings.ToLower(strings.TrimSpace(os.Getenv("VIBEFLOW_LOG_FORMAT")))
	if logFormat != "text" {
		logFormat = "json"
	}
	localHost := os.Getenv("VIBEFLOW_LOCAL_HOST")
	if localHost == "" {
		localHost = "127.0.0.1"
	}
	localPort := 3001
	if p := os.Getenv("VIBEFLOW_LOCAL_PORT"); p != "" {
		// Malformed values keep the default port.
		if n := atoiOrDefault(p, 3001); n > 0 && n < 65536 {
			localPort = n
		}
	}
	webUIMode := strings.ToLower(strings.TrimSpace(os.Getenv("VIBEFLOW_WEBUI_MODE")))
	if webUIMode == "" {
		webUIMode = defaultWebUIMode
	}
	webUIDevProxyURL := os.Getenv("VIBEFLOW_WEBUI_DEV_PROXY_URL")
	if webUIDevProxyURL == "" {
		webUIDevProxyURL = "http://127.0.0.1:5173"
	}
	webUIDistDir := os.Getenv("VIBEFLOW_WEBUI_DIST_DIR")
	if webUIDistDir == "" {
		webUIDistDir = defaultWebUIDistDir()
	}
	termName := strings.TrimSpace(os.Getenv("VIBEFLOW_TERM_NAME"))
	if termName == "" {
		termName = "xterm-color"
	}

	return Config{
		ListenLogLevel:   level,
		LogFormat:        logFormat,
		LocalHost:        localHost,
		LocalPort:        localPort,
		WebUIMode:        webUIMode,
		WebUIDevProxyURL: webUIDevProxyURL,
		WebUIDistDir:     webUIDistDir,
		TermName:         termName,
		DBPath:           strings.TrimSpace(os.Getenv("VIBEFLOW_DB_PATH")),
	}
}

func defaultWebUIDistDir() string {
	execPath, err := os.Executable()
	if err != nil || execPath == "" {
		return filepath.Clean("../webui/dist")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(execPath), "..", "webui", "dist"))
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
