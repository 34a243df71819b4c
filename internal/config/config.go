package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth (Microsoft identity platform)
	MSClientID     string
	MSClientSecret string
	MSRedirectURL  string
	MSTenant       string

	// Session
	SessionMaxAge int

	// Upstream (Microsoft Graph)
	GraphBaseURL string
	GraphTimeout time.Duration

	// Export
	ExportDir string
	ExportTTL time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitMerge   int

	// Server
	ServerPort string
	// MetricsPort はPrometheusメトリクスを公開する専用リスナーのポート。
	MetricsPort string
	// FrontendBaseURL はOAuth完了後のリダイレクト先フロントエンド。
	// コールバックは {FrontendBaseURL}/token-callback?token=... へ遷移する。
	FrontendBaseURL string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.MSClientID = os.Getenv("MS_CLIENT_ID")
	if cfg.MSClientID == "" {
		missing = append(missing, "MS_CLIENT_ID")
	}

	cfg.MSClientSecret = os.Getenv("MS_CLIENT_SECRET")
	if cfg.MSClientSecret == "" {
		missing = append(missing, "MS_CLIENT_SECRET")
	}

	cfg.MSRedirectURL = os.Getenv("MS_REDIRECT_URL")
	if cfg.MSRedirectURL == "" {
		missing = append(missing, "MS_REDIRECT_URL")
	}

	cfg.FrontendBaseURL = os.Getenv("FRONTEND_BASE_URL")
	if cfg.FrontendBaseURL == "" {
		missing = append(missing, "FRONTEND_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MSTenant = getEnvString("MS_TENANT", "common")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.GraphBaseURL = getEnvString("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	cfg.GraphTimeout = getEnvDuration("GRAPH_TIMEOUT", 10*time.Second)
	cfg.ExportDir = getEnvString("EXPORT_DIR", "data/exports")
	cfg.ExportTTL = getEnvDuration("EXPORT_TTL", 7*24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMerge = getEnvInt("RATE_LIMIT_MERGE", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.FrontendBaseURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
