package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// CookieSecret以外は起動時に検証せず、利用時点で未設定を検出する。
// DatabaseURLが空の場合、データストアは利用不可として扱われる。
type Config struct {
	// Application
	AppID        string `env:"VITE_APP_ID"`
	IsProduction bool
	NodeEnv      string `env:"NODE_ENV" envDefault:"development"`

	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Session
	CookieSecret string        `env:"JWT_SECRET,required,notEmpty"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"8760h"`

	// OAuth
	OAuthServerURL string        `env:"OAUTH_SERVER_URL"`
	OAuthTimeout   time.Duration `env:"OAUTH_TIMEOUT" envDefault:"30s"`
	OwnerOpenID    string        `env:"OWNER_OPEN_ID"`

	// Notification
	ForgeAPIURL string `env:"BUILT_IN_FORGE_API_URL"`
	ForgeAPIKey string `env:"BUILT_IN_FORGE_API_KEY"`

	// CRM
	GHLAPIKey            string  `env:"GHL_API_KEY"`
	GHLAgencyID          string  `env:"GHL_AGENCY_ID"`
	GHLSnapshotID        string  `env:"GHL_SNAPSHOT_ID"`
	GHLBaseURL           string  `env:"GHL_BASE_URL" envDefault:"https://services.leadconnectorhq.com"`
	GHLRequestsPerSecond float64 `env:"GHL_REQUESTS_PER_SECOND" envDefault:"10"`

	// Outbound HTTP (CRM, notification)
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`

	// Server
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.IsProduction = cfg.NodeEnv == "production"

	return &cfg, nil
}
