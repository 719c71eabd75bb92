// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/onboarding/internal/auth"
	"github.com/hitoshi/onboarding/internal/config"
	"github.com/hitoshi/onboarding/internal/crm"
	"github.com/hitoshi/onboarding/internal/database"
	"github.com/hitoshi/onboarding/internal/handler"
	"github.com/hitoshi/onboarding/internal/logger"
	"github.com/hitoshi/onboarding/internal/metrics"
	"github.com/hitoshi/onboarding/internal/notify"
	"github.com/hitoshi/onboarding/internal/onboarding"
	"github.com/hitoshi/onboarding/internal/repository"
	"github.com/hitoshi/onboarding/internal/security"
	"github.com/hitoshi/onboarding/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, false)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 本番ではInfoレベル以上に絞る
	if cfg.IsProduction {
		logger.SetupDefault(w, true)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("production", cfg.IsProduction),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// server はワイヤリング済みのHTTPハンドラーと後始末を保持する。
type server struct {
	handler http.Handler
	store   *database.Store
}

// buildServer は設定から全依存関係をワイヤリングする。
// データストアへの接続失敗は起動を妨げず、unavailable状態として各コンポーネントに伝わる。
func buildServer(ctx context.Context, cfg *config.Config) (*server, error) {
	// 1. データストア
	store := database.NewStore(cfg.DatabaseURL)
	if err := store.Open(ctx); err != nil {
		slog.Error("database connection failed; serving with datastore unavailable",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("database connection established")
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリとユーザーディレクトリ
	userRepo := repository.NewPostgresUserRepo(store)
	submissionRepo := repository.NewPostgresSubmissionRepo(store)
	directory := user.NewDirectory(userRepo, cfg.OwnerOpenID)

	// 4. 認証
	codec, err := auth.NewSessionCodec(cfg.CookieSecret, cfg.AppID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create session codec: %w", err)
	}
	identity := auth.NewIdentityClient(auth.IdentityConfig{
		BaseURL: cfg.OAuthServerURL,
		AppID:   cfg.AppID,
		Timeout: cfg.OAuthTimeout,
	}, collector)
	authService := auth.NewService(codec, identity, directory, collector,
		auth.ServiceConfig{SessionTTL: cfg.SessionTTL},
	)

	// 5. 外部サービスクライアント
	upstreamClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	crmClient := crm.NewClient(crm.Config{
		APIKey:            cfg.GHLAPIKey,
		AgencyID:          cfg.GHLAgencyID,
		SnapshotID:        cfg.GHLSnapshotID,
		BaseURL:           cfg.GHLBaseURL,
		RequestsPerSecond: cfg.GHLRequestsPerSecond,
	}, upstreamClient, slog.Default(), collector)
	notifier := notify.NewNotifier(notify.Config{
		BaseURL: cfg.ForgeAPIURL,
		APIKey:  cfg.ForgeAPIKey,
	}, upstreamClient, collector)

	// 6. ドメインサービス
	onboardingService := onboarding.NewService(submissionRepo, crmClient, security.NewTextSanitizer(), collector)

	// 7. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Production:        cfg.IsProduction,
		HealthChecker:     store,
		AuthService:       authService,
		OnboardingService: onboardingService,
		OwnerNotifier:     notifier,
		MetricsHandler:    metrics.Handler(registry),
	})

	return &server{handler: router, store: store}, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.store.Close()

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migration failed: DATABASE_URL is not set")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
