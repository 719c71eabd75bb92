package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/onboarding/internal/middleware"
)

// HealthChecker はデータストアの疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	Production        bool

	// ヘルスチェック（nilの場合はデータストアを確認しない）
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface

	// RPC
	OnboardingService OnboardingServiceInterface
	OwnerNotifier     OwnerNotifierInterface

	// /metrics（nilの場合はマウントしない）
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → Auth（/api/trpc のみ）
//
// OAuthコールバックとヘルスチェックは認証ミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Production))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	rpcHandler := newRPCHandler(newProcedures(deps.OnboardingService, deps.OwnerNotifier))

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	r.Get("/api/oauth/callback", authHandler.Callback)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- RPC ---
	// 認証ミドルウェアはユーザーを解決するのみで、認可はプロシージャごとに行う
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Handle("/api/trpc/{procedure}", rpcHandler)
	})

	return r
}

// healthHandler はプロセスの生存確認を返す。
// データストアが利用不可でもプロセスは応答可能なため200を返し、状態のみを報告する。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Warn("health check: datastore unavailable", slog.String("error", err.Error()))
				body["database"] = "unavailable"
			} else {
				body["database"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	}
}
