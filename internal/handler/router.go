package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/courseman/internal/middleware"
)

// HealthChecker はヘルスチェックでのDB疎通確認インターフェース。
// *sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// チャレンジ
	ChallengeService ChallengeServiceInterface

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	→ SessionMiddleware → CSRFMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 一覧・詳細・参加者の読み取りルートと /healthz /metrics /api/csrf-token は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	challengeHandler := NewChallengeHandler(deps.ChallengeService)

	// --- 認証不要のルート ---

	r.Get("/healthz", newHealthzHandler(deps.HealthChecker))

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Get("/api/challenges", challengeHandler.ListChallenges)
	r.Get("/api/challenges/{slug}", challengeHandler.GetChallenge)
	r.Get("/api/challenges/{slug}/participants", challengeHandler.ListParticipants)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 参加申込（申込専用レート制限を追加）
		r.With(deps.RateLimiter.JoinMiddleware()).
			Post("/api/challenges/{slug}/join", challengeHandler.JoinChallenge)

		// チャレンジ管理（講師向け）
		r.Route("/api/courses/{courseID}/challenge", func(r chi.Router) {
			r.Post("/", challengeHandler.CreateChallenge)
			r.Patch("/", challengeHandler.UpdateChallenge)
			r.Delete("/", challengeHandler.DeleteChallenge)
		})
	})

	return r
}

// newHealthzHandler はDB疎通確認つきのヘルスチェックハンドラーを返す。
func newHealthzHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if checker != nil {
			if err := checker.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "unavailable",
				})
				return
			}
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	}
}
