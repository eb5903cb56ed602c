package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/internal/middleware"
)

// NewRouter はルーターを生成する。
func NewRouter(keys *KeyHandler, anomaly *AnomalyHandler, audit *AuditHandler, otelEnabled bool) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// ルート定義
	r.Route("/v1/keys", func(r chi.Router) {
		r.With(middleware.RequireRole(domain.OpGenerateKey)).Post("/", keys.GenerateKey)
		r.With(middleware.RequireRole(domain.OpListKeys)).Get("/", keys.ListKeys)
		r.With(middleware.RequireRole(domain.OpRotateKey)).Post("/{key_id}/rotate", keys.RotateKey)
		r.With(middleware.RequireRole(domain.OpRevokeKey)).Post("/{key_id}/revoke", keys.RevokeKey)
	})

	r.With(middleware.RequireRole(domain.OpEvaluateAnomaly)).
		Post("/v1/anomaly/evaluations", anomaly.Evaluate)

	r.Route("/v1/audit/entries", func(r chi.Router) {
		r.With(middleware.RequireRole(domain.OpListAuditEntries)).Get("/", audit.ListEntries)
		r.With(middleware.RequireRole(domain.OpVerifyAuditEntry)).Get("/{id}/verification", audit.VerifyEntry)
	})

	r.With(middleware.RequireRole(domain.OpSystemStatus)).
		Get("/v1/system/status", keys.SystemStatus)

	if otelEnabled {
		return otelhttp.NewHandler(r, "key-lifecycle-service")
	}
	return r
}
