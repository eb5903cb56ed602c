// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/pkg/httputil"
)

type contextKey int

const actorKey contextKey = iota

// Actor はリクエストの実行主体。
type Actor struct {
	ID   string
	Role domain.Role
}

// WithActor は実行主体をコンテキストに設定する。
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext はコンテキストから実行主体を取得する。
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// RequireRole は操作に必要な権限を検証するミドルウェアを返す。
// 実行主体はX-Actor-Id / X-Actor-Roleヘッダから特定する。
func RequireRole(operation domain.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := r.Header.Get("X-Actor-Id")
			role := domain.Role(r.Header.Get("X-Actor-Role"))

			if !domain.Allow(role, operation) {
				slog.WarnContext(r.Context(), "operation denied",
					"operation", string(operation),
					"actor_id", actorID,
					"role", string(role),
				)
				httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "role is not permitted to perform this operation")
				return
			}

			// 変更操作は監査エントリのperformedByに記録する実行主体を必須とする
			if actorID == "" && operation.Mutates() {
				slog.WarnContext(r.Context(), "operation denied, actor id missing",
					"operation", string(operation),
					"role", string(role),
				)
				httputil.Error(w, http.StatusForbidden, "FORBIDDEN", "actor id is required for this operation")
				return
			}

			ctx := WithActor(r.Context(), Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
