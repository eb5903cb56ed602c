// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/internal/middleware"
	"key-lifecycle-service/internal/usecase"
	"key-lifecycle-service/pkg/httputil"
)

// KeyHandler は鍵ライフサイクル操作のHTTPハンドラを提供する。
type KeyHandler struct {
	service *usecase.KeyService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(service *usecase.KeyService) *KeyHandler {
	return &KeyHandler{service: service}
}

// GenerateKeyRequest は鍵生成リクエストの形式。
type GenerateKeyRequest struct {
	Algorithm string            `json:"algorithm"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// KeyMetadataResponse は鍵メタデータのレスポンス形式。
type KeyMetadataResponse struct {
	Family         string            `json:"family"`
	Labels         map[string]string `json:"labels,omitempty"`
	PreviousKeyID  string            `json:"previous_key_id,omitempty"`
	RotationReason string            `json:"rotation_reason,omitempty"`
	RotatedBy      string            `json:"rotated_by,omitempty"`
	Automated      bool              `json:"automated,omitempty"`
}

// KeyResponse は鍵のレスポンス形式。秘密鍵素材は含まれない。
type KeyResponse struct {
	KeyID        string              `json:"key_id"`
	PublicKey    string              `json:"public_key"`
	Algorithm    string              `json:"algorithm"`
	Status       string              `json:"status"`
	RotationDate string              `json:"rotation_date"`
	ExpiryDate   string              `json:"expiry_date"`
	Metadata     KeyMetadataResponse `json:"metadata"`
	CreatedAt    string              `json:"created_at"`
}

// KeyListResponse は鍵一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyResponse `json:"keys"`
}

// RotationResponse はローテーション結果のレスポンス形式。
type RotationResponse struct {
	OldKeyID     string `json:"old_key_id"`
	NewKeyID     string `json:"new_key_id"`
	Algorithm    string `json:"algorithm"`
	RotationDate string `json:"rotation_date"`
}

// SystemStatusResponse はシステム状態のレスポンス形式。
type SystemStatusResponse struct {
	Status string           `json:"status"`
	Keys   map[string]int64 `json:"keys"`
}

func toKeyResponse(key *domain.Key) KeyResponse {
	return KeyResponse{
		KeyID:        key.KeyID,
		PublicKey:    key.PublicKey,
		Algorithm:    string(key.Algorithm),
		Status:       string(key.Status),
		RotationDate: key.RotationDate.UTC().Format(time.RFC3339),
		ExpiryDate:   key.ExpiryDate.UTC().Format(time.RFC3339),
		Metadata: KeyMetadataResponse{
			Family:         string(key.Metadata.Family),
			Labels:         key.Metadata.Labels,
			PreviousKeyID:  key.Metadata.PreviousKeyID,
			RotationReason: key.Metadata.RotationReason,
			RotatedBy:      key.Metadata.RotatedBy,
			Automated:      key.Metadata.Automated,
		},
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func actorID(r *http.Request) string {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return ""
	}
	return actor.ID
}

// GenerateKey は新しい暗号鍵を生成する。
func (h *KeyHandler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	key, err := h.service.GenerateKey(r.Context(), domain.Algorithm(req.Algorithm), req.Labels, actorID(r))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAlgorithm) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_ALGORITHM", "algorithm must be one of: kyber, dilithium, aes")
			return
		}
		if errors.Is(err, domain.ErrInvalidMetadata) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_METADATA", "metadata labels exceed allowed size")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusCreated, toKeyResponse(key))
}

// RotateKeyRequest はローテーションリクエストの形式。
type RotateKeyRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RotateKey は鍵をローテーションする。
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")

	var req RotateKeyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "Manual rotation"
	}

	result, err := h.service.RotateKey(r.Context(), keyID, req.Reason, actorID(r), false)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "active key not found")
			return
		}
		if errors.Is(err, domain.ErrRotationConflict) {
			httputil.Error(w, http.StatusConflict, "ROTATION_CONFLICT", "key was rotated concurrently")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, RotationResponse{
		OldKeyID:     result.OldKeyID,
		NewKeyID:     result.NewKeyID,
		Algorithm:    string(result.Algorithm),
		RotationDate: result.RotationDate.UTC().Format(time.RFC3339),
	})
}

// RevokeKey は鍵を失効させる。
func (h *KeyHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	keyID := chi.URLParam(r, "key_id")

	key, err := h.service.RevokeKey(r.Context(), keyID, actorID(r))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, http.StatusNotFound, "KEY_NOT_FOUND", "key not found")
			return
		}
		if errors.Is(err, domain.ErrKeyAlreadyRevoked) {
			httputil.Error(w, http.StatusConflict, "KEY_ALREADY_REVOKED", "key is already revoked")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toKeyResponse(key))
}

// ListKeys は鍵一覧を取得する。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := KeyListResponse{
		Keys: make([]KeyResponse, len(keys)),
	}
	for i, key := range keys {
		response.Keys[i] = toKeyResponse(key)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// SystemStatus はステータスごとの鍵数を返す。
func (h *KeyHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.StatusCounts(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	keys := make(map[string]int64, len(counts))
	for status, count := range counts {
		keys[string(status)] = count
	}
	httputil.JSON(w, http.StatusOK, SystemStatusResponse{
		Status: "ok",
		Keys:   keys,
	})
}
