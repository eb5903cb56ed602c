package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/internal/usecase"
	"key-lifecycle-service/pkg/httputil"
)

// AnomalyHandler は異常評価のHTTPハンドラを提供する。
type AnomalyHandler struct {
	service *usecase.AnomalyService
}

// NewAnomalyHandler は新しいAnomalyHandlerを生成する。
func NewAnomalyHandler(service *usecase.AnomalyService) *AnomalyHandler {
	return &AnomalyHandler{service: service}
}

// LogEventRequest はログイベントのリクエスト形式。
type LogEventRequest struct {
	Timestamp string `json:"timestamp,omitempty"`
	Source    string `json:"source,omitempty"`
	Message   string `json:"message"`
}

// EvaluateRequest は異常評価リクエストの形式。
type EvaluateRequest struct {
	Logs []LogEventRequest `json:"logs"`
}

// EvaluateResponse は異常評価のレスポンス形式。
type EvaluateResponse struct {
	Score       float64  `json:"score"`
	Action      string   `json:"action"`
	RotatedKeys []string `json:"rotated_keys,omitempty"`
}

// Evaluate はログバッチの異常スコアを評価し、必要なら自動ローテーションを行う。
func (h *AnomalyHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	logs := make([]domain.LogEvent, len(req.Logs))
	for i, log := range req.Logs {
		event := domain.LogEvent{
			Source:  log.Source,
			Message: log.Message,
		}
		if log.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, log.Timestamp)
			if err != nil {
				httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "log timestamp must be RFC 3339")
				return
			}
			event.Timestamp = ts
		}
		logs[i] = event
	}

	decision, err := h.service.Evaluate(r.Context(), logs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLogBatch) {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LOG_BATCH", "log batch exceeds size limit")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, EvaluateResponse{
		Score:       decision.Score,
		Action:      string(decision.Action),
		RotatedKeys: decision.RotatedKeys,
	})
}
