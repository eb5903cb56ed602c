package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/internal/usecase"
	"key-lifecycle-service/pkg/httputil"
)

// AuditHandler は監査証跡のHTTPハンドラを提供する。
type AuditHandler struct {
	audit  *usecase.AuditService
	verify *usecase.VerifyService
}

// NewAuditHandler は新しいAuditHandlerを生成する。
func NewAuditHandler(audit *usecase.AuditService, verify *usecase.VerifyService) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		verify: verify,
	}
}

// AuditEntryResponse は監査エントリのレスポンス形式。
type AuditEntryResponse struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	PerformedBy *string        `json:"performed_by"`
	Details     map[string]any `json:"details"`
	LedgerRef   *string        `json:"ledger_ref"`
	CreatedAt   string         `json:"created_at"`
}

// AuditListResponse は監査エントリ一覧のレスポンス形式。
type AuditListResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
}

// VerificationResponse は監査エントリ検証のレスポンス形式。
type VerificationResponse struct {
	EntryID      string `json:"entry_id"`
	Status       string `json:"status"`
	ComputedRoot string `json:"computed_root,omitempty"`
	LedgerRoot   string `json:"ledger_root,omitempty"`
}

func toAuditEntryResponse(entry *domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:          entry.ID,
		Action:      string(entry.Action),
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		PerformedBy: entry.PerformedBy,
		Details:     entry.Details,
		LedgerRef:   entry.LedgerRef,
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ListEntries は監査エントリ一覧を取得する。
// action / entity_type での絞り込みと page / limit でのページングに対応する。
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.AuditFilter{
		Action:     query.Get("action"),
		EntityType: query.Get("entity_type"),
	}

	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	if page < 1 {
		page = 1
	}

	entries, total, err := h.audit.List(r.Context(), filter, page, limit)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := AuditListResponse{
		Entries: make([]AuditEntryResponse, len(entries)),
		Total:   total,
		Page:    page,
		Limit:   limit,
	}
	for i, entry := range entries {
		response.Entries[i] = toAuditEntryResponse(entry)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// VerifyEntry は監査エントリの台帳アンカーをMerkle包含証明で検証する。
func (h *AuditHandler) VerifyEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	result, err := h.verify.Verify(r.Context(), entryID)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "audit entry not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, VerificationResponse{
		EntryID:      result.EntryID,
		Status:       string(result.Status),
		ComputedRoot: result.ComputedRoot,
		LedgerRoot:   result.LedgerRoot,
	})
}
