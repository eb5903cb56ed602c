package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"key-lifecycle-service/internal/domain"
)

const (
	defaultAnchorAttempts = 3
	defaultAnchorBackoff  = time.Second

	defaultAuditPageLimit = 20
	maxAuditPageLimit     = 100
)

// AuditRepository は監査エントリのデータアクセスのインターフェース。
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	FindByID(ctx context.Context, id string) (*domain.AuditEntry, error)
	List(ctx context.Context, filter domain.AuditFilter, page, limit int) ([]*domain.AuditEntry, int64, error)
	SetLedgerRef(ctx context.Context, id, ref string) error
}

// LedgerAnchorer は外部台帳へのアンカー操作のインターフェース。
type LedgerAnchorer interface {
	Anchor(ctx context.Context, payload []byte) (string, error)
}

// AuditService は監査エントリの記録と外部台帳へのアンカーを提供する。
type AuditService struct {
	repo   AuditRepository
	ledger LedgerAnchorer

	anchorAttempts int
	anchorBackoff  time.Duration
	wg             sync.WaitGroup
}

// NewAuditService は新しいAuditServiceを生成する。
func NewAuditService(repo AuditRepository, ledger LedgerAnchorer) *AuditService {
	return &AuditService{
		repo:           repo,
		ledger:         ledger,
		anchorAttempts: defaultAnchorAttempts,
		anchorBackoff:  defaultAnchorBackoff,
	}
}

// Record は監査エントリをローカルに永続化する。失敗は呼び出し元の操作を
// 中断させる。台帳アンカーは行わない。呼び出し元はトランザクションの
// コミット後にAnchorを呼ぶ。
// created_atはDATETIME(6)列の精度に合わせてマイクロ秒に切り詰めて保存する。
// アンカー時と再読込時で同一のリーフハッシュを得るための前提条件。
func (s *AuditService) Record(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("persisting audit entry: %w", err)
	}
	return entry, nil
}

// Anchor は永続化済みエントリの外部台帳アンカーを非同期に試行する。
// エントリのコミット後に呼ぶこと。アンカーの失敗は呼び出し元に伝播せず、
// ledger_refはnullのまま残る（有効な終端状態）。
func (s *AuditService) Anchor(ctx context.Context, entry *domain.AuditEntry) {
	payload, err := entry.CanonicalPayload()
	if err != nil {
		// 記録済みの操作はアンカー不能でも取り消さない
		slog.ErrorContext(ctx, "failed to build canonical payload, entry left unanchored",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}

	// リクエストのキャンセルに引きずられないコンテキストでアンカーする
	s.wg.Add(1)
	go s.anchor(context.WithoutCancel(ctx), entry.ID, payload)
}

// anchor は台帳アンカーを有限回リトライする。鍵ロックは一切保持しない。
func (s *AuditService) anchor(ctx context.Context, entryID string, payload []byte) {
	defer s.wg.Done()

	for attempt := 1; attempt <= s.anchorAttempts; attempt++ {
		ref, err := s.ledger.Anchor(ctx, payload)
		if err == nil {
			if err := s.repo.SetLedgerRef(ctx, entryID, ref); err != nil {
				slog.ErrorContext(ctx, "failed to store ledger ref",
					"entry_id", entryID,
					"ledger_ref", ref,
					"error", err,
				)
			}
			return
		}
		slog.WarnContext(ctx, "ledger anchor attempt failed",
			"entry_id", entryID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < s.anchorAttempts {
			time.Sleep(s.anchorBackoff * time.Duration(attempt))
		}
	}

	slog.ErrorContext(ctx, "ledger anchoring exhausted retries, entry left unanchored",
		"entry_id", entryID,
	)
}

// Wait は進行中のアンカー処理の完了を待つ。シャットダウン時に呼ぶ。
func (s *AuditService) Wait() {
	s.wg.Wait()
}

// List はフィルタ条件に一致する監査エントリと総件数を取得する。
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter, page, limit int) ([]*domain.AuditEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultAuditPageLimit
	}
	if limit > maxAuditPageLimit {
		limit = maxAuditPageLimit
	}
	entries, total, err := s.repo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, total, nil
}
