package repository

import (
	"context"
	"testing"
	"time"

	"key-lifecycle-service/internal/domain"

	"gorm.io/gorm"
)

// setupAuditTestDB はaudit_logsテーブル付きのテスト用DBを作成する。
func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := setupTestDB(t)
	sql := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			performed_by TEXT,
			details TEXT,
			ledger_ref TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX idx_action ON audit_logs(action);
		CREATE INDEX idx_entity_type ON audit_logs(entity_type);
		CREATE INDEX idx_created_at ON audit_logs(created_at);
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create audit_logs table: %v", err)
	}
	return db
}

func testEntry(action domain.AuditAction, performedBy *string) *domain.AuditEntry {
	return &domain.AuditEntry{
		Action:      action,
		EntityType:  domain.EntityTypeKey,
		EntityID:    "key-entity-1",
		PerformedBy: performedBy,
		Details:     map[string]any{"keyId": "abc123"},
	}
}

func TestAuditRepository_Create(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	performedBy := "admin-1"
	entry := testEntry(domain.ActionKeyGenerated, &performedBy)
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if entry.ID == "" {
		t.Error("expected ID to be generated, got empty")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set, got zero value")
	}
}

func TestAuditRepository_Create_NullPerformedBy(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	// 自動ローテーションはperformed_byをnullで記録する
	entry := testEntry(domain.ActionAutoKeyRotated, nil)
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stored, err := repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.PerformedBy != nil {
		t.Errorf("expected performed_by=nil, got %v", *stored.PerformedBy)
	}
}

func TestAuditRepository_FindByID(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	performedBy := "admin-1"
	entry := testEntry(domain.ActionKeyRevoked, &performedBy)
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// エントリが存在する場合: 詳細が往復する
	stored, err := repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored == nil {
		t.Fatal("expected entry, got nil")
	}
	if stored.Action != domain.ActionKeyRevoked {
		t.Errorf("expected action=KEY_REVOKED, got %s", stored.Action)
	}
	if stored.Details["keyId"] != "abc123" {
		t.Errorf("expected details roundtrip, got %+v", stored.Details)
	}
	if stored.LedgerRef != nil {
		t.Errorf("expected nil ledger_ref before anchoring, got %v", *stored.LedgerRef)
	}

	// エントリが存在しない場合
	stored, err = repo.FindByID(ctx, "missing")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored != nil {
		t.Errorf("expected nil, got %+v", stored)
	}
}

func TestAuditRepository_List(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	performedBy := "admin-1"
	actions := []domain.AuditAction{
		domain.ActionKeyGenerated,
		domain.ActionKeyGenerated,
		domain.ActionKeyRotated,
		domain.ActionKeyRevoked,
	}
	for _, action := range actions {
		if err := repo.Create(ctx, testEntry(action, &performedBy)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// フィルタなし
	entries, total, err := repo.List(ctx, domain.AuditFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 4 {
		t.Errorf("expected total=4, got %d", total)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(entries))
	}

	// actionフィルタ
	entries, total, err = repo.List(ctx, domain.AuditFilter{Action: string(domain.ActionKeyGenerated)}, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 {
		t.Errorf("expected total=2, got %d", total)
	}
	for _, entry := range entries {
		if entry.Action != domain.ActionKeyGenerated {
			t.Errorf("expected only KEY_GENERATED entries, got %s", entry.Action)
		}
	}

	// ページング: 総件数はフィルタ全体を数える
	entries, total, err = repo.List(ctx, domain.AuditFilter{}, 2, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 4 {
		t.Errorf("expected total=4, got %d", total)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry on page 2, got %d", len(entries))
	}
}

func TestAuditRepository_SetLedgerRef(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	performedBy := "admin-1"
	entry := testEntry(domain.ActionKeyGenerated, &performedBy)
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.SetLedgerRef(ctx, entry.ID, "anchor-ref-1"); err != nil {
		t.Fatalf("SetLedgerRef failed: %v", err)
	}

	stored, err := repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if stored.LedgerRef == nil || *stored.LedgerRef != "anchor-ref-1" {
		t.Errorf("expected ledger_ref=anchor-ref-1, got %v", stored.LedgerRef)
	}

	// 設定済みのledger_refは上書きしない
	if err := repo.SetLedgerRef(ctx, entry.ID, "anchor-ref-2"); err != nil {
		t.Fatalf("SetLedgerRef failed: %v", err)
	}
	stored, err = repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if *stored.LedgerRef != "anchor-ref-1" {
		t.Errorf("ledger_ref must be immutable once set, got %s", *stored.LedgerRef)
	}
}

func TestAuditRepository_Create_LeafHashSurvivesReload(t *testing.T) {
	ctx := context.Background()
	db := setupAuditTestDB(t)
	repo := NewAuditRepository(db)

	performedBy := "admin-1"
	entry := &domain.AuditEntry{
		Action:      domain.ActionKeyGenerated,
		EntityType:  domain.EntityTypeKey,
		EntityID:    "key-entity-1",
		PerformedBy: &performedBy,
		Details:     map[string]any{"algorithm": "aes"},
		// 列精度（マイクロ秒）に切り詰め済みの記録時刻
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 123456000, time.UTC),
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	anchoredLeaf, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("computing leaf hash: %v", err)
	}

	reloaded, err := repo.FindByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	reloadedLeaf, err := reloaded.LeafHash()
	if err != nil {
		t.Fatalf("computing leaf hash: %v", err)
	}
	// 再読込したエントリはアンカー時と同じリーフハッシュを導出できる
	if reloadedLeaf != anchoredLeaf {
		t.Errorf("leaf hash must survive reload: %s != %s", reloadedLeaf, anchoredLeaf)
	}
}
