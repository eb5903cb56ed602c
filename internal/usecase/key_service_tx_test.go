package usecase

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"key-lifecycle-service/internal/domain"
	"key-lifecycle-service/internal/repository"
)

// setupLifecycleTestDB は鍵テーブルと監査テーブルを持つテスト用DBを作成する。
func setupLifecycleTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sql := `
		CREATE TABLE managed_keys (
			id TEXT PRIMARY KEY,
			key_id TEXT NOT NULL UNIQUE,
			public_key TEXT NOT NULL,
			encrypted_private_key TEXT NOT NULL,
			algorithm TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			rotation_date DATETIME NOT NULL,
			expiry_date DATETIME NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
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
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}

func TestKeyService_GenerateKey_CommitsKeyAndAuditTogether(t *testing.T) {
	db := setupLifecycleTestDB(t)
	keyRepo := repository.NewKeyRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	ledger := &mockLedgerAnchorer{ref: "anchor-ref-1"}
	audit := NewAuditService(auditRepo, ledger)
	audit.anchorBackoff = 0
	svc := NewKeyService(keyRepo, audit, &mockNotifier{}, repository.NewTxRunner(db), testMasterKey)

	key, err := svc.GenerateKey(context.Background(), domain.AlgorithmAES, nil, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	audit.Wait()

	var keyCount int64
	db.Table("managed_keys").Count(&keyCount)
	if keyCount != 1 {
		t.Errorf("want 1 key row, got %d", keyCount)
	}

	var auditCount int64
	db.Table("audit_logs").Where("entity_id = ?", key.ID).Count(&auditCount)
	if auditCount != 1 {
		t.Errorf("want 1 audit row for the key, got %d", auditCount)
	}

	// アンカーはコミット後に行われ、ledger_refが設定される
	var refCount int64
	db.Table("audit_logs").Where("ledger_ref = ?", "anchor-ref-1").Count(&refCount)
	if refCount != 1 {
		t.Errorf("want anchored audit row, got %d", refCount)
	}
}

func TestKeyService_GenerateKey_AuditFailureRollsBackKey(t *testing.T) {
	db := setupLifecycleTestDB(t)
	keyRepo := repository.NewKeyRepository(db)
	audit := &mockAuditRecorder{recordErr: errors.New("audit store down")}
	svc := NewKeyService(keyRepo, audit, &mockNotifier{}, repository.NewTxRunner(db), testMasterKey)

	_, err := svc.GenerateKey(context.Background(), domain.AlgorithmAES, nil, "admin-1")
	if err == nil {
		t.Fatal("expected error when audit recording fails, got nil")
	}

	// 監査エントリを記録できない操作は鍵も残さない
	var keyCount int64
	db.Table("managed_keys").Count(&keyCount)
	if keyCount != 0 {
		t.Errorf("want key insert rolled back, got %d rows", keyCount)
	}
	if len(audit.anchored) != 0 {
		t.Errorf("failed operation must not anchor, got %d", len(audit.anchored))
	}
}

func TestKeyService_RotateKey_ConflictLeavesNoAuditRow(t *testing.T) {
	db := setupLifecycleTestDB(t)
	keyRepo := repository.NewKeyRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	audit := NewAuditService(auditRepo, &mockLedgerAnchorer{ref: "anchor-ref-1"})
	audit.anchorBackoff = 0
	svc := NewKeyService(keyRepo, audit, &mockNotifier{}, repository.NewTxRunner(db), testMasterKey)

	key, err := svc.GenerateKey(context.Background(), domain.AlgorithmAES, nil, "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 先に別のローテーションに敗れた状況を作る
	if err := keyRepo.UpdateStatus(context.Background(), key.ID, domain.KeyStatusRotated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.RotateKey(context.Background(), key.KeyID, "reason", "admin-1", false)
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound for a no-longer-active key, got %v", err)
	}
	audit.Wait()

	var rotationAudits int64
	db.Table("audit_logs").Where("action = ?", string(domain.ActionKeyRotated)).Count(&rotationAudits)
	if rotationAudits != 0 {
		t.Errorf("losing rotation must not record an audit entry, got %d", rotationAudits)
	}
}
