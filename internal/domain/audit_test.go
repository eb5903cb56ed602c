package domain

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"
)

func canonicalTestEntry() *AuditEntry {
	performedBy := "admin-1"
	return &AuditEntry{
		ID:          "entry-1",
		Action:      ActionKeyGenerated,
		EntityType:  EntityTypeKey,
		EntityID:    "key-entity-1",
		PerformedBy: &performedBy,
		Details:     map[string]any{"algorithm": "aes", "keyId": "abc"},
		CreatedAt:   time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC),
	}
}

func TestAuditEntry_CanonicalPayload_Deterministic(t *testing.T) {
	entry := canonicalTestEntry()

	first, err := entry.CanonicalPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		payload, err := entry.CanonicalPayload()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(first, payload) {
			t.Fatal("canonical payload must be byte-identical across calls")
		}
	}
}

func TestAuditEntry_CanonicalPayload_ExcludesLedgerRef(t *testing.T) {
	entry := canonicalTestEntry()
	before, err := entry.CanonicalPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// アンカー後にledger_refが設定されてもペイロードは変わらない
	ref := "anchor-ref-1"
	entry.LedgerRef = &ref
	after, err := entry.CanonicalPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(before, after) {
		t.Error("ledger_ref must not affect the canonical payload")
	}
}

func TestAuditEntry_CanonicalPayload_NullPerformedBy(t *testing.T) {
	entry := canonicalTestEntry()
	entry.PerformedBy = nil

	payload, err := entry.CanonicalPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(payload, []byte(`"performedBy":null`)) {
		t.Errorf("want explicit null performedBy, got %s", payload)
	}
}

func TestAuditEntry_CanonicalPayload_MicrosecondPrecision(t *testing.T) {
	// CreatedAtはナノ秒精度（.123456789）
	entry := canonicalTestEntry()

	payload, err := entry.CanonicalPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// created_at列（DATETIME(6)）の精度に合わせて小数第6位固定で整形する
	if !bytes.Contains(payload, []byte(`"createdAt":"2026-05-01T12:00:00.123456Z"`)) {
		t.Errorf("want microsecond-precision createdAt, got %s", payload)
	}

	leaf, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// DBから再読込したエントリはマイクロ秒精度しか持たないが、
	// リーフハッシュは記録時と一致しなければならない
	reloaded := *entry
	reloaded.CreatedAt = entry.CreatedAt.Truncate(time.Microsecond)
	reloadedLeaf, err := reloaded.LeafHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloadedLeaf != leaf {
		t.Errorf("leaf hash must survive column-precision reload: %s != %s", reloadedLeaf, leaf)
	}
}

func TestAuditEntry_LeafHash(t *testing.T) {
	entry := canonicalTestEntry()

	leaf, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leaf) != 64 {
		t.Errorf("want 64-char hex hash, got %d chars", len(leaf))
	}
	if _, err := hex.DecodeString(leaf); err != nil {
		t.Errorf("leaf hash must be valid hex: %v", err)
	}

	// 内容が変わればハッシュも変わる
	entry.Details["keyId"] = "changed"
	changed, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed == leaf {
		t.Error("modified entry must produce a different leaf hash")
	}
}
