package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"key-lifecycle-service/internal/domain"
)

// mockProofFetcher はテスト用のモック包含証明クライアント。
type mockProofFetcher struct {
	proof    *domain.InclusionProof
	proofErr error
}

func (m *mockProofFetcher) Proof(ctx context.Context, ref string) (*domain.InclusionProof, error) {
	if m.proofErr != nil {
		return nil, m.proofErr
	}
	return m.proof, nil
}

func hashPair(left, right string) string {
	leftBytes, _ := hex.DecodeString(left)
	rightBytes, _ := hex.DecodeString(right)
	sum := sha256.Sum256(append(leftBytes, rightBytes...))
	return hex.EncodeToString(sum[:])
}

func anchoredEntry(t *testing.T, ref string) *domain.AuditEntry {
	t.Helper()
	performedBy := "admin-1"
	return &domain.AuditEntry{
		ID:          "entry-1",
		Action:      domain.ActionKeyRotated,
		EntityType:  domain.EntityTypeKey,
		EntityID:    "key-entity-1",
		PerformedBy: &performedBy,
		Details:     map[string]any{"oldKeyId": "a", "newKeyId": "b"},
		LedgerRef:   &ref,
		CreatedAt:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// buildProof は保存済みエントリのリーフから2段のMerkle経路を組み立てる。
func buildProof(t *testing.T, entry *domain.AuditEntry) *domain.InclusionProof {
	t.Helper()
	leaf, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("computing leaf hash: %v", err)
	}

	sibling := hex.EncodeToString([]byte("sibling-hash-padded-to-32-bytes!"))
	uncle := hex.EncodeToString([]byte("uncle-hash-padded-out-to-32-byte"))

	// 1段目: 兄弟は右側、2段目: 兄弟は左側
	level1 := hashPair(leaf, sibling)
	root := hashPair(uncle, level1)

	return &domain.InclusionProof{
		Root: root,
		Path: []domain.ProofNode{
			{Hash: sibling, Left: false},
			{Hash: uncle, Left: true},
		},
	}
}

func TestVerifyService_Verify_Verified(t *testing.T) {
	entry := anchoredEntry(t, "anchor-ref-1")
	repo := newMockAuditRepository()
	repo.entries[entry.ID] = entry

	ledger := &mockProofFetcher{proof: buildProof(t, entry)}
	svc := NewVerifyService(repo, ledger)

	result, err := svc.Verify(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.VerificationVerified {
		t.Errorf("want status verified, got %s", result.Status)
	}
	if result.ComputedRoot != result.LedgerRoot {
		t.Errorf("roots must match: computed %s, ledger %s", result.ComputedRoot, result.LedgerRoot)
	}
}

func TestVerifyService_Verify_TamperDetected(t *testing.T) {
	entry := anchoredEntry(t, "anchor-ref-1")
	proof := buildProof(t, entry)

	// アンカー後にエントリ内容が書き換えられた状況を再現する
	entry.Details["oldKeyId"] = "tampered"

	repo := newMockAuditRepository()
	repo.entries[entry.ID] = entry
	svc := NewVerifyService(repo, &mockProofFetcher{proof: proof})

	result, err := svc.Verify(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.VerificationTamperDetected {
		t.Errorf("want status tamper_detected, got %s", result.Status)
	}
	if result.ComputedRoot == result.LedgerRoot {
		t.Error("tampered entry must not reproduce the ledger root")
	}
}

func TestVerifyService_Verify_Unanchored(t *testing.T) {
	entry := anchoredEntry(t, "ignored")
	entry.LedgerRef = nil

	repo := newMockAuditRepository()
	repo.entries[entry.ID] = entry
	svc := NewVerifyService(repo, &mockProofFetcher{})

	result, err := svc.Verify(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.VerificationUnanchored {
		t.Errorf("want status unanchored, got %s", result.Status)
	}
}

func TestVerifyService_Verify_NotFound(t *testing.T) {
	svc := NewVerifyService(newMockAuditRepository(), &mockProofFetcher{})

	_, err := svc.Verify(context.Background(), "missing")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Errorf("want ErrEntryNotFound, got %v", err)
	}
}

func TestVerifyService_Verify_ProofFetchError(t *testing.T) {
	entry := anchoredEntry(t, "anchor-ref-1")
	repo := newMockAuditRepository()
	repo.entries[entry.ID] = entry
	svc := NewVerifyService(repo, &mockProofFetcher{proofErr: errors.New("ledger unavailable")})

	_, err := svc.Verify(context.Background(), entry.ID)
	if err == nil {
		t.Error("expected error when proof fetch fails, got nil")
	}
}

func TestVerifyService_Verify_EmptyPath(t *testing.T) {
	// 単一リーフの台帳ではルートがリーフ自身になる
	entry := anchoredEntry(t, "anchor-ref-1")
	leaf, err := entry.LeafHash()
	if err != nil {
		t.Fatalf("computing leaf hash: %v", err)
	}

	repo := newMockAuditRepository()
	repo.entries[entry.ID] = entry
	svc := NewVerifyService(repo, &mockProofFetcher{
		proof: &domain.InclusionProof{Root: leaf},
	})

	result, err := svc.Verify(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != domain.VerificationVerified {
		t.Errorf("want status verified, got %s", result.Status)
	}
}
