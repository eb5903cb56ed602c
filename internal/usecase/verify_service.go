package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"key-lifecycle-service/internal/domain"
)

// ProofFetcher は外部台帳から包含証明を取得するインターフェース。
type ProofFetcher interface {
	Proof(ctx context.Context, ref string) (*domain.InclusionProof, error)
}

// VerifyService は監査エントリの台帳アンカー検証を提供する。
type VerifyService struct {
	repo   AuditRepository
	ledger ProofFetcher
}

// NewVerifyService は新しいVerifyServiceを生成する。
func NewVerifyService(repo AuditRepository, ledger ProofFetcher) *VerifyService {
	return &VerifyService{
		repo:   repo,
		ledger: ledger,
	}
}

// Verify は保存済みエントリのリーフハッシュを再計算し、台帳の包含証明を
// 辿ってルートを再導出する。台帳のルートと一致すればverified、
// 不一致ならtamper_detected、アンカー未設定のエントリはunanchoredを返す。
func (s *VerifyService) Verify(ctx context.Context, entryID string) (*domain.VerificationResult, error) {
	entry, err := s.repo.FindByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("finding audit entry: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrEntryNotFound
	}

	if entry.LedgerRef == nil {
		return &domain.VerificationResult{
			EntryID: entryID,
			Status:  domain.VerificationUnanchored,
		}, nil
	}

	proof, err := s.ledger.Proof(ctx, *entry.LedgerRef)
	if err != nil {
		return nil, fmt.Errorf("fetching inclusion proof: %w", err)
	}

	leaf, err := entry.LeafHash()
	if err != nil {
		return nil, fmt.Errorf("computing leaf hash: %w", err)
	}

	computedRoot, err := foldProof(leaf, proof.Path)
	if err != nil {
		return nil, fmt.Errorf("recomputing root: %w", err)
	}

	status := domain.VerificationVerified
	if computedRoot != proof.Root {
		status = domain.VerificationTamperDetected
	}
	return &domain.VerificationResult{
		EntryID:      entryID,
		Status:       status,
		ComputedRoot: computedRoot,
		LedgerRoot:   proof.Root,
	}, nil
}

// foldProof はリーフハッシュから兄弟ハッシュの経路を畳み込みルートを導出する。
// 各段で兄弟がLeftなら H(sibling || acc)、そうでなければ H(acc || sibling)。
func foldProof(leaf string, path []domain.ProofNode) (string, error) {
	acc, err := hex.DecodeString(leaf)
	if err != nil {
		return "", fmt.Errorf("decoding leaf hash: %w", err)
	}

	for i, node := range path {
		sibling, err := hex.DecodeString(node.Hash)
		if err != nil {
			return "", fmt.Errorf("decoding proof node %d: %w", i, err)
		}

		combined := make([]byte, 0, len(sibling)+len(acc))
		if node.Left {
			combined = append(combined, sibling...)
			combined = append(combined, acc...)
		} else {
			combined = append(combined, acc...)
			combined = append(combined, sibling...)
		}
		sum := sha256.Sum256(combined)
		acc = sum[:]
	}

	return hex.EncodeToString(acc), nil
}
