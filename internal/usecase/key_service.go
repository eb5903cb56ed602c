// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"time"

	"key-lifecycle-service/internal/crypto"
	"key-lifecycle-service/internal/domain"
)

// KeyRepository は鍵データアクセスのインターフェース。
type KeyRepository interface {
	Create(ctx context.Context, key *domain.Key) error
	FindByKeyID(ctx context.Context, keyID string) (*domain.Key, error)
	FindAll(ctx context.Context) ([]*domain.Key, error)
	FindOldestActive(ctx context.Context, limit int) ([]*domain.Key, error)
	CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error)
	UpdateStatus(ctx context.Context, id string, status domain.KeyStatus) error
	CreateSuccessor(ctx context.Context, predecessor, successor *domain.Key) error
}

// AuditRecorder は監査エントリ記録のインターフェース。Recordは呼び出し元の
// トランザクションに参加する。Anchorはコミット後に呼ぶ。
type AuditRecorder interface {
	Record(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
	Anchor(ctx context.Context, entry *domain.AuditEntry)
}

// Transactor は複数のストア操作を単一トランザクションにまとめる。
type Transactor interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier は人間向け通知のインターフェース。配送失敗は通知側で処理される。
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// KeyService は鍵ライフサイクルのビジネスロジックを提供する。
type KeyService struct {
	repo      KeyRepository
	audit     AuditRecorder
	notifier  Notifier
	tx        Transactor
	masterKey []byte
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyRepository, audit AuditRecorder, notifier Notifier, tx Transactor, masterKey []byte) *KeyService {
	return &KeyService{
		repo:      repo,
		audit:     audit,
		notifier:  notifier,
		tx:        tx,
		masterKey: masterKey,
	}
}

// newKey は指定アルゴリズムの鍵素材を生成し、暗号化済みの鍵エンティティを組み立てる。
func (s *KeyService) newKey(algorithm domain.Algorithm, metadata domain.KeyMetadata) (*domain.Key, error) {
	material, err := crypto.Generate(algorithm)
	if err != nil {
		return nil, err
	}

	encrypted, err := crypto.Encrypt([]byte(material.PrivateKey), s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}

	keyID, err := crypto.NewKeyID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &domain.Key{
		KeyID:               keyID,
		PublicKey:           material.PublicKey,
		EncryptedPrivateKey: encrypted,
		Algorithm:           algorithm,
		Status:              domain.KeyStatusActive,
		RotationDate:        now,
		ExpiryDate:          now.Add(domain.RotationWindow),
		Metadata:            metadata,
	}, nil
}

// GenerateKey は新しい鍵を生成して保存し、KEY_GENERATED監査エントリを記録する。
// 返り値に平文の秘密鍵素材は含まれない。
func (s *KeyService) GenerateKey(ctx context.Context, algorithm domain.Algorithm, labels map[string]string, actor string) (*domain.Key, error) {
	if !algorithm.Valid() {
		return nil, domain.ErrInvalidAlgorithm
	}

	metadata, err := domain.NewKeyMetadata(algorithm, labels)
	if err != nil {
		return nil, err
	}

	key, err := s.newKey(algorithm, metadata)
	if err != nil {
		return nil, err
	}

	entry := &domain.AuditEntry{
		Action:      domain.ActionKeyGenerated,
		EntityType:  domain.EntityTypeKey,
		PerformedBy: actorRef(actor),
		Details: map[string]any{
			"algorithm": string(algorithm),
			"keyId":     key.KeyID,
		},
	}
	// 鍵の保存と監査エントリの記録は全て成功するか全て取り消されるかの
	// いずれかになる
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, key); err != nil {
			return fmt.Errorf("creating key: %w", err)
		}
		entry.EntityID = key.ID
		if _, err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("recording audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Anchor(ctx, entry)

	return key, nil
}

// RotateKey は有効な鍵を同一アルゴリズムの後継鍵に引き継ぐ。
// 先行鍵の素材は書き換えず、新しい鍵を作成して先行鍵をrotatedに遷移させる。
// automatedがtrueの場合はAUTO_KEY_ROTATEDとしてシステム起点で記録する。
func (s *KeyService) RotateKey(ctx context.Context, keyID, reason, actor string, automated bool) (*domain.RotationResult, error) {
	oldKey, err := s.repo.FindByKeyID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	// 未知のkeyIdも非activeの鍵も同じ失敗として扱う
	if oldKey == nil || oldKey.Status != domain.KeyStatusActive {
		return nil, domain.ErrKeyNotFound
	}

	successorMetadata := domain.KeyMetadata{
		Family:         oldKey.Algorithm.Family(),
		Labels:         oldKey.Metadata.Labels,
		PreviousKeyID:  oldKey.KeyID,
		RotationReason: reason,
		RotatedBy:      actor,
		Automated:      automated,
	}
	successor, err := s.newKey(oldKey.Algorithm, successorMetadata)
	if err != nil {
		return nil, err
	}

	oldKey.Metadata.RotationReason = reason
	oldKey.Metadata.RotatedBy = actor

	action := domain.ActionKeyRotated
	performedBy := actorRef(actor)
	if automated {
		action = domain.ActionAutoKeyRotated
		performedBy = nil
	}
	entry := &domain.AuditEntry{
		Action:      action,
		EntityType:  domain.EntityTypeKey,
		PerformedBy: performedBy,
		Details: map[string]any{
			"oldKeyId":  oldKey.KeyID,
			"newKeyId":  successor.KeyID,
			"algorithm": string(successor.Algorithm),
			"reason":    reason,
		},
	}
	// ローテーションの適用と監査エントリの記録を1トランザクションで行う
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateSuccessor(ctx, oldKey, successor); err != nil {
			return err
		}
		entry.EntityID = successor.ID
		if _, err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("recording audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.Anchor(ctx, entry)

	s.notifier.Notify(ctx, fmt.Sprintf("Key rotated: %s -> %s (reason: %s)", oldKey.KeyID, successor.KeyID, reason))

	return &domain.RotationResult{
		OldKeyID:     oldKey.KeyID,
		NewKeyID:     successor.KeyID,
		Algorithm:    successor.Algorithm,
		RotationDate: successor.RotationDate,
	}, nil
}

// RevokeKey は鍵をcompromisedに遷移させる。後継鍵は作成しない。
// compromisedは終端状態で、以後どの状態にも遷移しない。
func (s *KeyService) RevokeKey(ctx context.Context, keyID, actor string) (*domain.Key, error) {
	key, err := s.repo.FindByKeyID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	if key.Status == domain.KeyStatusCompromised {
		return nil, domain.ErrKeyAlreadyRevoked
	}

	previousStatus := key.Status
	entry := &domain.AuditEntry{
		Action:      domain.ActionKeyRevoked,
		EntityType:  domain.EntityTypeKey,
		EntityID:    key.ID,
		PerformedBy: actorRef(actor),
		Details: map[string]any{
			"keyId":          key.KeyID,
			"previousStatus": string(previousStatus),
		},
	}
	// ステータス遷移と監査エントリの記録を1トランザクションで行う
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateStatus(ctx, key.ID, domain.KeyStatusCompromised); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if _, err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("recording audit entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	key.Status = domain.KeyStatusCompromised
	s.audit.Anchor(ctx, entry)

	s.notifier.Notify(ctx, fmt.Sprintf("Key revoked: %s", key.KeyID))

	return key, nil
}

// ListKeys は全鍵を取得する。
func (s *KeyService) ListKeys(ctx context.Context) ([]*domain.Key, error) {
	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}
	return keys, nil
}

// StatusCounts はステータスごとの鍵数を取得する。
func (s *KeyService) StatusCounts(ctx context.Context) (map[domain.KeyStatus]int64, error) {
	counts := make(map[domain.KeyStatus]int64, 3)
	for _, status := range []domain.KeyStatus{
		domain.KeyStatusActive,
		domain.KeyStatusRotated,
		domain.KeyStatusCompromised,
	} {
		count, err := s.repo.CountByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("counting keys: %w", err)
		}
		counts[status] = count
	}
	return counts, nil
}

// actorRef はアクターIDをPerformedBy用のポインタに変換する。空ならnil。
func actorRef(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}
