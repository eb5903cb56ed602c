// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"key-lifecycle-service/internal/domain"
)

// KeyModel はgorm用のモデル定義。
type KeyModel struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	KeyID               string    `gorm:"type:char(32);not null;uniqueIndex:uk_key_id"`
	PublicKey           string    `gorm:"type:text;not null"`
	EncryptedPrivateKey string    `gorm:"type:text;not null"`
	Algorithm           string    `gorm:"type:varchar(16);not null"`
	Status              string    `gorm:"type:enum('active','rotated','compromised');not null;default:'active';index:idx_status_rotation"`
	RotationDate        time.Time `gorm:"type:datetime(6);not null;index:idx_status_rotation"`
	ExpiryDate          time.Time `gorm:"type:datetime(6);not null"`
	Metadata            string    `gorm:"type:json"`
	CreatedAt           time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (KeyModel) TableName() string {
	return "managed_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *KeyModel) toDomain() (*domain.Key, error) {
	var encrypted domain.EncryptedKey
	if err := json.Unmarshal([]byte(m.EncryptedPrivateKey), &encrypted); err != nil {
		return nil, fmt.Errorf("decoding encrypted private key: %w", err)
	}
	var metadata domain.KeyMetadata
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("decoding key metadata: %w", err)
		}
	}
	return &domain.Key{
		ID:                  m.ID,
		KeyID:               m.KeyID,
		PublicKey:           m.PublicKey,
		EncryptedPrivateKey: encrypted,
		Algorithm:           domain.Algorithm(m.Algorithm),
		Status:              domain.KeyStatus(m.Status),
		RotationDate:        m.RotationDate,
		ExpiryDate:          m.ExpiryDate,
		Metadata:            metadata,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}, nil
}

func toModel(key *domain.Key) (*KeyModel, error) {
	encrypted, err := json.Marshal(key.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("encoding encrypted private key: %w", err)
	}
	metadata, err := json.Marshal(key.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding key metadata: %w", err)
	}
	return &KeyModel{
		ID:                  key.ID,
		KeyID:               key.KeyID,
		PublicKey:           key.PublicKey,
		EncryptedPrivateKey: string(encrypted),
		Algorithm:           string(key.Algorithm),
		Status:              string(key.Status),
		RotationDate:        key.RotationDate,
		ExpiryDate:          key.ExpiryDate,
		Metadata:            string(metadata),
	}, nil
}

// KeyRepository は鍵エンティティのデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create は新しい鍵を保存する。
func (r *KeyRepository) Create(ctx context.Context, key *domain.Key) error {
	model, err := toModel(key)
	if err != nil {
		return err
	}
	if err := conn(ctx, r.db).WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"key_id", key.KeyID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByKeyID は外部公開用識別子で鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByKeyID(ctx context.Context, keyID string) (*domain.Key, error) {
	var model KeyModel
	err := conn(ctx, r.db).WithContext(ctx).
		Where("key_id = ?", keyID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_key_id",
			"key_id", keyID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// FindAll は全鍵を作成日時の降順で取得する。
func (r *KeyRepository) FindAll(ctx context.Context) ([]*domain.Key, error) {
	var models []KeyModel
	err := conn(ctx, r.db).WithContext(ctx).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all keys",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.Key, len(models))
	for i, m := range models {
		key, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// FindOldestActive は有効な鍵をrotation_dateの昇順で最大limit件取得する。
func (r *KeyRepository) FindOldestActive(ctx context.Context, limit int) ([]*domain.Key, error) {
	var models []KeyModel
	err := conn(ctx, r.db).WithContext(ctx).
		Where("status = ?", string(domain.KeyStatusActive)).
		Order("rotation_date ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find oldest active keys",
			"operation", "find_oldest_active",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.Key, len(models))
	for i, m := range models {
		key, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// CountByStatus は指定ステータスの鍵数を取得する。
func (r *KeyRepository) CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error) {
	var count int64
	err := conn(ctx, r.db).WithContext(ctx).
		Model(&KeyModel{}).
		Where("status = ?", string(status)).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count keys by status",
			"operation", "count_by_status",
			"status", status,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

// UpdateStatus は指定されたIDの鍵のステータスを更新する。
func (r *KeyRepository) UpdateStatus(ctx context.Context, id string, status domain.KeyStatus) error {
	err := conn(ctx, r.db).WithContext(ctx).
		Model(&KeyModel{}).
		Where("id = ?", id).
		Update("status", string(status)).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to update status",
			"operation", "update_status",
			"id", id,
			"status", status,
			"error", err,
		)
		return err
	}
	return nil
}

// CreateSuccessor はローテーションを1トランザクションで適用する。
// 先行鍵がまだactiveな場合に限りrotatedへ遷移させ（楽観的同時実行制御）、
// 後継鍵を保存する。並行ローテーションに敗れた場合はErrRotationConflictを返す。
func (r *KeyRepository) CreateSuccessor(ctx context.Context, predecessor, successor *domain.Key) error {
	successorModel, err := toModel(successor)
	if err != nil {
		return err
	}
	predecessorMetadata, err := json.Marshal(predecessor.Metadata)
	if err != nil {
		return fmt.Errorf("encoding predecessor metadata: %w", err)
	}

	err = conn(ctx, r.db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&KeyModel{}).
			Where("id = ? AND status = ?", predecessor.ID, string(domain.KeyStatusActive)).
			Updates(map[string]any{
				"status":   string(domain.KeyStatusRotated),
				"metadata": string(predecessorMetadata),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrRotationConflict
		}
		return tx.Create(successorModel).Error
	})
	if err != nil {
		if !errors.Is(err, domain.ErrRotationConflict) {
			slog.ErrorContext(ctx, "failed to create successor key",
				"operation", "create_successor",
				"old_key_id", predecessor.KeyID,
				"error", err,
			)
		}
		return err
	}

	successor.ID = successorModel.ID
	successor.CreatedAt = successorModel.CreatedAt
	successor.UpdatedAt = successorModel.UpdatedAt
	predecessor.Status = domain.KeyStatusRotated
	return nil
}
