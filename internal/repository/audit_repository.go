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

// AuditLogModel はgorm用のモデル定義。audit_logsテーブルは追記専用で、
// アンカー成功時のledger_ref設定以外の更新は行わない。
type AuditLogModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	Action      string    `gorm:"type:varchar(32);not null;index:idx_action"`
	EntityType  string    `gorm:"type:varchar(32);not null;index:idx_entity_type"`
	EntityID    string    `gorm:"type:char(36);not null"`
	PerformedBy *string   `gorm:"type:char(36)"`
	Details     string    `gorm:"type:json"`
	LedgerRef   *string   `gorm:"type:varchar(128)"`
	CreatedAt   time.Time `gorm:"type:datetime(6);not null;autoCreateTime;index:idx_created_at"`
}

// TableName はテーブル名を返す。
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *AuditLogModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *AuditLogModel) toDomain() (*domain.AuditEntry, error) {
	var details map[string]any
	if m.Details != "" {
		if err := json.Unmarshal([]byte(m.Details), &details); err != nil {
			return nil, fmt.Errorf("decoding audit details: %w", err)
		}
	}
	return &domain.AuditEntry{
		ID:          m.ID,
		Action:      domain.AuditAction(m.Action),
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		PerformedBy: m.PerformedBy,
		Details:     details,
		LedgerRef:   m.LedgerRef,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// AuditRepository は監査エントリのデータアクセスを提供する。
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository は新しいAuditRepositoryを生成する。
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create は監査エントリを保存する。
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encoding audit details: %w", err)
	}
	model := &AuditLogModel{
		ID:          entry.ID,
		Action:      string(entry.Action),
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		PerformedBy: entry.PerformedBy,
		Details:     string(details),
		// 列精度に切り詰め済みの値をそのまま保存する。autoCreateTimeに
		// 任せるとナノ秒精度の値がアンカー対象になり、再読込後の
		// リーフハッシュと食い違う。
		CreatedAt: entry.CreatedAt,
	}
	if err := conn(ctx, r.db).WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create audit entry",
			"operation", "create",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は監査エントリを取得する。存在しない場合はnilを返す。
func (r *AuditRepository) FindByID(ctx context.Context, id string) (*domain.AuditEntry, error) {
	var model AuditLogModel
	err := conn(ctx, r.db).WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find audit entry",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain()
}

// List はフィルタ条件に一致する監査エントリを作成日時の降順で取得する。
// 総件数も併せて返す。
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter, page, limit int) ([]*domain.AuditEntry, int64, error) {
	query := conn(ctx, r.db).WithContext(ctx).Model(&AuditLogModel{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		slog.ErrorContext(ctx, "failed to count audit entries",
			"operation", "list",
			"error", err,
		)
		return nil, 0, err
	}

	var models []AuditLogModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list audit entries",
			"operation", "list",
			"error", err,
		)
		return nil, 0, err
	}

	entries := make([]*domain.AuditEntry, len(models))
	for i, m := range models {
		entry, err := m.toDomain()
		if err != nil {
			return nil, 0, err
		}
		entries[i] = entry
	}
	return entries, total, nil
}

// SetLedgerRef はアンカー成功時に台帳参照を一度だけ設定する。
// 既に設定済みのエントリは変更しない。
func (r *AuditRepository) SetLedgerRef(ctx context.Context, id, ref string) error {
	err := conn(ctx, r.db).WithContext(ctx).
		Model(&AuditLogModel{}).
		Where("id = ? AND ledger_ref IS NULL", id).
		Update("ledger_ref", ref).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to set ledger ref",
			"operation", "set_ledger_ref",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
