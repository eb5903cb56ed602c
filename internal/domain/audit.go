package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// AuditAction は監査対象の操作種別を表す。
type AuditAction string

const (
	ActionKeyGenerated   AuditAction = "KEY_GENERATED"
	ActionKeyRotated     AuditAction = "KEY_ROTATED"
	ActionAutoKeyRotated AuditAction = "AUTO_KEY_ROTATED"
	ActionKeyRevoked     AuditAction = "KEY_REVOKED"
)

// EntityTypeKey は鍵エンティティに対する監査エントリのentityType。
const EntityTypeKey = "Key"

// AuditEntry はドメイン変更の不変な記録を表す。変更操作ごとに1件作成され、
// 追記専用で更新・削除されない。LedgerRefのみアンカー成功時に一度設定される。
// LedgerRefがnilのままのエントリは正常な終端状態であり、エラーではない。
type AuditEntry struct {
	ID          string
	Action      AuditAction
	EntityType  string
	EntityID    string
	PerformedBy *string
	Details     map[string]any
	LedgerRef   *string
	CreatedAt   time.Time
}

// canonicalTimeLayout は正規化ペイロードの時刻形式。audit_logsの
// created_at列（DATETIME(6)）はマイクロ秒精度しか保持しないため、
// 列の精度に合わせて小数第6位固定で整形する。これを超える精度で
// ハッシュするとDBから再読込したエントリのリーフハッシュが一致しない。
const canonicalTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// canonicalEntry はアンカー・検証共通の正規化形式。フィールド順は固定。
type canonicalEntry struct {
	ID          string         `json:"id"`
	Action      AuditAction    `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityID    string         `json:"entityId"`
	PerformedBy *string        `json:"performedBy"`
	Details     map[string]any `json:"details"`
	CreatedAt   string         `json:"createdAt"`
}

// CanonicalPayload は台帳アンカー用の正規化JSONを返す。
// 同一エントリからは常に同一のバイト列が得られる。
func (e *AuditEntry) CanonicalPayload() ([]byte, error) {
	return json.Marshal(canonicalEntry{
		ID:          e.ID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		PerformedBy: e.PerformedBy,
		Details:     e.Details,
		CreatedAt:   e.CreatedAt.UTC().Truncate(time.Microsecond).Format(canonicalTimeLayout),
	})
}

// LeafHash は正規化ペイロードのSHA-256ハッシュをhexで返す。
func (e *AuditEntry) LeafHash() (string, error) {
	payload, err := e.CanonicalPayload()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// AuditFilter は監査エントリ一覧の絞り込み条件。
type AuditFilter struct {
	Action     string
	EntityType string
}

// ProofNode は包含証明の1段分の兄弟ハッシュを表す。
// Leftがtrueの場合、兄弟ハッシュを左に連結してハッシュする。
type ProofNode struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// InclusionProof は台帳が返すMerkle包含証明を表す。
type InclusionProof struct {
	Root string      `json:"root"`
	Path []ProofNode `json:"path"`
}

// VerificationStatus は監査エントリ検証の結果種別を表す。
type VerificationStatus string

const (
	// VerificationVerified は再計算したルートが台帳のルートと一致した状態。
	VerificationVerified VerificationStatus = "verified"
	// VerificationTamperDetected はハッシュ不一致を検出した状態。
	VerificationTamperDetected VerificationStatus = "tamper_detected"
	// VerificationUnanchored はエントリが台帳にアンカーされていない状態。
	VerificationUnanchored VerificationStatus = "unanchored"
)

// VerificationResult は監査エントリ検証の結果を表す。
type VerificationResult struct {
	EntryID      string
	Status       VerificationStatus
	ComputedRoot string
	LedgerRoot   string
}
