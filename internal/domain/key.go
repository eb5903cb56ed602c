// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// RotationWindow はローテーションから失効までの固定期間。
const RotationWindow = 30 * 24 * time.Hour

// Algorithm は鍵の生成アルゴリズムを表す。
type Algorithm string

const (
	// AlgorithmKyber はKyber768鍵カプセル化の鍵ペアを表す。
	AlgorithmKyber Algorithm = "kyber"
	// AlgorithmDilithium はDilithium署名の鍵ペアを表す。
	AlgorithmDilithium Algorithm = "dilithium"
	// AlgorithmAES はAES-256共通鍵を表す。
	AlgorithmAES Algorithm = "aes"
)

// Valid はサポート対象のアルゴリズムか判定する。
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmKyber, AlgorithmDilithium, AlgorithmAES:
		return true
	}
	return false
}

// Family はアルゴリズムの鍵ファミリーを返す。
func (a Algorithm) Family() KeyFamily {
	switch a {
	case AlgorithmKyber:
		return FamilyKEM
	case AlgorithmDilithium:
		return FamilySignature
	case AlgorithmAES:
		return FamilySymmetric
	}
	return ""
}

// KeyFamily は鍵のアルゴリズムファミリーを表す。
type KeyFamily string

const (
	FamilySymmetric KeyFamily = "symmetric"
	FamilyKEM       KeyFamily = "kem"
	FamilySignature KeyFamily = "signature"
)

// KeyStatus は鍵のライフサイクル状態を表す。
// 遷移は active → rotated と active → compromised のみで、activeへは戻らない。
type KeyStatus string

const (
	// KeyStatusActive は現在有効な鍵を表す。系譜ごとに高々1つ。
	KeyStatusActive KeyStatus = "active"
	// KeyStatusRotated は後継鍵に引き継がれた鍵を表す。
	KeyStatusRotated KeyStatus = "rotated"
	// KeyStatusCompromised は失効した鍵を表す。終端状態。
	KeyStatusCompromised KeyStatus = "compromised"
)

// EncryptedKey はエンベロープ暗号化された秘密鍵素材を表す。
// 各フィールドはhexエンコード。平文の秘密鍵素材は永続化しない。
type EncryptedKey struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	AuthTag    string `json:"authTag"`
}

const (
	maxMetadataLabels   = 16
	maxMetadataLabelLen = 128
)

// KeyMetadata は鍵の系譜とローテーション由来の情報を保持する。
type KeyMetadata struct {
	Family         KeyFamily         `json:"family"`
	Labels         map[string]string `json:"labels,omitempty"`
	PreviousKeyID  string            `json:"previousKeyId,omitempty"`
	RotationReason string            `json:"rotationReason,omitempty"`
	RotatedBy      string            `json:"rotatedBy,omitempty"`
	Automated      bool              `json:"automated,omitempty"`
}

// NewKeyMetadata はアルゴリズムに応じたメタデータを構築し、ラベルを検証する。
func NewKeyMetadata(algorithm Algorithm, labels map[string]string) (KeyMetadata, error) {
	if !algorithm.Valid() {
		return KeyMetadata{}, ErrInvalidAlgorithm
	}
	if len(labels) > maxMetadataLabels {
		return KeyMetadata{}, ErrInvalidMetadata
	}
	for k, v := range labels {
		if k == "" || len(k) > maxMetadataLabelLen || len(v) > maxMetadataLabelLen {
			return KeyMetadata{}, ErrInvalidMetadata
		}
	}
	return KeyMetadata{
		Family: algorithm.Family(),
		Labels: labels,
	}, nil
}

// Key は暗号鍵エンティティを表す。
// 作成後はStatusとMetadata以外を変更しない。ローテーションは鍵素材を
// 書き換えず、常に新しいKeyを作成して先行鍵をrotatedに遷移させる。
type Key struct {
	ID                  string
	KeyID               string
	PublicKey           string
	EncryptedPrivateKey EncryptedKey
	Algorithm           Algorithm
	Status              KeyStatus
	RotationDate        time.Time
	ExpiryDate          time.Time
	Metadata            KeyMetadata
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RotationResult はローテーション操作の結果を表す。
type RotationResult struct {
	OldKeyID     string
	NewKeyID     string
	Algorithm    Algorithm
	RotationDate time.Time
}
