package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"key-lifecycle-service/internal/domain"
)

const (
	symmetricKeySize = 32 // AES-256
	keyIDSize        = 16 // keyIdは16バイト乱数のhex表現（32文字）
)

// Material は生成直後の鍵素材を表す。
// PrivateKeyは平文（hex）のため、永続化前に必ずエンベロープ暗号化する。
// 共通鍵の場合、PublicKeyは利用可能な鍵ではなく秘密値のSHA-256指紋。
type Material struct {
	PublicKey  string
	PrivateKey string
}

// Generate は指定されたアルゴリズムの鍵素材を生成する。
func Generate(algorithm domain.Algorithm) (*Material, error) {
	switch algorithm {
	case domain.AlgorithmKyber:
		pub, priv, err := kyber768.Scheme().GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generating kyber key pair: %w", err)
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding kyber public key: %w", err)
		}
		privBytes, err := priv.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encoding kyber private key: %w", err)
		}
		return &Material{
			PublicKey:  hex.EncodeToString(pubBytes),
			PrivateKey: hex.EncodeToString(privBytes),
		}, nil

	case domain.AlgorithmDilithium:
		pub, priv, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating dilithium key pair: %w", err)
		}
		return &Material{
			PublicKey:  hex.EncodeToString(pub.Bytes()),
			PrivateKey: hex.EncodeToString(priv.Bytes()),
		}, nil

	case domain.AlgorithmAES:
		secret := make([]byte, symmetricKeySize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating symmetric key: %w", err)
		}
		fingerprint := sha256.Sum256(secret)
		return &Material{
			PublicKey:  hex.EncodeToString(fingerprint[:]),
			PrivateKey: hex.EncodeToString(secret),
		}, nil

	default:
		return nil, domain.ErrInvalidAlgorithm
	}
}

// NewKeyID は衝突耐性のある外部公開用の鍵識別子を生成する。
func NewKeyID() (string, error) {
	buf := make([]byte, keyIDSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating key id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
