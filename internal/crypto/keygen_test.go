package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"key-lifecycle-service/internal/domain"
)

func TestGenerate_AES(t *testing.T) {
	material, err := Generate(domain.AlgorithmAES)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	secret, err := hex.DecodeString(material.PrivateKey)
	if err != nil {
		t.Fatalf("private key is not valid hex: %v", err)
	}
	if len(secret) != 32 {
		t.Errorf("want 32-byte secret, got %d", len(secret))
	}

	// 公開識別子は秘密値のSHA-256指紋（64文字のhex）
	if len(material.PublicKey) != 64 {
		t.Errorf("want 64 hex chars, got %d", len(material.PublicKey))
	}
	fingerprint := sha256.Sum256(secret)
	if material.PublicKey != hex.EncodeToString(fingerprint[:]) {
		t.Error("public key is not the SHA-256 fingerprint of the secret")
	}
}

func TestGenerate_Kyber(t *testing.T) {
	material, err := Generate(domain.AlgorithmKyber)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := hex.DecodeString(material.PublicKey); err != nil {
		t.Errorf("public key is not valid hex: %v", err)
	}
	if _, err := hex.DecodeString(material.PrivateKey); err != nil {
		t.Errorf("private key is not valid hex: %v", err)
	}
	if material.PublicKey == "" || material.PrivateKey == "" {
		t.Error("expected non-empty key pair")
	}
}

func TestGenerate_Dilithium(t *testing.T) {
	material, err := Generate(domain.AlgorithmDilithium)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := hex.DecodeString(material.PublicKey); err != nil {
		t.Errorf("public key is not valid hex: %v", err)
	}
	if _, err := hex.DecodeString(material.PrivateKey); err != nil {
		t.Errorf("private key is not valid hex: %v", err)
	}
}

func TestGenerate_InvalidAlgorithm(t *testing.T) {
	if _, err := Generate(domain.Algorithm("rsa")); !errors.Is(err, domain.ErrInvalidAlgorithm) {
		t.Errorf("want ErrInvalidAlgorithm, got %v", err)
	}
}

func TestNewKeyID(t *testing.T) {
	keyID, err := NewKeyID()
	if err != nil {
		t.Fatalf("NewKeyID failed: %v", err)
	}
	if len(keyID) != 32 {
		t.Errorf("want 32 hex chars, got %d", len(keyID))
	}
	if _, err := hex.DecodeString(keyID); err != nil {
		t.Errorf("key id is not valid hex: %v", err)
	}

	other, err := NewKeyID()
	if err != nil {
		t.Fatalf("NewKeyID failed: %v", err)
	}
	if keyID == other {
		t.Error("expected distinct key ids")
	}
}
