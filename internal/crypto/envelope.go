// Package crypto は鍵素材の生成とエンベロープ暗号化を提供する。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"key-lifecycle-service/internal/domain"
)

// Encrypt は秘密鍵素材をマスターキーでAES-256-GCM暗号化する。
// IVは呼び出しごとに新規生成し、暗号文と認証タグを分離して返す。
func Encrypt(plaintext, masterKey []byte) (domain.EncryptedKey, error) {
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return domain.EncryptedKey{}, fmt.Errorf("aes new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return domain.EncryptedKey{}, fmt.Errorf("aes gcm: %w", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return domain.EncryptedKey{}, fmt.Errorf("generating iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	return domain.EncryptedKey{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt はEncryptで暗号化された秘密鍵素材を復号する。
// 認証タグが一致しない場合はErrAuthTagMismatchを返し、平文は一切返さない。
func Decrypt(enc domain.EncryptedKey, masterKey []byte) ([]byte, error) {
	iv, err := hex.DecodeString(enc.IV)
	if err != nil {
		return nil, fmt.Errorf("decoding iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}
	authTag, err := hex.DecodeString(enc.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("decoding auth tag: %w", err)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("aes new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes gcm: %w", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid iv length: %d", len(iv))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(authTag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, domain.ErrAuthTagMismatch
	}
	return plaintext, nil
}
