package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestAlgorithm_Valid(t *testing.T) {
	for _, algorithm := range []Algorithm{AlgorithmKyber, AlgorithmDilithium, AlgorithmAES} {
		if !algorithm.Valid() {
			t.Errorf("want %s valid", algorithm)
		}
	}
	for _, algorithm := range []Algorithm{"rsa", "ecdsa", ""} {
		if algorithm.Valid() {
			t.Errorf("want %s invalid", algorithm)
		}
	}
}

func TestAlgorithm_Family(t *testing.T) {
	cases := map[Algorithm]KeyFamily{
		AlgorithmKyber:     FamilyKEM,
		AlgorithmDilithium: FamilySignature,
		AlgorithmAES:       FamilySymmetric,
	}
	for algorithm, want := range cases {
		if got := algorithm.Family(); got != want {
			t.Errorf("Family(%s) = %s, want %s", algorithm, got, want)
		}
	}
}

func TestNewKeyMetadata(t *testing.T) {
	metadata, err := NewKeyMetadata(AlgorithmKyber, map[string]string{"env": "prod"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metadata.Family != FamilyKEM {
		t.Errorf("want family kem, got %s", metadata.Family)
	}
	if metadata.Labels["env"] != "prod" {
		t.Errorf("want labels preserved, got %v", metadata.Labels)
	}
}

func TestNewKeyMetadata_InvalidAlgorithm(t *testing.T) {
	_, err := NewKeyMetadata("rsa", nil)
	if !errors.Is(err, ErrInvalidAlgorithm) {
		t.Errorf("want ErrInvalidAlgorithm, got %v", err)
	}
}

func TestNewKeyMetadata_LabelLimits(t *testing.T) {
	// ラベル数の上限超過
	tooMany := make(map[string]string)
	for i := 0; i < 17; i++ {
		tooMany[strings.Repeat("k", i+1)] = "v"
	}
	if _, err := NewKeyMetadata(AlgorithmAES, tooMany); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("want ErrInvalidMetadata for too many labels, got %v", err)
	}

	// 空のキー
	if _, err := NewKeyMetadata(AlgorithmAES, map[string]string{"": "v"}); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("want ErrInvalidMetadata for empty key, got %v", err)
	}

	// 値の長さ超過
	long := strings.Repeat("x", 129)
	if _, err := NewKeyMetadata(AlgorithmAES, map[string]string{"k": long}); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("want ErrInvalidMetadata for oversized value, got %v", err)
	}
}
