// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

const masterKeySize = 32 // AES-256

// Config はアプリケーション設定を表す。
type Config struct {
	Port             string
	DatabaseURL      string
	MasterKey        []byte
	AnomalyThreshold float64
	LedgerURL        string
	LedgerTimeout    time.Duration
	NotifyWebhookURL string
	LogLevel         string
	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// Load は環境変数から設定を読み込む。
// MASTER_KEYは未設定を許容する（鍵操作を伴わないマイグレーション等のコマンド用）。
// 設定されている場合は32バイトのhex文字列でなければならない。
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LedgerURL:        os.Getenv("LEDGER_URL"),
		NotifyWebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "key-lifecycle-service"),
	}

	if masterHex := os.Getenv("MASTER_KEY"); masterHex != "" {
		masterKey, err := hex.DecodeString(masterHex)
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY is not valid hex: %w", err)
		}
		if len(masterKey) != masterKeySize {
			return nil, fmt.Errorf("MASTER_KEY must be %d bytes, got %d", masterKeySize, len(masterKey))
		}
		cfg.MasterKey = masterKey
	}

	threshold, err := getEnvFloat("ANOMALY_THRESHOLD", 0.5)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("ANOMALY_THRESHOLD must be in [0,1], got %g", threshold)
	}
	cfg.AnomalyThreshold = threshold

	timeout, err := getEnvDuration("LEDGER_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.LedgerTimeout = timeout

	cfg.OtelEnabled, err = getEnvBool("OTEL_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg.OtelSamplingRate, err = getEnvFloat("OTEL_SAMPLING_RATE", 0.1)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid number: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s is not a valid boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s is not a valid duration: %w", key, err)
	}
	return d, nil
}
