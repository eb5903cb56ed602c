package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"key-lifecycle-service/internal/domain"
)

// suspiciousPatterns は不審ログ判定に使う固定の部分文字列。
var suspiciousPatterns = []string{
	"unauthorized access",
	"brute force",
	"failed login",
	"injection attempt",
}

const (
	// maxAutoRotations は1回の評価で自動ローテーションする鍵数の上限。
	maxAutoRotations = 3
	// maxLogBatchSize は1回の評価で受け付けるログ件数の上限。
	maxLogBatchSize = 10000

	autoRotationReason = "High anomaly score detected"
)

// KeyRotator は鍵ローテーション実行のインターフェース。
type KeyRotator interface {
	RotateKey(ctx context.Context, keyID, reason, actor string, automated bool) (*domain.RotationResult, error)
}

// ActiveKeyFinder は有効鍵の選定に必要なデータアクセスのインターフェース。
type ActiveKeyFinder interface {
	FindOldestActive(ctx context.Context, limit int) ([]*domain.Key, error)
}

// AnomalyService はログバッチの異常スコアリングと自動ローテーションを提供する。
type AnomalyService struct {
	keys      ActiveKeyFinder
	rotator   KeyRotator
	notifier  Notifier
	threshold float64
}

// NewAnomalyService は新しいAnomalyServiceを生成する。
func NewAnomalyService(keys ActiveKeyFinder, rotator KeyRotator, notifier Notifier, threshold float64) *AnomalyService {
	return &AnomalyService{
		keys:      keys,
		rotator:   rotator,
		notifier:  notifier,
		threshold: threshold,
	}
}

// Score はログバッチの異常スコアを[0,1]で返す純粋関数。
// 不審パターンを含むログ数nに対し min(1, n/10) を小数第2位に丸める。
// 同一入力は常に同一スコアを返す。
func Score(logs []domain.LogEvent) float64 {
	matched := 0
	for _, log := range logs {
		message := strings.ToLower(log.Message)
		for _, pattern := range suspiciousPatterns {
			if strings.Contains(message, pattern) {
				matched++
				break
			}
		}
	}
	score := math.Min(1, float64(matched)/10)
	return math.Round(score*100) / 100
}

// Evaluate はログバッチを評価し、スコアが閾値を超えた場合に
// rotation_dateが最も古い有効鍵から最大3件を自動ローテーションする。
// 各ローテーションは独立に試行され、一部の失敗は他を妨げない。
func (s *AnomalyService) Evaluate(ctx context.Context, logs []domain.LogEvent) (*domain.AnomalyDecision, error) {
	if len(logs) > maxLogBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds limit %d", domain.ErrInvalidLogBatch, len(logs), maxLogBatchSize)
	}

	score := Score(logs)
	if score <= s.threshold {
		return &domain.AnomalyDecision{
			Score:  score,
			Action: domain.AnomalyActionNone,
		}, nil
	}

	selected, err := s.keys.FindOldestActive(ctx, maxAutoRotations)
	if err != nil {
		return nil, fmt.Errorf("selecting keys for rotation: %w", err)
	}

	// 選定順を保ったまま各鍵を並行かつ独立にローテーションする
	results := make([]*domain.RotationResult, len(selected))
	var wg sync.WaitGroup
	for i, key := range selected {
		wg.Add(1)
		go func(i int, keyID string) {
			defer wg.Done()
			result, err := s.rotator.RotateKey(ctx, keyID, autoRotationReason, "", true)
			if err != nil {
				slog.ErrorContext(ctx, "automatic rotation failed",
					"key_id", keyID,
					"error", err,
				)
				return
			}
			results[i] = result
		}(i, key.KeyID)
	}
	wg.Wait()

	rotatedKeys := make([]string, 0, len(results))
	for _, result := range results {
		if result != nil {
			rotatedKeys = append(rotatedKeys, result.NewKeyID)
		}
	}

	s.notifier.Notify(ctx, fmt.Sprintf("CRITICAL: High anomaly score detected (%.2f). Rotated %d keys.", score, len(rotatedKeys)))
	slog.WarnContext(ctx, "anomaly detected, keys rotated",
		"score", score,
		"rotated", len(rotatedKeys),
	)

	return &domain.AnomalyDecision{
		Score:       score,
		Action:      domain.AnomalyActionRotationTriggered,
		RotatedKeys: rotatedKeys,
	}, nil
}
