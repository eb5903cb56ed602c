package domain

import "time"

// LogEvent は異常検知の入力となるログイベントを表す。
type LogEvent struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
}

// AnomalyAction は異常検知評価の結果種別を表す。
type AnomalyAction string

const (
	// AnomalyActionRotationTriggered は自動ローテーションを発動した状態。
	AnomalyActionRotationTriggered AnomalyAction = "key_rotation_triggered"
	// AnomalyActionNone はスコアが閾値以下で何もしなかった状態。
	AnomalyActionNone AnomalyAction = "none"
)

// AnomalyDecision は異常検知評価の結果を表す。
// RotatedKeysは実際にローテーションに成功した新keyIdの一覧（選定順）。
type AnomalyDecision struct {
	Score       float64
	Action      AnomalyAction
	RotatedKeys []string
}
