package domain

import "errors"

var (
	// ErrInvalidAlgorithm はサポート外のアルゴリズムが指定された場合のエラー。
	ErrInvalidAlgorithm = errors.New("invalid algorithm")

	// ErrInvalidMetadata はメタデータのラベルが制約を満たさない場合のエラー。
	ErrInvalidMetadata = errors.New("invalid key metadata")

	// ErrKeyNotFound は指定されたkeyIdが有効な鍵に解決できない場合のエラー。
	// 未知のkeyIdとローテーション済み鍵のどちらも同じ失敗として扱う。
	ErrKeyNotFound = errors.New("key not found")

	// ErrRotationConflict は同一鍵への並行ローテーションに敗れた場合のエラー。
	ErrRotationConflict = errors.New("rotation conflict: key is no longer active")

	// ErrKeyAlreadyRevoked は既に失効済みの鍵を再失効しようとした場合のエラー。
	ErrKeyAlreadyRevoked = errors.New("key is already revoked")

	// ErrAuthTagMismatch は復号時に認証タグが一致しない場合のエラー。
	// 改ざんの兆候であり、リトライ不可。平文は一切返さない。
	ErrAuthTagMismatch = errors.New("authentication tag mismatch")

	// ErrEntryNotFound は指定された監査エントリが存在しない場合のエラー。
	ErrEntryNotFound = errors.New("audit entry not found")

	// ErrInvalidLogBatch は異常検知のログバッチが制約を超える場合のエラー。
	ErrInvalidLogBatch = errors.New("invalid log batch")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
