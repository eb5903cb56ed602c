package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TxRunner は複数のリポジトリ操作を単一トランザクションで実行する。
type TxRunner struct {
	db *gorm.DB
}

// NewTxRunner は新しいTxRunnerを生成する。
func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

// Do はfnを1つのトランザクション内で実行する。fnがエラーを返した場合、
// fn内で行われた全てのリポジトリ操作をロールバックする。トランザクションは
// コンテキスト経由で各リポジトリに伝わる。
func (r *TxRunner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn はコンテキストに進行中のトランザクションがあればそれを、
// なければ通常の接続を返す。
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db
}
