// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"key-lifecycle-service/config"
	"key-lifecycle-service/internal/handler"
	"key-lifecycle-service/internal/infra"
	"key-lifecycle-service/internal/repository"
	"key-lifecycle-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ログレベル設定
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg.OtelEnabled, logLevel)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg.OtelEnabled)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	if len(cfg.MasterKey) == 0 {
		slog.Error("MASTER_KEY is not set")
		os.Exit(1)
	}

	// 外部サービスクライアント
	ledger := infra.NewLedgerClient(cfg.LedgerURL, cfg.LedgerTimeout)
	notifier := infra.NewWebhookNotifier(cfg.NotifyWebhookURL)

	// DI
	keyRepo := repository.NewKeyRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txRunner := repository.NewTxRunner(db)
	auditService := usecase.NewAuditService(auditRepo, ledger)
	keyService := usecase.NewKeyService(keyRepo, auditService, notifier, txRunner, cfg.MasterKey)
	anomalyService := usecase.NewAnomalyService(keyRepo, keyService, notifier, cfg.AnomalyThreshold)
	verifyService := usecase.NewVerifyService(auditRepo, ledger)

	keyHandler := handler.NewKeyHandler(keyService)
	anomalyHandler := handler.NewAnomalyHandler(anomalyService)
	auditHandler := handler.NewAuditHandler(auditService, verifyService)
	router := handler.NewRouter(keyHandler, anomalyHandler, auditHandler, cfg.OtelEnabled)

	// サーバー起動
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// 進行中の台帳アンカーを完了させてから終了する
	auditService.Wait()
	slog.Info("server stopped")
}
