// scanner は照合待ちディストリビューションのスキャン、または1件の照合を行うLambda関数です。
// EventBridge Scheduler からの定期実行と、監視依頼イベントの両方を受け付けます。
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"geocdn/internal/app"
	"geocdn/internal/config"
)

func main() {
	v := config.New()
	v.SetDefault("log.format", "json")
	// Lambda のローカルファイルシステムは /tmp のみ書き込める
	v.SetDefault("store.sqlite-path", "/tmp/geocdn.db")
	cfg, err := config.Load(v)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("logger setup failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("app setup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	h := &handler{reconciler: a.Reconciler, scanner: a.Scanner, logger: logger}
	lambda.Start(h.Handle)
}
