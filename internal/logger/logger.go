// Package logger はslogによるJSON構造化ログの初期化を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// serviceName はすべてのログに付与するサービス名。
const serviceName = "onboarding"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// すべてのレコードにservice属性を付与する。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler).With(slog.String("service", serviceName))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
// 本番以外ではDebugレベルまで出力する。
func SetupDefault(w io.Writer, production bool) {
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	slog.SetDefault(Setup(w, level))
}
