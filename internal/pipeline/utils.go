// =============================================================================
// utils.go - ログ出力と小さなヘルパー
// =============================================================================
//
// 【ログ出力】
//
//	zap のJSONロガーを標準エラー出力に書き出す。
//	標準出力はドライラン時のダイジェスト本文（やJSON）を流すために空けておく。
//
//	  ./pipeline -dryRun > digest.txt   # ログは端末に、本文はファイルに
//
// 各コンポーネントは *zap.SugaredLogger を受け取り、Infof/Warnf で書く。
// 1回の実行のログには run_id フィールドが付く。
//
// =============================================================================
package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger は stderr 向けのzapロガーを作る。
// development=true の場合はコンソール形式・サンプリングなし。
func NewLogger(level string, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return l, nil
}

// parseLevel は文字列のログレベルを zapcore.Level にする（不明な値は info）
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// nopIfNil はnilの場合に何も出力しないロガーを返す
func nopIfNil(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log == nil {
		return zap.NewNop().Sugar()
	}
	return log
}
