// =============================================================================
// main.go - AIニュースダイジェストのエントリーポイント
// =============================================================================
//
// 国内ニュースサイトのRSSからAI関連記事を集め、重複を除いてスコア順に選び、
// ChatWorkのルームに1通のダイジェストとして投稿するCLIツールです。
//
// =============================================================================
// 【処理フロー】
// =============================================================================
//
//	┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//	│  1. 設定    │ -> │  2. 取得    │ -> │  3. 正規化  │
//	│  読み込み   │    │  RSS/HTML   │    │  URL/タイトル│
//	└─────────────┘    └─────────────┘    └─────────────┘
//
//	┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//	│ 4. 重複排除 │ -> │ 5. スコア・ │ -> │  6. 配信    │
//	│ URL/類似度  │    │   選定      │    │  ChatWork等 │
//	└─────────────┘    └─────────────┘    └─────────────┘
//
// =============================================================================
// 【使用例】
// =============================================================================
//
//	# 取得と選定だけ確認する（投稿しない）
//	./pipeline -dryRun
//
//	# 一部のソースだけで実行
//	./pipeline -sources="ITmedia AI+,AINOW" -maxArticles=5 -dryRun
//
//	# ChatWorkに投稿し、Notionにもクリップ
//	./pipeline -publishers=chatwork,notion
//
//	# ソース一覧
//	./pipeline -listSources
//
// 終了コード: 0=成功（記事なしを含む）, 1=設定エラー・全ソース失敗・プライマリ配信失敗
//
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ai-news-relay/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// .env が無くても環境変数だけで続行する
	envErr := godotenv.Load()

	cfg, err := pipeline.ParseFlags(flag.NewFlagSet("pipeline", flag.ContinueOnError), args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	logger, err := pipeline.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if envErr != nil {
		log.Debugf(".env file not loaded: %v (using environment variables only)", envErr)
	}

	if cfg.Output.ListSources {
		if err := listSources(stdout, cfg.Input.SourcesFile); err != nil {
			log.Errorf("ソース一覧の表示に失敗: %v", err)
			return 1
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		log.Errorf("設定エラー: %v", err)
		return 1
	}

	runner, err := pipeline.NewRunner(cfg, log)
	if err != nil {
		log.Errorf("初期化に失敗: %v", err)
		return 1
	}
	runner.Stdout = stdout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(ctx)
	return exitCode(log, report, err)
}

// exitCode は実行結果を終了コードに変換する
func exitCode(log *zap.SugaredLogger, report *pipeline.RunReport, err error) int {
	var (
		cfgErr *pipeline.ConfigError
		pubErr *pipeline.PublishError
	)
	switch {
	case err == nil:
		log.Infow("パイプライン完了",
			"run_id", report.RunID,
			"fetched", report.Fetched,
			"selected", report.Selected,
			"published", report.Published,
			"sources_failed", len(report.SourcesFailed),
		)
		return 0
	case errors.As(err, &cfgErr):
		log.Errorf("設定エラー: %v", err)
	case errors.Is(err, pipeline.ErrNoSourcesReachable):
		log.Errorf("AIニュース配信でエラーが発生しました: %v", err)
	case errors.As(err, &pubErr):
		if pubErr.Unauthorized() {
			log.Errorf("%s の認証に失敗しました（トークンを確認してください）: %v", pubErr.Publisher, err)
		} else {
			log.Errorf("配信に失敗しました: %v", err)
		}
	default:
		log.Errorf("パイプラインが失敗しました: %v", err)
	}
	return 1
}

// listSources はソースカタログを表形式で出力する
func listSources(w io.Writer, path string) error {
	sources, err := pipeline.LoadSources(path)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIER\tSTRATEGY\tENABLED\tURL")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%s\n", s.Name, s.Tier, s.Strategy, s.IsEnabled(), s.URL)
	}
	return tw.Flush()
}
