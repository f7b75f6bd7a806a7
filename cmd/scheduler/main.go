// =============================================================================
// scheduler - 常駐型の定期配信
// =============================================================================
//
// Lambdaを使わない環境向け。cron式（Asia/Tokyo）に従ってパイプラインを起動する。
// 実行ごとに新しいRunnerを作るので、実行間で状態は持ち越さない。
//
//	./scheduler                          # 毎朝9時に配信
//	./scheduler -schedule "30 8 * * 1-5" # 平日8時半に配信
//	./scheduler -runNow -dryRun          # 起動直後に1回実行して確認
//
// pipeline と同じフラグ（-sources, -maxArticles, -publishers など）を受け付ける。
//
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ai-news-relay/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	schedule := fs.String("schedule", pipeline.DefaultSchedule, "cron spec in Asia/Tokyo (minute hour dom month dow)")
	runNow := fs.Bool("runNow", false, "run once immediately after start")
	runTimeout := fs.Duration("runTimeout", 10*time.Minute, "max duration of a single run (0 disables)")

	cfg, err := pipeline.ParseFlags(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	logger, err := pipeline.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		log.Errorf("設定エラー: %v", err)
		os.Exit(1)
	}
	// カタログとシークレットは起動時に一度だけ検証する
	if _, err := pipeline.NewRunner(cfg, log); err != nil {
		log.Errorf("初期化に失敗: %v", err)
		os.Exit(1)
	}

	factory := func() (*pipeline.Runner, error) { return pipeline.NewRunner(cfg, log) }
	sched, err := pipeline.NewScheduler(*schedule, pipeline.JST(), *runTimeout, factory, log)
	if err != nil {
		log.Errorf("設定エラー: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	log.Infof("スケジューラ開始: %s (Asia/Tokyo)", *schedule)

	if *runNow {
		go func() {
			if _, err := sched.RunOnce(ctx); err != nil {
				log.Errorf("初回実行に失敗: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Infof("停止中...")
	sched.Stop()
}
