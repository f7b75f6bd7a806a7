package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule は毎朝9時（Asia/Tokyo）
const DefaultSchedule = "0 9 * * *"

// RunnerFactory は1回の実行ごとに新しいRunnerを作る。実行間で状態を共有しない。
type RunnerFactory func() (*Runner, error)

// Scheduler はcron式に従ってパイプラインを起動する
type Scheduler struct {
	cron    *cron.Cron
	factory RunnerFactory
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewScheduler はスケジューラを生成する。timeout は1回の実行の上限（0で無制限）。
func NewScheduler(spec string, loc *time.Location, timeout time.Duration, factory RunnerFactory, log *zap.SugaredLogger) (*Scheduler, error) {
	if loc == nil {
		loc = JST()
	}
	log = nopIfNil(log)
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, factory: factory, timeout: timeout, log: log}
	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, configErrorf("schedule", "invalid cron spec %q: %v", spec, err)
	}
	return s, nil
}

// Start はスケジューラを開始する
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Infof("次回の配信: %s", e.Next.Format(time.RFC3339))
	}
}

// Stop は新しい起動を止め、実行中のジョブの終了を待つ
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce はスケジュールとは別に1回だけ実行する
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	runner, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("build runner: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return runner.Run(ctx)
}

func (s *Scheduler) runOnce() {
	report, err := s.RunOnce(context.Background())
	switch {
	case err == nil:
		s.log.Infof("配信完了: run_id=%s selected=%d published=%v", report.RunID, report.Selected, report.Published)
	case errors.Is(err, ErrNoSourcesReachable):
		s.log.Errorf("全ソースの取得に失敗しました: %v", err)
	default:
		s.log.Errorf("配信に失敗しました: %v", err)
	}
}

// cronLogger は cron.Logger をzapに渡す
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
