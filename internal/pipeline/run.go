// =============================================================================
// run.go - パイプライン全体の実行
// =============================================================================
//
// 【処理の流れ】
//
//	FetchAll → Normalize → FilterByAge → Dedupe → Score（+関連性フィルタ）
//	→ Select → Format → Publish
//
// 【終了条件】
//
//	全ソース失敗 / 記事0件   → ダイジェストは配信しない。障害通知（有効時）を
//	                          プライマリに送り ErrNoSourcesReachable を返す
//	選定結果が0件            → 「記事なし」メッセージ（有効時）を配信して成功
//	プライマリの配信失敗      → *PublishError を返す
//	セカンダリの配信失敗      → ログに残して成功扱い
//	ドライラン               → 本文を Stdout に書くだけで配信しない
//
// 実行ごとに run_id（UUID）を振り、すべてのログに付ける。
// 実行間で状態は持ち越さない。
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner は1回分のパイプライン実行に必要な部品をまとめる
type Runner struct {
	Sources    []Source
	Fetcher    *Fetcher
	Normalizer *Normalizer
	Deduper    *Deduplicator
	Scorer     *Scorer
	Selector   *Selector
	Formatter  *Formatter
	Publishers []Publisher // 先頭がプライマリ
	Config     *PipelineConfig
	Log        *zap.SugaredLogger
	Now        func() time.Time
	Stdout     io.Writer
}

// NewRunner は設定から Runner を組み立てる。設定は Validate 済みであること。
func NewRunner(cfg *PipelineConfig, log *zap.SugaredLogger) (*Runner, error) {
	log = nopIfNil(log)

	all, err := LoadSources(cfg.Input.SourcesFile)
	if err != nil {
		return nil, err
	}
	sources, err := FilterSources(all, cfg.Input.Sources())
	if err != nil {
		return nil, err
	}
	sim, err := NewSimilarity(cfg.Selection.Similarity)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(FetcherOptions{
		UserAgent:   cfg.Input.UserAgent,
		Timeout:     cfg.Input.Timeout,
		Concurrency: cfg.Input.Concurrency,
		PerSource:   cfg.Input.PerSource,
	}, log)

	var publishers []Publisher
	if !cfg.Output.DryRun {
		publishers, err = BuildPublishers(&cfg.Publish, nil, log)
		if err != nil {
			return nil, err
		}
	}

	return &Runner{
		Sources:    sources,
		Fetcher:    fetcher,
		Normalizer: NewNormalizer(sources),
		Deduper:    NewDeduplicator(sim, cfg.Selection.Threshold),
		Scorer:     NewScorer(DefaultKeywords(), nil),
		Selector:   NewSelector(cfg.Selection.MaxArticles),
		Formatter:  NewFormatter(cfg.Output.TitleWidth),
		Publishers: publishers,
		Config:     cfg,
		Log:        log,
		Now:        time.Now,
		Stdout:     os.Stdout,
	}, nil
}

// Run はパイプラインを1回実行する
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	now := r.now()
	report := &RunReport{RunID: uuid.NewString(), StartedAt: now}
	log := nopIfNil(r.Log).With("run_id", report.RunID)
	defer func() { report.FinishedAt = r.now() }()

	log.Infof("パイプライン開始: ソース %d件", len(r.Sources))

	// 1. 取得
	fetched := r.Fetcher.FetchAll(ctx, r.Sources)
	report.SourcesOK = fetched.OK
	for _, fe := range fetched.Failed {
		report.SourcesFailed = append(report.SourcesFailed, fe.Source)
		report.Errors = append(report.Errors, fe.Error())
	}
	report.Fetched = len(fetched.Articles)

	if len(fetched.Articles) == 0 {
		log.Warnf("取得できた記事がありません（成功 %d件, 失敗 %d件）", len(fetched.OK), len(fetched.Failed))
		if r.Config.Publish.FailureNotice {
			r.sendFailureNotice(ctx, log, now, report)
		}
		return report, ErrNoSourcesReachable
	}

	// 2. 正規化
	articles, dropped := r.Normalizer.Normalize(fetched.Articles)
	for _, pe := range dropped {
		log.Debugw("article dropped", "source", pe.Source, "url", pe.URL, "reason", pe.Reason)
	}
	report.Dropped = len(dropped)
	if len(dropped) > 0 {
		log.Infof("正規化: 不正な記事 %d件を除外", len(dropped))
	}
	articles = FilterByAge(articles, r.Config.Input.HoursBack, now)
	report.Normalized = len(articles)

	// 3. 重複排除
	deduped := r.Deduper.Dedupe(articles)
	report.Deduplicated = len(deduped.Articles)
	log.Infof("重複排除: URL重複 %d件, 類似タイトル %d件を除外", deduped.URLDuplicates, deduped.SimilarDuplicates)

	// 4. スコアリング
	scored := r.Scorer.Score(deduped.Articles)
	if r.Config.Selection.RequireKeyword {
		scored = r.Scorer.FilterRelevant(scored)
	}
	report.Relevant = len(scored)

	// 5. 選定・整形
	selected := r.Selector.Select(scored)
	report.Selected = len(selected)
	digest := r.Formatter.Format(selected, now)
	log.Infof("Selected %d AI articles from %d filtered articles", len(selected), len(scored))

	if err := r.writeOutputs(digest); err != nil {
		log.Warnf("出力ファイルの書き込みに失敗: %v", err)
		report.Errors = append(report.Errors, err.Error())
	}

	if digest.Empty && !r.Config.Publish.NoNewsMessage {
		log.Warnf("取得できたAI記事がありませんでした（配信をスキップ）")
		return report, nil
	}

	// 6. 配信
	if err := r.publish(ctx, log, digest, report); err != nil {
		return report, err
	}
	return report, nil
}

// publish はダイジェストを配信する。プライマリの失敗だけを返す。
func (r *Runner) publish(ctx context.Context, log *zap.SugaredLogger, d Digest, report *RunReport) error {
	if r.Config.Output.DryRun {
		return r.dryRun().Publish(ctx, d)
	}
	if len(r.Publishers) == 0 {
		return &PublishError{Publisher: "none", Err: errors.New("no publisher configured")}
	}

	var primaryErr error
	for i, p := range r.Publishers {
		err := p.Publish(ctx, d)
		if err == nil {
			report.Published = append(report.Published, p.Name())
			log.Infof("%s に配信しました（%d件）", p.Name(), len(d.Articles))
			continue
		}
		report.Errors = append(report.Errors, err.Error())
		if i == 0 {
			log.Errorf("プライマリ配信先 %s への配信に失敗: %v", p.Name(), err)
			primaryErr = asPublishError(p.Name(), err)
			continue
		}
		log.Warnf("配信先 %s への配信に失敗（続行）: %v", p.Name(), err)
	}
	return primaryErr
}

// sendFailureNotice は障害通知をプライマリ配信先にだけ送る
func (r *Runner) sendFailureNotice(ctx context.Context, log *zap.SugaredLogger, now time.Time, report *RunReport) {
	notice := Digest{Text: r.Formatter.FailureNotice(now), GeneratedAt: now, Empty: true}

	var p Publisher
	switch {
	case r.Config.Output.DryRun:
		p = r.dryRun()
	case len(r.Publishers) > 0:
		p = r.Publishers[0]
	default:
		return
	}
	if err := p.Publish(ctx, notice); err != nil {
		log.Errorf("障害通知の送信に失敗: %v", err)
		report.Errors = append(report.Errors, err.Error())
	}
}

// writeOutputs は -out / -feedOut が指定されていればファイルに書き出す
func (r *Runner) writeOutputs(d Digest) error {
	if path := r.Config.Output.OutFile; path != "" {
		if err := WriteFileAtomic(path, func(w io.Writer) error { return WriteJSON(w, d) }); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if path := r.Config.Output.FeedFile; path != "" && !d.Empty {
		if err := WriteFileAtomic(path, func(w io.Writer) error { return WriteAtomFeed(w, d) }); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func (r *Runner) dryRun() Publisher {
	w := r.Stdout
	if w == nil {
		w = os.Stdout
	}
	return WriterPublisher{W: w}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func asPublishError(name string, err error) error {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	return &PublishError{Publisher: name, Err: err}
}
