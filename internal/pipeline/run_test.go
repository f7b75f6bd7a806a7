package pipeline

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// recordingPublisher は受け取ったダイジェストを記録する
type recordingPublisher struct {
	name string
	err  error

	mu      sync.Mutex
	digests []Digest
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, d Digest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.digests = append(p.digests, d)
	return p.err
}

const aiFeedTier2 = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>IT</title>
<item><title>OpenAIが新モデル発表 - ITmedia NEWS</title><link>https://example.com/it/1?utm_source=rss</link></item>
<item><title>新しいスマホが発売</title><link>https://example.com/it/2</link></item>
<item><title>ChatGPTの新機能が公開</title><link>https://example.com/it/3</link></item>
</channel></rss>`

const aiFeedTier4 = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>AI</title>
<item><title>OpenAI、新モデルを発表</title><link>https://example.com/ai/1</link></item>
<item><title>生成AIで業務効率化</title><link>https://example.com/ai/2</link></item>
</channel></rss>`

const offTopicFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Misc</title>
<item><title>新しいスマホが発売</title><link>https://example.com/misc/1</link></item>
<item><title>今日の天気</title><link>https://example.com/misc/2</link></item>
</channel></rss>`

const malformedFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Malformed</title>
<item><title>   </title><link>https://example.com/malformed/1</link></item>
<item><title>LLMの評価手法</title><link>mailto:news@example.com</link></item>
<item><title>生成AIの導入事例</title><link>https://example.com/malformed/3</link></item>
</channel></rss>`

func newRunServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range map[string]string{"/it": aiFeedTier2, "/ai": aiFeedTier4, "/misc": offTopicFeed, "/malformed": malformedFeed} {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, srv *httptest.Server, paths []string, publishers ...Publisher) *Runner {
	t.Helper()

	var sources []Source
	for i, p := range paths {
		tier := 2
		if p == "/ai" {
			tier = 4
		}
		sources = append(sources, Source{
			Name:          strings.TrimPrefix(p, "/") + string(rune('A'+i)),
			Tier:          tier,
			URL:           srv.URL + p,
			Strategy:      StrategyRSS,
			TitleSuffixes: []string{"ITmedia NEWS"},
		})
	}

	cfg := &PipelineConfig{
		Input:     InputConfig{HoursBack: 0},
		Selection: SelectionConfig{MaxArticles: DefaultMaxArticles, Threshold: DefaultThreshold, RequireKeyword: true},
		Publish:   PublishConfig{NoNewsMessage: true, FailureNotice: true},
	}
	log := zaptest.NewLogger(t).Sugar()

	return &Runner{
		Sources:    sources,
		Fetcher:    NewFetcher(FetcherOptions{Client: srv.Client(), Timeout: 2 * time.Second}, log),
		Normalizer: NewNormalizer(sources),
		Deduper:    NewDeduplicator(LevenshteinSimilarity{}, DefaultThreshold),
		Scorer:     NewScorer(DefaultKeywords(), nil),
		Selector:   NewSelector(DefaultMaxArticles),
		Formatter:  testFormatter(DefaultTitleWidth),
		Publishers: publishers,
		Config:     cfg,
		Log:        log,
		Now:        func() time.Time { return testNow },
	}
}

func TestRun_PublishesDigest(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	secondary := &recordingPublisher{name: "secondary"}
	r := newTestRunner(t, srv, []string{"/it", "/ai", "/misc"}, primary, secondary)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	_, uuidErr := uuid.Parse(report.RunID)
	assert.NoError(t, uuidErr)
	assert.Equal(t, 7, report.Fetched)
	assert.Equal(t, 3, report.Selected)
	assert.Equal(t, []string{"primary", "secondary"}, report.Published)

	require.Len(t, primary.digests, 1)
	d := primary.digests[0]
	assert.False(t, d.Empty)

	var titles []string
	for _, a := range d.Articles {
		titles = append(titles, a.Title)
	}
	// スコア順: ChatGPT(2+8+5) > 生成AI(4+8+1) > OpenAI(4+5+1)。
	// OpenAIの2本はティアの高いソースの記事だけが残る
	assert.Equal(t, []string{"ChatGPTの新機能が公開", "生成AIで業務効率化", "OpenAI、新モデルを発表"}, titles)
	assert.Equal(t, "https://example.com/ai/1", d.Articles[2].URL)
	assert.Contains(t, d.Text, "📊 記事数: 3件")
	assert.NotContains(t, d.Text, "スマホ")
	assert.NotContains(t, d.Text, "utm_source")

	require.Len(t, secondary.digests, 1)
	assert.Equal(t, d.Text, secondary.digests[0].Text)
}

func TestRun_AllSourcesFail(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	secondary := &recordingPublisher{name: "secondary"}
	r := newTestRunner(t, srv, []string{"/down", "/down"}, primary, secondary)

	report, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSourcesReachable)
	assert.Len(t, report.SourcesFailed, 2)
	assert.Zero(t, report.Selected)

	// ダイジェストは送らず、障害通知だけをプライマリに送る
	require.Len(t, primary.digests, 1)
	assert.Empty(t, primary.digests[0].Articles)
	assert.Contains(t, primary.digests[0].Text, "⚠️ システム通知")
	assert.NotContains(t, primary.digests[0].Text, "本日のAIニュース")
	assert.Empty(t, secondary.digests)
}

func TestRun_AllSourcesFailWithoutNotice(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	r := newTestRunner(t, srv, []string{"/down"}, primary)
	r.Config.Publish.FailureNotice = false

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSourcesReachable)
	assert.Empty(t, primary.digests)
}

func TestRun_NoRelevantArticles(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	r := newTestRunner(t, srv, []string{"/misc", "/down"}, primary)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.Equal(t, []string{"miscA"}, report.SourcesOK)

	require.Len(t, primary.digests, 1)
	assert.True(t, primary.digests[0].Empty)
	assert.Contains(t, primary.digests[0].Text, "本日は新しいAI関連記事が見つかりませんでした")

	// 「記事なし」メッセージを無効にすると何も送らない
	silent := &recordingPublisher{name: "primary"}
	r = newTestRunner(t, srv, []string{"/misc"}, silent)
	r.Config.Publish.NoNewsMessage = false
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, silent.digests)
}

func TestRun_PrimaryFailure(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "chatwork", err: &PublishError{Publisher: "chatwork", StatusCode: http.StatusUnauthorized, Err: errors.New("invalid token")}}
	secondary := &recordingPublisher{name: "notion"}
	r := newTestRunner(t, srv, []string{"/ai"}, primary, secondary)

	report, err := r.Run(context.Background())
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.Unauthorized())
	assert.Equal(t, []string{"notion"}, report.Published)
	assert.Len(t, secondary.digests, 1)
}

func TestRun_SecondaryFailureIsTolerated(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "chatwork"}
	secondary := &recordingPublisher{name: "email", err: errors.New("smtp down")}
	r := newTestRunner(t, srv, []string{"/ai"}, primary, secondary)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chatwork"}, report.Published)
	assert.Len(t, report.Errors, 1)
}

func TestRun_NoPublishers(t *testing.T) {
	srv := newRunServer(t)
	r := newTestRunner(t, srv, []string{"/ai"})

	_, err := r.Run(context.Background())
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
}

func TestRun_DryRunWritesOutputs(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	r := newTestRunner(t, srv, []string{"/it", "/ai"}, primary)

	var stdout bytes.Buffer
	dir := t.TempDir()
	r.Stdout = &stdout
	r.Config.Output = OutputConfig{
		DryRun:   true,
		OutFile:  filepath.Join(dir, "digest.json"),
		FeedFile: filepath.Join(dir, "digest.atom"),
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, primary.digests)
	assert.True(t, strings.HasPrefix(stdout.String(), "[info][title]🤖 本日のAIニュース - 2025年06月01日"))

	b, err := os.ReadFile(r.Config.Output.OutFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "OpenAI、新モデルを発表")

	b, err = os.ReadFile(r.Config.Output.FeedFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<feed")
}

func TestRun_DryRunFailureNotice(t *testing.T) {
	srv := newRunServer(t)
	r := newTestRunner(t, srv, []string{"/down"})
	var stdout bytes.Buffer
	r.Stdout = &stdout
	r.Config.Output.DryRun = true

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrNoSourcesReachable)
	assert.Contains(t, stdout.String(), "⚠️ システム通知")
}

func TestNewRunner(t *testing.T) {
	cfg := &PipelineConfig{
		Input:     InputConfig{SourcesRaw: "AINOW", PerSource: 5},
		Selection: SelectionConfig{MaxArticles: 5, Threshold: DefaultThreshold, Similarity: SimilarityBigram},
		Output:    OutputConfig{DryRun: true, TitleWidth: DefaultTitleWidth},
	}
	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	require.Len(t, r.Sources, 1)
	assert.Equal(t, "AINOW", r.Sources[0].Name)
	assert.Empty(t, r.Publishers)

	cfg.Input.SourcesRaw = "no such source"
	_, err = NewRunner(cfg, nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestRun_LogsDroppedArticles(t *testing.T) {
	srv := newRunServer(t)
	primary := &recordingPublisher{name: "primary"}
	r := newTestRunner(t, srv, []string{"/malformed"}, primary)

	core, logs := observer.New(zapcore.InfoLevel)
	r.Log = zap.New(core).Sugar()

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, 1, report.Normalized)
	assert.Equal(t, 1, report.Selected)

	entries := logs.FilterMessageSnippet("不正な記事 2件").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}
