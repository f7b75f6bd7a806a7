// =============================================================================
// fetcher.go - ソースからの記事取得
// =============================================================================
//
// 設定された全ソースから記事一覧を取得します。
//
// 【方針】
//   - 1ソース = 1タスク。errgroup で並列実行し、全タスクの完了を待ってからマージ
//   - ソースごとにタイムアウト（context.WithTimeout）を設定
//   - 1ソースの失敗（ネットワーク・ステータス・パース）はログに残して0件扱い
//   - リトライはしない（毎日の実行そのものがリトライ）
//   - マージはカタログ順に行うので、完了順に関係なく発見順は決定的
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes はフィード・HTMLの読み込み上限
const maxBodyBytes = 10 << 20

// Fetcher は全ソースからRawArticleを取得する
type Fetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	concurrency int
	perSource   int
	log         *zap.SugaredLogger
}

// FetcherOptions はFetcherの生成パラメータ
type FetcherOptions struct {
	Client      *http.Client // nilの場合は共有クライアントを生成
	UserAgent   string
	Timeout     time.Duration
	Concurrency int
	PerSource   int
}

// NewFetcher はFetcherを生成する
func NewFetcher(opts FetcherOptions, log *zap.SugaredLogger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PerSource < 1 {
		opts.PerSource = DefaultPerSource
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		// 共有HTTPクライアント（コネクションプーリング有効）。
		// タイムアウトはソースごとのcontextで制御する。
		opts.Client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Fetcher{
		client:      opts.Client,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		perSource:   opts.PerSource,
		log:         nopIfNil(log),
	}
}

// FetchResult は全ソースの取得結果
type FetchResult struct {
	Articles []RawArticle
	OK       []string
	Failed   []*SourceFetchError
}

// FetchAll は全ソースを並列に取得し、カタログ順にマージして返す
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) *FetchResult {
	type outcome struct {
		articles []RawArticle
		err      *SourceFetchError
	}
	outcomes := make([]outcome, len(sources))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			started := time.Now()
			arts, err := f.FetchSource(ctx, src)
			if err != nil {
				fe := &SourceFetchError{Source: src.Name, URL: src.URL, Err: err}
				f.log.Warnw("source fetch failed", "source", src.Name, "error", err, "elapsed", time.Since(started))
				outcomes[i] = outcome{err: fe}
				return nil
			}
			f.log.Debugw("source fetched", "source", src.Name, "articles", len(arts), "elapsed", time.Since(started))
			outcomes[i] = outcome{articles: arts}
			return nil
		})
	}
	_ = g.Wait() // タスクはエラーを返さない

	result := &FetchResult{}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, o.err)
			continue
		}
		result.OK = append(result.OK, sources[i].Name)
		result.Articles = append(result.Articles, o.articles...)
	}

	f.log.Infof("フィード取得結果: 成功 %d件, 失敗 %d件, 記事 %d件",
		len(result.OK), len(result.Failed), len(result.Articles))
	return result
}

// FetchSource は1ソースを取得してRawArticleを返す
func (f *Fetcher) FetchSource(ctx context.Context, src Source) ([]RawArticle, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	limit := f.perSource
	if src.MaxItems > 0 && src.MaxItems < limit {
		limit = src.MaxItems
	}

	switch src.Strategy {
	case StrategyHTML:
		return f.fetchHTML(ctx, src, limit)
	case StrategyRSS, "":
		return f.fetchRSS(ctx, src, limit)
	default:
		return nil, fmt.Errorf("unknown strategy %q", src.Strategy)
	}
}

// =============================================================================
// RSS / RDF / Atom
// =============================================================================

func (f *Fetcher) fetchRSS(ctx context.Context, src Source, limit int) ([]RawArticle, error) {
	body, err := f.get(ctx, src.URL, "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	fp := gofeed.NewParser()
	feed, err := fp.Parse(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("feed parse failed: %w", err)
	}

	out := make([]RawArticle, 0, min(limit, len(feed.Items)))
	for _, item := range feed.Items {
		if len(out) >= limit {
			break
		}
		if item == nil {
			continue
		}
		out = append(out, RawArticle{
			SourceName:  src.Name,
			SourceTier:  src.Tier,
			Title:       item.Title,
			URL:         itemLink(item),
			PublishedAt: itemTime(item),
			Order:       len(out),
		})
	}
	return out, nil
}

// itemLink は記事リンクを返す（Atomで link が空の場合は links の先頭）
func itemLink(item *gofeed.Item) string {
	if l := strings.TrimSpace(item.Link); l != "" {
		return l
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func itemTime(item *gofeed.Item) *time.Time {
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		return &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		return &t
	}
	return nil
}

// =============================================================================
// HTML一覧ページ
// =============================================================================

func (f *Fetcher) fetchHTML(ctx context.Context, src Source, limit int) ([]RawArticle, error) {
	if src.HTML == nil || src.HTML.Item == "" {
		return nil, fmt.Errorf("html strategy requires an item selector")
	}

	body, err := f.get(ctx, src.URL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("html parse failed: %w", err)
	}

	out := make([]RawArticle, 0, limit)
	doc.Find(src.HTML.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(out) >= limit {
			return false
		}

		titleSel := s
		if src.HTML.Title != "" {
			titleSel = s.Find(src.HTML.Title).First()
		}
		linkSel := s
		if src.HTML.Link != "" {
			linkSel = s.Find(src.HTML.Link).First()
		}
		href, _ := linkSel.Attr("href")

		out = append(out, RawArticle{
			SourceName: src.Name,
			SourceTier: src.Tier,
			Title:      titleSel.Text(),
			URL:        resolveURL(src.URL, href),
			Order:      len(out),
		})
		return true
	})
	return out, nil
}

// =============================================================================
// HTTP
// =============================================================================

// get はGETリクエストを送り、2xxの場合のみボディを返す（呼び出し元でClose）
func (f *Fetcher) get(ctx context.Context, u, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	// ブロッキング回避のため、ブラウザ風のヘッダーを設定
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return resp.Body, nil
}

// resolveURL は相対URLを絶対URLに変換する（解決できない場合は空文字列）
func resolveURL(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
