// =============================================================================
// config.go - パイプライン設定
// =============================================================================
//
// このファイルはCLIフラグと環境変数の解析、設定の検証を行います。
//
// 【設定グループ】
//   - InputConfig:     取得対象ソースとHTTP設定
//   - SelectionConfig: 重複排除・選定の設定
//   - OutputConfig:    出力（ドライラン、JSON、Atom）の設定
//   - PublishConfig:   配信先（ChatWork / Notion / メール）の設定
//   - LogConfig:       ログ設定
//
// 【シークレット】
//
//	トークン類はフラグではなく環境変数（.env可）から読み込む:
//	CHATWORK_TOKEN, CHATWORK_ROOM_ID, NOTION_TOKEN, NOTION_DATABASE_ID,
//	EMAIL_FROM, EMAIL_PASSWORD, EMAIL_TO
//
// =============================================================================
package pipeline

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// デフォルト値
const (
	DefaultMaxArticles = 8 // 1回のダイジェストに載せる記事数
	DefaultThreshold   = 0.80
	DefaultPerSource   = 50
	DefaultConcurrency = 8
	DefaultTimeout     = 15 * time.Second
	DefaultHoursBack   = 48
	DefaultTitleWidth  = 150 // 全角75文字相当
	DefaultPublishers  = PublisherChatWork

	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"
)

// Publisher名
const (
	PublisherChatWork = "chatwork"
	PublisherNotion   = "notion"
	PublisherEmail    = "email"
)

// =============================================================================
// 設定構造体
// =============================================================================

// PipelineConfig はパイプラインの全設定を保持する
type PipelineConfig struct {
	Input     InputConfig
	Selection SelectionConfig
	Output    OutputConfig
	Publish   PublishConfig
	Log       LogConfig
}

// InputConfig は取得対象に関する設定
type InputConfig struct {
	// SourcesFile が指定された場合、埋め込みカタログの代わりに読み込む
	SourcesFile string

	// SourcesRaw はカンマ区切りのソース名（-sources フラグの値、"all"で全件）
	SourcesRaw string

	// PerSource はソースあたりの最大記事数
	PerSource int

	// Timeout はソースごとの取得タイムアウト
	Timeout time.Duration

	// UserAgent はHTTPリクエストのUser-Agent
	UserAgent string

	// Concurrency は同時に取得するソース数の上限
	Concurrency int

	// HoursBack より古い記事を除外する（0で無効、日付不明の記事は残す）
	HoursBack int
}

// Sources はSourcesRawをパースしてスライスで返す
func (c *InputConfig) Sources() []string {
	return splitList(c.SourcesRaw)
}

// SelectionConfig は重複排除・選定に関する設定
type SelectionConfig struct {
	// MaxArticles はダイジェストに載せる最大記事数
	MaxArticles int

	// Threshold はタイトル類似度の重複判定しきい値
	Threshold float64

	// Similarity は類似度アルゴリズム（"levenshtein" | "bigram"）
	Similarity string

	// RequireKeyword がtrueの場合、AI関連キーワードを含まない記事を除外する
	RequireKeyword bool
}

// SourceCap はソースあたりの上限 ⌈MaxArticles/3⌉ を返す
func (c SelectionConfig) SourceCap() int {
	return SourceCap(c.MaxArticles)
}

// OutputConfig は出力に関する設定
type OutputConfig struct {
	// DryRun がtrueの場合、配信せずダイジェストを標準出力に書く
	DryRun bool

	// OutFile が指定された場合、選定結果をJSONで保存
	OutFile string

	// FeedFile が指定された場合、選定結果をAtomフィードで保存
	FeedFile string

	// TitleWidth はダイジェスト内タイトルの最大表示幅（半角換算）
	TitleWidth int

	// ListSources がtrueの場合、ソース一覧を表示して終了
	ListSources bool
}

// PublishConfig は配信に関する設定
type PublishConfig struct {
	// PublishersRaw はカンマ区切りの配信先。先頭がプライマリ。
	PublishersRaw string

	ChatWorkToken   string
	ChatWorkRoomID  string
	ChatWorkBaseURL string

	NotionToken      string
	NotionDatabaseID string

	EmailFrom     string
	EmailPassword string
	EmailTo       string

	// NoNewsMessage がtrueの場合、記事0件でも「記事なし」メッセージを送る
	NoNewsMessage bool

	// FailureNotice がtrueの場合、全ソース失敗時に障害通知を送る
	FailureNotice bool
}

// Publishers はPublishersRawをパースしてスライスで返す
func (c *PublishConfig) Publishers() []string {
	return splitList(c.PublishersRaw)
}

// LogConfig はログ設定
type LogConfig struct {
	Level       string
	Development bool
}

// =============================================================================
// フラグ解析
// =============================================================================

// ParseFlags はCLIフラグを解析してPipelineConfigを返す。
// シークレットは環境変数から読み込む（呼び出し前に godotenv.Load() しておく）。
func ParseFlags(fs *flag.FlagSet, args []string) (*PipelineConfig, error) {
	cfg := &PipelineConfig{}

	// Input flags
	fs.StringVar(&cfg.Input.SourcesFile, "sourcesFile", "", "optional: YAML source catalogue (default: embedded sources.yaml)")
	fs.StringVar(&cfg.Input.SourcesRaw, "sources", "all", "comma separated source names, or all")
	fs.IntVar(&cfg.Input.PerSource, "perSource", DefaultPerSource, "max articles to read per source")
	fs.DurationVar(&cfg.Input.Timeout, "timeout", DefaultTimeout, "per-source fetch timeout")
	fs.StringVar(&cfg.Input.UserAgent, "userAgent", DefaultUserAgent, "User-Agent header for feed requests")
	fs.IntVar(&cfg.Input.Concurrency, "concurrency", DefaultConcurrency, "max sources fetched at once")
	fs.IntVar(&cfg.Input.HoursBack, "hoursBack", DefaultHoursBack, "drop articles older than N hours (0 disables)")

	// Selection flags
	fs.IntVar(&cfg.Selection.MaxArticles, "maxArticles", DefaultMaxArticles, "max articles in the digest")
	fs.Float64Var(&cfg.Selection.Threshold, "threshold", DefaultThreshold, "title similarity threshold for near-duplicates")
	fs.StringVar(&cfg.Selection.Similarity, "similarity", SimilarityLevenshtein, "similarity strategy: levenshtein|bigram")
	fs.BoolVar(&cfg.Selection.RequireKeyword, "requireKeyword", true, "drop articles without an AI keyword in the title")

	// Output flags
	fs.BoolVar(&cfg.Output.DryRun, "dryRun", false, "print the digest to stdout instead of publishing")
	fs.StringVar(&cfg.Output.OutFile, "out", "", "optional: write selected articles as JSON to this path")
	fs.StringVar(&cfg.Output.FeedFile, "feedOut", "", "optional: write selected articles as an Atom feed to this path")
	fs.IntVar(&cfg.Output.TitleWidth, "titleWidth", DefaultTitleWidth, "max display width of a title in the digest")
	fs.BoolVar(&cfg.Output.ListSources, "listSources", false, "list configured sources and exit")

	// Publish flags
	fs.StringVar(&cfg.Publish.PublishersRaw, "publishers", DefaultPublishers, "comma separated publishers: chatwork,notion,email (first is primary)")
	fs.StringVar(&cfg.Publish.ChatWorkBaseURL, "chatworkBaseURL", DefaultChatWorkBaseURL, "ChatWork API base URL")
	fs.BoolVar(&cfg.Publish.NoNewsMessage, "noNewsMessage", true, "post a no-news message when nothing was selected")
	fs.BoolVar(&cfg.Publish.FailureNotice, "failureNotice", true, "post a failure notice when no source was reachable")

	// Log flags
	fs.StringVar(&cfg.Log.Level, "logLevel", envOr("LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.Log.Development, "logDev", false, "human readable development logging")

	if err := fs.Parse(args); err != nil {
		return nil, &ConfigError{Field: "flags", Err: err}
	}

	cfg.loadSecrets()
	return cfg, nil
}

// LoadEnvConfig は環境変数だけから設定を組み立てる（Lambda用）
//
// 環境変数:
//   - SOURCES:      取得するソース（デフォルト: all）
//   - PER_SOURCE:   ソースあたりの記事数（デフォルト: 50）
//   - MAX_ARTICLES: ダイジェストの記事数（デフォルト: 8）
//   - HOURS_BACK:   何時間以内の記事を対象にするか（デフォルト: 48、0=フィルタなし）
//   - PUBLISHERS:   配信先（デフォルト: chatwork）
//   - SIMILARITY:   類似度アルゴリズム（デフォルト: levenshtein）
//   - LOG_LEVEL:    ログレベル（デフォルト: info）
func LoadEnvConfig() *PipelineConfig {
	cfg := &PipelineConfig{
		Input: InputConfig{
			SourcesFile: os.Getenv("SOURCES_FILE"),
			SourcesRaw:  envOr("SOURCES", "all"),
			PerSource:   envInt("PER_SOURCE", DefaultPerSource, 1),
			Timeout:     DefaultTimeout,
			UserAgent:   DefaultUserAgent,
			Concurrency: DefaultConcurrency,
			HoursBack:   envInt("HOURS_BACK", DefaultHoursBack, 0),
		},
		Selection: SelectionConfig{
			MaxArticles:    envInt("MAX_ARTICLES", DefaultMaxArticles, 1),
			Threshold:      DefaultThreshold,
			Similarity:     envOr("SIMILARITY", SimilarityLevenshtein),
			RequireKeyword: true,
		},
		Output: OutputConfig{
			TitleWidth: DefaultTitleWidth,
		},
		Publish: PublishConfig{
			PublishersRaw:   envOr("PUBLISHERS", DefaultPublishers),
			ChatWorkBaseURL: envOr("CHATWORK_BASE_URL", DefaultChatWorkBaseURL),
			NoNewsMessage:   true,
			FailureNotice:   true,
		},
		Log: LogConfig{
			Level: envOr("LOG_LEVEL", "info"),
		},
	}
	cfg.loadSecrets()
	return cfg
}

func (c *PipelineConfig) loadSecrets() {
	c.Publish.ChatWorkToken = os.Getenv("CHATWORK_TOKEN")
	c.Publish.ChatWorkRoomID = os.Getenv("CHATWORK_ROOM_ID")
	c.Publish.NotionToken = os.Getenv("NOTION_TOKEN")
	c.Publish.NotionDatabaseID = os.Getenv("NOTION_DATABASE_ID")
	c.Publish.EmailFrom = os.Getenv("EMAIL_FROM")
	c.Publish.EmailPassword = os.Getenv("EMAIL_PASSWORD")
	c.Publish.EmailTo = os.Getenv("EMAIL_TO")
}

// =============================================================================
// 検証
// =============================================================================

// Validate は設定の妥当性を検証し、問題があれば *ConfigError を返す。
// ドライラン時は配信先のシークレットを要求しない。
func (c *PipelineConfig) Validate() error {
	if c.Selection.MaxArticles < 1 {
		return configErrorf("maxArticles", "must be at least 1, got %d", c.Selection.MaxArticles)
	}
	if c.Selection.Threshold <= 0 || c.Selection.Threshold > 1 {
		return configErrorf("threshold", "must be in (0, 1], got %v", c.Selection.Threshold)
	}
	if _, err := NewSimilarity(c.Selection.Similarity); err != nil {
		return err
	}
	if c.Input.PerSource < 1 {
		return configErrorf("perSource", "must be at least 1, got %d", c.Input.PerSource)
	}
	if c.Input.Concurrency < 1 {
		return configErrorf("concurrency", "must be at least 1, got %d", c.Input.Concurrency)
	}
	if c.Input.Timeout <= 0 {
		return configErrorf("timeout", "must be positive, got %v", c.Input.Timeout)
	}
	if c.Input.HoursBack < 0 {
		return configErrorf("hoursBack", "must not be negative, got %d", c.Input.HoursBack)
	}
	if c.Output.DryRun {
		return nil
	}

	publishers := c.Publish.Publishers()
	if len(publishers) == 0 {
		return configErrorf("publishers", "at least one publisher is required")
	}
	for _, p := range publishers {
		switch p {
		case PublisherChatWork:
			if c.Publish.ChatWorkToken == "" {
				return configErrorf("CHATWORK_TOKEN", "is required")
			}
			if c.Publish.ChatWorkRoomID == "" {
				return configErrorf("CHATWORK_ROOM_ID", "is required")
			}
		case PublisherNotion:
			if c.Publish.NotionToken == "" {
				return configErrorf("NOTION_TOKEN", "is required")
			}
			if c.Publish.NotionDatabaseID == "" {
				return configErrorf("NOTION_DATABASE_ID", "is required")
			}
		case PublisherEmail:
			if c.Publish.EmailFrom == "" || c.Publish.EmailPassword == "" || c.Publish.EmailTo == "" {
				return configErrorf("EMAIL_FROM/EMAIL_PASSWORD/EMAIL_TO", "are required")
			}
		default:
			return configErrorf("publishers", "unknown publisher %q", p)
		}
	}
	return nil
}

// =============================================================================
// ヘルパー
// =============================================================================

func splitList(raw string) []string {
	var result []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt は整数の環境変数を読む。lo未満・不正値はデフォルトに戻す。
func envInt(key string, def, lo int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= lo {
			return n
		}
	}
	return def
}
