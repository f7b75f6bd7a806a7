// =============================================================================
// sources.go - ソースカタログ
// =============================================================================
//
// 取得対象のニュースソース（名前・ティア・URL・パース方式）を管理します。
// デフォルトのカタログは sources.yaml をバイナリに埋め込んで使用し、
// -sourcesFile フラグで別のYAMLに差し替えられます。
//
// 【ティアの意味】
//
//	1: 一般ニュース・経済メディア（Google ニュース、東洋経済 など）
//	2: 一般IT系メディア（ITmedia NEWS、GIGAZINE など）
//	3: 技術系メディア・企業テックブログ（Publickey、Zenn など）
//	4: AI特化メディア（ITmedia AI+、AINOW など）
//
// 【パース方式】
//
//	rss:  RSS 2.0 / RSS 1.0 (RDF) / Atom を gofeed で解析
//	html: 一覧ページを goquery で解析（CSSセレクタをソースごとに指定）
//
// =============================================================================
package pipeline

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// パース方式
const (
	StrategyRSS  = "rss"
	StrategyHTML = "html"
)

//go:embed sources.yaml
var defaultSourcesYAML []byte

// Source はニュースソース1件の設定
//
// TrimSiteName が true のソース（Google ニュース等のアグリゲータ）は、
// タイトル末尾の " - 媒体名" を媒体名が何であっても除去する。
type Source struct {
	Name          string         `yaml:"name" json:"name"`
	Tier          int            `yaml:"tier" json:"tier"`
	URL           string         `yaml:"url" json:"url"`
	Strategy      string         `yaml:"strategy" json:"strategy"`
	Enabled       *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TitleSuffixes []string       `yaml:"title_suffixes,omitempty" json:"titleSuffixes,omitempty"`
	TrimSiteName  bool           `yaml:"trim_site_name,omitempty" json:"trimSiteName,omitempty"`
	MaxItems      int            `yaml:"max_items,omitempty" json:"maxItems,omitempty"`
	HTML          *HTMLSelectors `yaml:"html,omitempty" json:"html,omitempty"`
}

// HTMLSelectors は html 方式で使うCSSセレクタ
//
//	Item:  記事1件を囲む要素
//	Title: Item内のタイトル要素（空ならItem自身のテキスト）
//	Link:  Item内のリンク要素（空ならItem自身、href属性を読む）
type HTMLSelectors struct {
	Item  string `yaml:"item" json:"item"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Link  string `yaml:"link,omitempty" json:"link,omitempty"`
}

// IsEnabled はソースが有効かどうかを返す（未指定は有効）
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type sourceCatalog struct {
	Sources []Source `yaml:"sources"`
}

// DefaultSources は埋め込みカタログを返す
func DefaultSources() ([]Source, error) {
	return ParseSources(defaultSourcesYAML)
}

// LoadSources はYAMLファイルからソースカタログを読み込む。
// path が空の場合は埋め込みカタログを使う。
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "sourcesFile", Err: err}
	}
	return ParseSources(b)
}

// ParseSources はYAMLをパースして検証する
func ParseSources(b []byte) ([]Source, error) {
	var cat sourceCatalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return nil, &ConfigError{Field: "sources", Err: fmt.Errorf("parse yaml: %w", err)}
	}
	if len(cat.Sources) == 0 {
		return nil, configErrorf("sources", "no sources configured")
	}

	seen := map[string]bool{}
	for i := range cat.Sources {
		s := &cat.Sources[i]
		s.Name = strings.TrimSpace(s.Name)
		if s.Strategy == "" {
			s.Strategy = StrategyRSS
		}
		if err := validateSource(*s); err != nil {
			return nil, err
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return nil, configErrorf("sources", "duplicate source name %q", s.Name)
		}
		seen[key] = true
	}
	return cat.Sources, nil
}

func validateSource(s Source) error {
	if s.Name == "" {
		return configErrorf("sources", "source with url %q has no name", s.URL)
	}
	if s.Tier < 1 || s.Tier > 4 {
		return configErrorf("sources", "%s: tier must be 1-4, got %d", s.Name, s.Tier)
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configErrorf("sources", "%s: invalid url %q", s.Name, s.URL)
	}
	switch s.Strategy {
	case StrategyRSS:
	case StrategyHTML:
		if s.HTML == nil || s.HTML.Item == "" {
			return configErrorf("sources", "%s: html strategy requires html.item selector", s.Name)
		}
	default:
		return configErrorf("sources", "%s: unknown strategy %q", s.Name, s.Strategy)
	}
	return nil
}

// FilterSources は有効なソースのうち names に含まれるものを返す。
// names が空、または "all" を含む場合は有効なソースすべてを返す。
// 名前の比較は大文字小文字を区別しない。
func FilterSources(all []Source, names []string) ([]Source, error) {
	want := map[string]bool{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "all" {
			want = nil
			break
		}
		want[n] = true
	}

	out := make([]Source, 0, len(all))
	for _, s := range all {
		if !s.IsEnabled() {
			continue
		}
		if len(want) > 0 && !want[strings.ToLower(s.Name)] {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, configErrorf("sources", "no enabled sources match %v", names)
	}
	return out, nil
}
