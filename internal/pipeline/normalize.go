// =============================================================================
// normalize.go - 記事の正規化
// =============================================================================
//
// RawArticle を Article に変換します。
//
// 【タイトルの処理】
//  1. HTMLタグ除去・エンティティのデコード
//  2. NFKC正規化（全角英数字 "ＡＩ" → "AI"、半角カナ → 全角カナ）
//  3. 前後の空白除去、連続空白を1つに
//  4. サイト名サフィックスの除去（"タイトル - ITmedia NEWS" → "タイトル"）
//  5. 比較用キー（小文字化・空白/記号除去）を別途生成
//
// 【URLの処理】
//
//	トラッキングパラメータ（utm_* など）とフラグメントを除去し、
//	残ったクエリをソートして正規形にする。
//
// タイトルまたはURLが使えない記事は ParseError として落とす（エラーにはしない）。
//
// =============================================================================
package pipeline

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	reHTMLTags   = regexp.MustCompile(`<[^>]*>`)
	reScriptTags = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
)

// titleSeparators はタイトルとサイト名の区切り（NFKC後の形）
var titleSeparators = []string{" - ", " | ", "|", " – ", " — ", " : ", ":", " / "}

// maxSiteNameRunes は TrimSiteName で除去する媒体名の最大長
const maxSiteNameRunes = 30

// futureSkew はフィードの日時ずれ（JSTをUTCと誤記するなど）の許容幅
const futureSkew = 9 * time.Hour

// trackingParams は除去するクエリパラメータ（utm_ で始まるものも除去）
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "yclid": true, "dclid": true, "msclkid": true,
	"mc_cid": true, "mc_eid": true, "_ga": true, "igshid": true, "ref_src": true,
}

// Normalizer は RawArticle → Article の変換を行う
type Normalizer struct {
	suffixes map[string][]string // ソース名 → 除去するサフィックス
	trimSite map[string]bool
}

// NewNormalizer はソース設定からサフィックス表を作る
func NewNormalizer(sources []Source) *Normalizer {
	n := &Normalizer{
		suffixes: make(map[string][]string, len(sources)),
		trimSite: make(map[string]bool),
	}
	for _, s := range sources {
		list := make([]string, 0, len(s.TitleSuffixes)+1)
		for _, suf := range append([]string{s.Name}, s.TitleSuffixes...) {
			suf = normalizeWhitespace(norm.NFKC.String(suf))
			if suf != "" {
				list = append(list, suf)
			}
		}
		n.suffixes[s.Name] = list
		if s.TrimSiteName {
			n.trimSite[s.Name] = true
		}
	}
	return n
}

// Normalize は RawArticle を正規化する。
// 使えない記事は落とし、理由を ParseError として返す。
// 戻り値の Seq は入力順（= 発見順）の通し番号。
func (n *Normalizer) Normalize(raws []RawArticle) ([]Article, []*ParseError) {
	out := make([]Article, 0, len(raws))
	var dropped []*ParseError

	for i, r := range raws {
		a, perr := n.normalizeOne(r)
		if perr != nil {
			dropped = append(dropped, perr)
			continue
		}
		a.Seq = i
		out = append(out, a)
	}
	return out, dropped
}

func (n *Normalizer) normalizeOne(r RawArticle) (Article, *ParseError) {
	drop := func(reason string) (Article, *ParseError) {
		return Article{}, &ParseError{Source: r.SourceName, Title: r.Title, URL: r.URL, Reason: reason}
	}

	title := n.DisplayTitle(r.SourceName, r.Title)
	if title == "" {
		return drop("empty title")
	}
	key := ComparisonKey(title)
	if key == "" {
		return drop("title has no comparable characters")
	}

	u, err := CanonicalURL(r.URL)
	if err != nil {
		return drop(err.Error())
	}

	return Article{
		Title:       title,
		Key:         key,
		URL:         u,
		SourceName:  r.SourceName,
		SourceTier:  r.SourceTier,
		PublishedAt: r.PublishedAt,
	}, nil
}

// DisplayTitle は表示用タイトルを返す
func (n *Normalizer) DisplayTitle(source, raw string) string {
	t := cleanHTMLTags(raw)
	t = norm.NFKC.String(t)
	t = normalizeWhitespace(t)

	for _, suf := range n.suffixes[source] {
		t = trimSuffix(t, suf)
	}
	if n.trimSite[source] {
		t = trimTrailingSiteName(t)
	}
	return strings.TrimSpace(t)
}

// trimSuffix は "タイトル<区切り><suffix>" の末尾を除去する。
// タイトル全体がサフィックスだけになる場合は除去しない。
func trimSuffix(title, suffix string) string {
	for _, sep := range titleSeparators {
		tail := sep + suffix
		if len(title) > len(tail) && strings.HasSuffix(title, tail) {
			return strings.TrimSpace(strings.TrimSuffix(title, tail))
		}
	}
	// 【ITmedia NEWS】のような括弧書き
	for _, pair := range [][2]string{{"(", ")"}, {"【", "】"}, {"[", "]"}} {
		tail := pair[0] + suffix + pair[1]
		if len(title) > len(tail) && strings.HasSuffix(title, tail) {
			return strings.TrimSpace(strings.TrimSuffix(title, tail))
		}
	}
	return title
}

// trimTrailingSiteName は " - 媒体名" 形式の末尾を除去する（アグリゲータ用）
func trimTrailingSiteName(title string) string {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title
	}
	site := title[idx+len(" - "):]
	if site == "" || utf8.RuneCountInString(site) > maxSiteNameRunes {
		return title
	}
	return strings.TrimSpace(title[:idx])
}

// ComparisonKey は比較用キーを返す。
// 小文字化し、空白・句読点・記号を除去する（"OpenAI、新モデル" → "openai新モデル"）。
func ComparisonKey(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CanonicalURL はトラッキングパラメータとフラグメントを除去した正規URLを返す
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	u.RawQuery = stripTrackingParams(u.RawQuery)
	u.ForceQuery = false
	return u.String(), nil
}

// stripTrackingParams はトラッキング用のペアだけを取り除き、残りは元の
// バイト列のままキー順に並べる（url.ParseQuery が拒否する ; や壊れた % も残す）
func stripTrackingParams(raw string) string {
	if raw == "" {
		return ""
	}
	var kept []string
	for _, seg := range strings.Split(raw, "&") {
		if seg == "" {
			continue
		}
		key, _, _ := strings.Cut(seg, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			continue
		}
		kept = append(kept, seg)
	}
	sort.Strings(kept)
	return strings.Join(kept, "&")
}

// FilterByAge は hours 時間より古い記事を除外する
//
//   - hours <= 0 の場合はフィルタしない
//   - 日付が不明な記事は残す
//   - 未来日付は futureSkew までは許容する
func FilterByAge(articles []Article, hours int, now time.Time) []Article {
	if hours <= 0 {
		return articles
	}
	cutoff := now.Add(-time.Duration(hours) * time.Hour)
	limit := now.Add(futureSkew)

	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if a.PublishedAt == nil {
			out = append(out, a)
			continue
		}
		if a.PublishedAt.Before(cutoff) || a.PublishedAt.After(limit) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// normalizeWhitespace は連続する空白を単一スペースに正規化する
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanHTMLTags はHTMLタグを除去してエンティティをデコードする
func cleanHTMLTags(s string) string {
	s = reScriptTags.ReplaceAllString(s, "")
	s = reHTMLTags.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}
