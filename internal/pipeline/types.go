// =============================================================================
// types.go - データ構造定義
// =============================================================================
//
// このファイルはAIニュースリレー全体で使用するデータ構造（型）を定義します。
//
// 【このファイルで定義している型】
//   - RawArticle:      フィードから取得したままの記事
//   - Article:         正規化済みの記事（スコア付き）
//   - SimilarityGroup: 類似タイトルのグループ（重複排除中のみ使用）
//   - Digest:          配信用にレンダリングしたダイジェスト
//   - RunReport:       1回の実行結果のサマリー
//
// 【ライフサイクル】
//
//	Fetcher → RawArticle → Normalizer → Article → Deduplicator → Scorer
//	→ Selector → Formatter → Digest → Publisher
//
// =============================================================================
package pipeline

import "time"

// -----------------------------------------------------------------------------
// RawArticle - フィードから取得したままの記事
// -----------------------------------------------------------------------------
//
// Fetcherが生成し、Normalizerが消費したら破棄される。生成後は変更しない。
//
// 【フィールドの説明】
//
//	SourceName:  ソース名（例: "ITmedia AI+"）
//	SourceTier:  ソースのティア（1〜4、高いほど専門的）
//	Title:       フィードに書かれていたタイトル（未加工）
//	URL:         記事URL（未加工、トラッキングパラメータ付きの場合あり）
//	PublishedAt: 公開日時（取得できない場合はnil）
//	Order:       ソース内での出現順（0始まり）
type RawArticle struct {
	SourceName  string     `json:"source"`
	SourceTier  int        `json:"tier"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Order       int        `json:"order"`
}

// -----------------------------------------------------------------------------
// Article - 正規化済みの記事
// -----------------------------------------------------------------------------
//
// Normalizerが生成する。Scoreを書き換えるのはScorerだけで、それ以降は読み取り専用。
//
// 【TitleとKeyの違い】
//
//	Title: 表示用（大文字小文字を保持、サイト名サフィックス除去済み）
//	Key:   比較用（NFKC正規化・小文字化・空白と記号を除去）
//
// Seq は全ソースを通した発見順（設定ファイルのソース順 → フィード内の順）。
// 同点時のタイブレークはすべてSeqの小さい方を優先する。
type Article struct {
	Title       string     `json:"title"`
	Key         string     `json:"-"`
	URL         string     `json:"url"`
	SourceName  string     `json:"source"`
	SourceTier  int        `json:"tier"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Score       int        `json:"score"`
	Seq         int        `json:"seq"`
}

// SimilarityGroup はタイトル類似度で連結された記事のインデックス集合。
// 重複排除の途中でのみ使い、各グループから1件だけが残る。
type SimilarityGroup []int

// SourceCount はダイジェスト内のソース別記事数
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// -----------------------------------------------------------------------------
// Digest - 配信用ダイジェスト
// -----------------------------------------------------------------------------
//
// Formatterが生成し、Publisherが配信する。
// Empty が true の場合、Text は「記事なし」メッセージになっている。
type Digest struct {
	Text        string        `json:"text"`
	Articles    []Article     `json:"articles"`
	Sources     []SourceCount `json:"sources"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Empty       bool          `json:"empty"`
}

// RunReport は1回のパイプライン実行の結果をまとめる
type RunReport struct {
	RunID         string    `json:"runId"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	SourcesOK     []string  `json:"sourcesOk"`
	SourcesFailed []string  `json:"sourcesFailed"`
	Fetched       int       `json:"fetched"`
	Dropped       int       `json:"dropped"`
	Normalized    int       `json:"normalized"`
	Deduplicated  int       `json:"deduplicated"`
	Relevant      int       `json:"relevant"`
	Selected      int       `json:"selected"`
	Published     []string  `json:"published,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
}
