// =============================================================================
// score.go - ルールベースのスコアリング
// =============================================================================
//
// 【スコア】
//
//	score = ティアボーナス + キーワードボーナス
//
//	ティアボーナス: tier 1→1, 2→2, 3→3, 4→4（専門的なソースほど重い）
//	キーワードボーナス: タイトル（比較用キー）に含まれるキーワードの重みの合計
//	                   部分一致・大文字小文字を区別しない・複数一致は加算・上限なし
//
// キーワード表は Scorer の生成時に渡す不変データ。同じタイトルとティアからは
// 常に同じスコアになる。
//
// 【関連性フィルタ】
//
//	RequireKeyword が有効な場合、関連語（DefaultRelevanceTerms）を1つも含まない
//	記事は選定対象から外す。AIと無関係なIT記事を落とすためのもの。
//
// =============================================================================
package pipeline

import "strings"

// Keyword はキーワードと重み
type Keyword struct {
	Term   string
	Weight int
}

// DefaultKeywords はデフォルトのキーワード表
func DefaultKeywords() []Keyword {
	return []Keyword{
		// 最重要（+8）
		{"ChatGPT", 8}, {"生成AI", 8}, {"LLM", 8},
		// 主要モデル・企業（+5）
		{"OpenAI", 5}, {"GPT", 5}, {"Claude", 5}, {"Gemini", 5},
		{"Copilot", 5}, {"Anthropic", 5},
		// 技術用語（+3）
		{"人工知能", 3}, {"機械学習", 3}, {"深層学習", 3}, {"ディープラーニング", 3},
		{"画像生成", 3}, {"自然言語処理", 3}, {"AIエージェント", 3}, {"大規模言語モデル", 3},
		// 一般（+1）
		{"AI", 1},
	}
}

// DefaultRelevanceTerms はAI関連記事とみなす語の一覧
func DefaultRelevanceTerms() []string {
	return []string{
		"ai", "人工知能", "機械学習", "マシンラーニング", "深層学習", "ディープラーニング",
		"chatgpt", "チャットgpt", "claude", "gemini", "copilot", "gpt", "llm", "生成ai",
		"画像生成", "自然言語処理", "nlp", "自動化", "ロボット", "アルゴリズム", "neural",
		"tensorflow", "pytorch", "openai", "anthropic",
		"自動運転", "音声認識", "顔認識", "予測モデル", "データサイエンス", "ビッグデータ",
	}
}

// Scorer は記事にスコアを付ける
type Scorer struct {
	keywords  []Keyword // 比較用キーに変換済み
	relevance []string
}

// NewScorer はキーワード表と関連語からScorerを作る。
// relevance が nil の場合は DefaultRelevanceTerms を使う。
func NewScorer(keywords []Keyword, relevance []string) *Scorer {
	s := &Scorer{}
	for _, kw := range keywords {
		key := ComparisonKey(kw.Term)
		if key == "" || kw.Weight == 0 {
			continue
		}
		s.keywords = append(s.keywords, Keyword{Term: key, Weight: kw.Weight})
	}
	if relevance == nil {
		relevance = DefaultRelevanceTerms()
	}
	for _, t := range relevance {
		if key := ComparisonKey(t); key != "" {
			s.relevance = append(s.relevance, key)
		}
	}
	return s
}

// TierBonus はティアボーナスを返す（範囲外は0）
func TierBonus(tier int) int {
	if tier < 1 || tier > 4 {
		return 0
	}
	return tier
}

// KeywordBonus はタイトルに含まれるキーワードの重みの合計を返す
func (s *Scorer) KeywordBonus(title string) int {
	key := ComparisonKey(title)
	bonus := 0
	for _, kw := range s.keywords {
		if strings.Contains(key, kw.Term) {
			bonus += kw.Weight
		}
	}
	return bonus
}

// ScoreOf はタイトルとティアからスコアを計算する
func (s *Scorer) ScoreOf(title string, tier int) int {
	return TierBonus(tier) + s.KeywordBonus(title)
}

// Score は記事のスコアを設定したコピーを返す（入力は変更しない）
func (s *Scorer) Score(in []Article) []Article {
	out := make([]Article, len(in))
	for i, a := range in {
		a.Score = s.ScoreOf(a.Title, a.SourceTier)
		out[i] = a
	}
	return out
}

// Relevant はタイトルが関連語を含むかどうかを返す
func (s *Scorer) Relevant(a Article) bool {
	key := a.Key
	if key == "" {
		key = ComparisonKey(a.Title)
	}
	for _, t := range s.relevance {
		if strings.Contains(key, t) {
			return true
		}
	}
	return false
}

// FilterRelevant は関連語を含む記事だけを返す
func (s *Scorer) FilterRelevant(in []Article) []Article {
	out := make([]Article, 0, len(in))
	for _, a := range in {
		if s.Relevant(a) {
			out = append(out, a)
		}
	}
	return out
}
