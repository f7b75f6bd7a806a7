package pipeline

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// 類似度アルゴリズム名
const (
	SimilarityLevenshtein = "levenshtein"
	SimilarityBigram      = "bigram"
)

// Similarity は比較用キー同士の類似度を [0,1] で返す。
// 重複排除はこのインターフェース越しに呼ぶので、記事数が増えたら
// バケット化や近似手法の実装に差し替えられる。
type Similarity interface {
	Ratio(a, b string) float64
}

// NewSimilarity は名前からSimilarityを返す
func NewSimilarity(name string) (Similarity, error) {
	switch name {
	case SimilarityLevenshtein, "":
		return LevenshteinSimilarity{}, nil
	case SimilarityBigram:
		return BigramSimilarity{}, nil
	default:
		return nil, configErrorf("similarity", "unknown strategy %q (want levenshtein|bigram)", name)
	}
}

// LevenshteinSimilarity は 1 - 編集距離/長い方の文字数（rune単位）
//
//	"openaiが新モデル発表" vs "openai新モデルを発表" → 距離2 / 13文字 → 0.846
type LevenshteinSimilarity struct{}

func (LevenshteinSimilarity) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return clamp01(1 - float64(d)/float64(longest))
}

// BigramSimilarity は文字バイグラムのDice係数
//
// 単語区切りのない日本語タイトルでも使える。
// 公式: 2 × |A ∩ B| / (|A| + |B|)（多重集合）
type BigramSimilarity struct{}

func (BigramSimilarity) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	ba, bb := bigrams(a), bigrams(b)
	total := 0
	for _, c := range ba {
		total += c
	}
	for _, c := range bb {
		total += c
	}
	if total == 0 {
		return 0
	}

	shared := 0
	for g, ca := range ba {
		if cb, ok := bb[g]; ok {
			shared += min(ca, cb)
		}
	}
	return clamp01(2 * float64(shared) / float64(total))
}

// bigrams は文字バイグラムの出現回数を返す。1文字の文字列はその文字自身を使う。
func bigrams(s string) map[string]int {
	rs := []rune(s)
	out := make(map[string]int, len(rs))
	if len(rs) == 1 {
		out[s] = 1
		return out
	}
	for i := 0; i+1 < len(rs); i++ {
		out[string(rs[i:i+2])]++
	}
	return out
}

// clamp01 は値を0〜1の範囲に制限する
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
