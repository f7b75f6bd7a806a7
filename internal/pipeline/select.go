package pipeline

import "sort"

// SourceCap はダイジェストの記事数 n に対するソースあたりの上限 ⌈n/3⌉ を返す
func SourceCap(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 2) / 3
}

// Selector はスコア順に記事を選び、ソースごとの上限を適用する
type Selector struct {
	maxArticles int
}

// NewSelector はSelectorを生成する
func NewSelector(maxArticles int) *Selector {
	if maxArticles < 1 {
		maxArticles = DefaultMaxArticles
	}
	return &Selector{maxArticles: maxArticles}
}

// SortByRank はスコア降順・ティア降順・Seq昇順に並べたコピーを返す
func SortByRank(in []Article) []Article {
	out := append([]Article(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SourceTier != b.SourceTier {
			return a.SourceTier > b.SourceTier
		}
		return a.Seq < b.Seq
	})
	return out
}

// Select は最終リストを返す。
//
// ランク順に1回だけ走査し、そのソースの採用数が ⌈maxArticles/3⌉ 未満の記事だけを
// 採用する（後戻りはしない）。maxArticles 件に達したら終了し、足りない場合は
// あるだけ返す。同じURLは2回採用しない。
func (s *Selector) Select(in []Article) []Article {
	limit := SourceCap(s.maxArticles)
	perSource := map[string]int{}
	seenURL := map[string]bool{}

	out := make([]Article, 0, min(s.maxArticles, len(in)))
	for _, a := range SortByRank(in) {
		if len(out) >= s.maxArticles {
			break
		}
		if seenURL[a.URL] || perSource[a.SourceName] >= limit {
			continue
		}
		seenURL[a.URL] = true
		perSource[a.SourceName]++
		out = append(out, a)
	}
	return out
}
