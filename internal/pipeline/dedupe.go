// =============================================================================
// dedupe.go - 重複排除
// =============================================================================
//
// 2段階で重複記事を取り除きます。
//
// 【ステージ1: URL完全一致】
//
//	正規化済みURL（トラッキングパラメータ除去後）が同じ記事は1件だけ残す。
//	残す記事の選び方はステージ2と同じ（ティア優先、次に Seq）。
//
// 【ステージ2: タイトル類似】
//
//	残った記事の全ペア（O(n²)）について比較用キーの類似度を計算し、
//	しきい値以上のペアを同じグループに入れる（A~B, B~C なら {A,B,C}）。
//	グループごとに1件だけ残す:
//	  1. ティアが最も高い記事
//	  2. 同ティアなら Seq が最小（最も早く発見された）記事
//
// 出力は発見順を保持する。すでに重複排除済みのリストを再度通しても
// 何も削除されない（冪等）。
//
// =============================================================================
package pipeline

// Deduplicator は記事の重複を取り除く
type Deduplicator struct {
	sim       Similarity
	threshold float64
}

// NewDeduplicator はDeduplicatorを生成する
func NewDeduplicator(sim Similarity, threshold float64) *Deduplicator {
	if sim == nil {
		sim = LevenshteinSimilarity{}
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Deduplicator{sim: sim, threshold: threshold}
}

// DedupeResult は重複排除の結果
type DedupeResult struct {
	Articles          []Article
	URLDuplicates     int
	SimilarDuplicates int
	Groups            []SimilarityGroup // 2件以上からなるグループ（入力インデックスはステージ1後のもの）
}

// Dedupe は URL → タイトル類似 の順で重複を取り除く
func (d *Deduplicator) Dedupe(in []Article) DedupeResult {
	byURL := uniqueArticlesByURL(in)
	res := DedupeResult{URLDuplicates: len(in) - len(byURL)}

	groups := d.similarityGroups(byURL)
	keep := make([]bool, len(byURL))
	for _, g := range groups {
		keep[representative(byURL, g)] = true
		if len(g) > 1 {
			res.Groups = append(res.Groups, g)
			res.SimilarDuplicates += len(g) - 1
		}
	}

	res.Articles = make([]Article, 0, len(byURL)-res.SimilarDuplicates)
	for i, a := range byURL {
		if keep[i] {
			res.Articles = append(res.Articles, a)
		}
	}
	return res
}

// uniqueArticlesByURL はURLに基づいて重複を除去する。
// 同じURLの記事からは representative と同じ規則で1件を残し、出力は入力順。
func uniqueArticlesByURL(in []Article) []Article {
	best := make(map[string]int, len(in))
	for i, a := range in {
		if a.URL == "" {
			continue
		}
		j, ok := best[a.URL]
		if !ok || representative(in, SimilarityGroup{j, i}) == i {
			best[a.URL] = i
		}
	}

	out := make([]Article, 0, len(best))
	for i, a := range in {
		if a.URL != "" && best[a.URL] == i {
			out = append(out, a)
		}
	}
	return out
}

// similarityGroups は全ペアを比較し、連結成分をグループとして返す。
// グループは先頭要素の出現順に並び、グループ内も出現順。
func (d *Deduplicator) similarityGroups(as []Article) []SimilarityGroup {
	uf := newUnionFind(len(as))
	for i := 0; i < len(as); i++ {
		for j := i + 1; j < len(as); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if d.sim.Ratio(as[i].Key, as[j].Key) >= d.threshold {
				uf.union(i, j)
			}
		}
	}

	index := map[int]int{} // root → groups内の位置
	var groups []SimilarityGroup
	for i := range as {
		root := uf.find(i)
		pos, ok := index[root]
		if !ok {
			pos = len(groups)
			index[root] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], i)
	}
	return groups
}

// representative はグループから残す記事のインデックスを返す
func representative(as []Article, g SimilarityGroup) int {
	best := g[0]
	for _, i := range g[1:] {
		a, b := as[i], as[best]
		if a.SourceTier > b.SourceTier || (a.SourceTier == b.SourceTier && a.Seq < b.Seq) {
			best = i
		}
	}
	return best
}

// unionFind は経路圧縮付きの素集合データ構造
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// 小さい方を根にして、根がグループ内の最初の要素になるようにする
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
