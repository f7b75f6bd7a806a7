package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceCap(t *testing.T) {
	tests := map[int]int{0: 0, -1: 0, 1: 1, 3: 1, 4: 2, 8: 3, 9: 3, 10: 4}
	for n, want := range tests {
		assert.Equal(t, want, SourceCap(n), "n=%d", n)
	}
	assert.Equal(t, 3, SelectionConfig{MaxArticles: 8}.SourceCap())
}

func scored(source string, n, score, tier, seqBase int) []Article {
	out := make([]Article, n)
	for i := range out {
		out[i] = Article{
			Title:      fmt.Sprintf("%s記事%d", source, i),
			URL:        fmt.Sprintf("https://example.com/%s/%d", source, i),
			SourceName: source,
			SourceTier: tier,
			Score:      score,
			Seq:        seqBase + i,
		}
	}
	return out
}

func TestSelect_PerSourceCap(t *testing.T) {
	var in []Article
	in = append(in, scored("A", 12, 20, 4, 0)...)
	in = append(in, scored("B", 4, 10, 2, 100)...)
	in = append(in, scored("C", 4, 8, 3, 200)...)

	got := NewSelector(9).Select(in)
	require.Len(t, got, 9)

	counts := map[string]int{}
	for _, a := range got {
		counts[a.SourceName]++
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 3, "C": 3}, counts)

	// 採用はランク順
	assert.Equal(t, "A", got[0].SourceName)
	assert.Equal(t, 0, got[0].Seq)
	assert.Equal(t, "B", got[3].SourceName)
	assert.Equal(t, "C", got[8].SourceName)
}

func TestSelect_NoPadding(t *testing.T) {
	in := scored("A", 2, 5, 1, 0)
	got := NewSelector(8).Select(in)
	assert.Len(t, got, 2)

	// 1ソースしかない場合は上限で打ち切られる
	got = NewSelector(8).Select(scored("A", 10, 5, 1, 0))
	assert.Len(t, got, 3)

	assert.Empty(t, NewSelector(8).Select(nil))
}

func TestSelect_DefaultMax(t *testing.T) {
	var in []Article
	for _, src := range []string{"A", "B", "C", "D"} {
		in = append(in, scored(src, 5, 5, 1, len(in))...)
	}
	assert.Len(t, NewSelector(0).Select(in), DefaultMaxArticles)
}

func TestSelect_UniqueURL(t *testing.T) {
	in := []Article{
		{Title: "a", URL: "https://example.com/x", SourceName: "A", Score: 10, Seq: 0},
		{Title: "b", URL: "https://example.com/x", SourceName: "B", Score: 9, Seq: 1},
		{Title: "c", URL: "https://example.com/y", SourceName: "B", Score: 8, Seq: 2},
	}
	got := NewSelector(8).Select(in)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, "c", got[1].Title)
}

func TestSortByRank(t *testing.T) {
	in := []Article{
		{Title: "low", Score: 3, SourceTier: 4, Seq: 0},
		{Title: "tie-late", Score: 10, SourceTier: 2, Seq: 5},
		{Title: "tie-high-tier", Score: 10, SourceTier: 3, Seq: 9},
		{Title: "tie-early", Score: 10, SourceTier: 2, Seq: 1},
	}

	got := SortByRank(in)
	var titles []string
	for _, a := range got {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{"tie-high-tier", "tie-early", "tie-late", "low"}, titles)
	assert.Equal(t, "low", in[0].Title)
}
