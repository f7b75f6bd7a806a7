package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testJST = time.FixedZone("JST", 9*60*60)
	testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) // JST 09:00
)

func testFormatter(width int) *Formatter {
	return &Formatter{TitleWidth: width, Location: testJST}
}

func TestFormat(t *testing.T) {
	articles := []Article{
		{Title: "OpenAIが新モデル発表", URL: "https://example.com/a", SourceName: "ITmedia AI+", SourceTier: 4, Score: 9},
		{Title: "生成AIの活用事例", URL: "https://example.com/b", SourceName: "AINOW", SourceTier: 4, Score: 12},
	}

	d := testFormatter(DefaultTitleWidth).Format(articles, testNow)
	require.False(t, d.Empty)
	assert.Equal(t, articles, d.Articles)
	assert.Equal(t, testJST, d.GeneratedAt.Location())

	want := strings.Join([]string{
		"[info][title]🤖 本日のAIニュース - 2025年06月01日[/title]",
		"📅 配信時刻: 09:00",
		"📊 記事数: 2件",
		"📡 情報源: 2サイト",
		"",
		separator,
		"",
		"📰 【記事 1】(ITmedia AI+)",
		"💡 OpenAIが新モデル発表",
		"🔗 https://example.com/a",
		"",
		"📰 【記事 2】(AINOW)",
		"💡 生成AIの活用事例",
		"🔗 https://example.com/b",
		"",
		separator,
		"📈 主要情報源:",
		"",
		"　• ITmedia AI+: 1件",
		"　• AINOW: 1件",
		"",
		separator,
		"✨ 最新のAI情報をお届けしました！",
		"📱 気になる記事があればリンクをクリックしてご覧ください。",
		"[/info]",
	}, "\n")
	assert.Equal(t, want, d.Text)

	// 同じ入力からは同じ本文
	assert.Equal(t, d.Text, testFormatter(DefaultTitleWidth).Format(articles, testNow).Text)
}

func TestFormat_SummaryTopFive(t *testing.T) {
	var articles []Article
	for i, src := range []string{"A", "B", "B", "C", "D", "E", "F", "G", ""} {
		articles = append(articles, Article{Title: "AI記事", URL: "https://example.com/" + string(rune('a'+i)), SourceName: src})
	}

	d := testFormatter(0).Format(articles, testNow)
	assert.Contains(t, d.Text, "📡 情報源: 8サイト")
	assert.Equal(t, 5, strings.Count(d.Text, "　• "))
	assert.Contains(t, d.Text, "　• B: 2件")
	assert.NotContains(t, d.Text, "　• G:")
	assert.Contains(t, d.Text, "📰 【記事 9】(不明)")
}

func TestFormat_Empty(t *testing.T) {
	d := testFormatter(DefaultTitleWidth).Format(nil, testNow)
	assert.True(t, d.Empty)
	assert.Equal(t, testFormatter(0).NoNewsMessage(testNow), d.Text)
	assert.True(t, strings.HasPrefix(d.Text, "[info][title]🤖 本日のAIニュース - 2025年06月01日[/title]\n📅 配信時刻: 09:00\n📊 記事数: 0件"))
	assert.Contains(t, d.Text, "🔍 申し訳ございません。本日は新しいAI関連記事が見つかりませんでした。")
	assert.True(t, strings.HasSuffix(d.Text, "[/info]"))
}

func TestFailureNotice(t *testing.T) {
	text := testFormatter(0).FailureNotice(testNow)
	assert.True(t, strings.HasPrefix(text, "[info][title]⚠️ システム通知 - 2025年06月01日[/title]\n📅 通知時刻: 09:00"))
	assert.Contains(t, text, "🚨 AIニュース配信でエラーが発生しました。")
	assert.True(t, strings.HasSuffix(text, "[/info]"))
}

func TestTruncateTitle(t *testing.T) {
	f := testFormatter(10)

	assert.Equal(t, "short", f.TruncateTitle("short"))
	assert.Equal(t, "あいうえお", f.TruncateTitle("あいうえお"))

	got := f.TruncateTitle("あいうえおかきくけこ")
	assert.True(t, strings.HasSuffix(got, truncationTail))
	assert.LessOrEqual(t, runewidth.StringWidth(got), 10)
	assert.True(t, strings.HasPrefix(got, "あいう"))

	assert.Equal(t, "あいうえおかきくけこ", testFormatter(0).TruncateTitle("あいうえおかきくけこ"))
}

func TestCountSources(t *testing.T) {
	got := CountSources([]Article{
		{SourceName: "A"}, {SourceName: "B"}, {SourceName: "C"}, {SourceName: "B"}, {SourceName: "C"},
	})
	assert.Equal(t, []SourceCount{{"B", 2}, {"C", 2}, {"A", 1}}, got)
	assert.Empty(t, CountSources(nil))
}

func TestWriteAtomFeed(t *testing.T) {
	published := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
	d := testFormatter(0).Format([]Article{
		{Title: "OpenAIが新モデル発表", URL: "https://example.com/a?id=1&b=2", SourceName: "AINOW", SourceTier: 4, Score: 9, PublishedAt: &published},
	}, testNow)

	var buf bytes.Buffer
	require.NoError(t, WriteAtomFeed(&buf, d))
	out := buf.String()
	assert.Contains(t, out, `<feed xmlns="http://www.w3.org/2005/Atom"`)
	assert.Contains(t, out, "本日のAIニュース - 2025年06月01日")
	assert.Contains(t, out, "OpenAIが新モデル発表")
	assert.Contains(t, out, `href="https://example.com/a?id=1&amp;b=2"`)
}

func TestWriteJSON(t *testing.T) {
	d := testFormatter(0).Format([]Article{
		{Title: "A&B <AI>", Key: "ab", URL: "https://example.com/a", SourceName: "AINOW", SourceTier: 4},
	}, testNow)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, d))
	assert.Contains(t, buf.String(), `"title": "A&B <AI>"`)
	assert.NotContains(t, buf.String(), `"ab"`)

	var decoded struct {
		Articles []map[string]any `json:"articles"`
		Sources  []SourceCount    `json:"sources"`
		Empty    bool             `json:"empty"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Articles, 1)
	assert.Equal(t, []SourceCount{{"AINOW", 1}}, decoded.Sources)
	assert.False(t, decoded.Empty)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "digest.json")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	// 書き込みに失敗した場合はファイルを残さない
	failPath := filepath.Join(t.TempDir(), "fail.json")
	err = WriteFileAtomic(failPath, func(io.Writer) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	_, statErr := os.Stat(failPath)
	assert.True(t, os.IsNotExist(statErr))
}
