// =============================================================================
// format.go - ChatWork向けダイジェスト本文の生成
// =============================================================================
//
// 【出力例】
//
//	[info][title]🤖 本日のAIニュース - 2025年06月01日[/title]
//	📅 配信時刻: 09:00
//	📊 記事数: 2件
//	📡 情報源: 2サイト
//
//	━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
//
//	📰 【記事 1】(ITmedia AI+)
//	💡 OpenAIが新モデル発表
//	🔗 https://example.com/a
//
//	...
//	━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
//	📈 主要情報源:
//
//	　• ITmedia AI+: 1件
//
//	━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
//	✨ 最新のAI情報をお届けしました！
//	📱 気になる記事があればリンクをクリックしてご覧ください。
//	[/info]
//
// Format は純粋関数（時刻は引数で受け取る）なので、同じ入力からは常に
// 同じ本文になる。
//
// =============================================================================
package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const (
	separator       = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	summaryTopN     = 5
	truncationTail  = "..."
	unknownSource   = "不明"
	digestDateFmt   = "2006年01月02日"
	digestClockFmt  = "15:04"
	digestTitleHead = "🤖 本日のAIニュース"
)

// JST はダイジェストの日付に使うタイムゾーン
func JST() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Formatter は選定済み記事からメッセージ本文を作る
type Formatter struct {
	TitleWidth int            // タイトルの最大表示幅（半角換算、0以下で無制限）
	Location   *time.Location // nil の場合は JST
}

// NewFormatter はFormatterを生成する
func NewFormatter(titleWidth int) *Formatter {
	return &Formatter{TitleWidth: titleWidth, Location: JST()}
}

func (f *Formatter) local(now time.Time) time.Time {
	if f.Location == nil {
		return now.In(JST())
	}
	return now.In(f.Location)
}

// Format はダイジェストを生成する。記事が0件の場合は Empty=true で
// Text は「記事なし」メッセージになる。
func (f *Formatter) Format(articles []Article, now time.Time) Digest {
	now = f.local(now)
	d := Digest{
		Articles:    articles,
		Sources:     CountSources(articles),
		GeneratedAt: now,
		Empty:       len(articles) == 0,
	}
	if d.Empty {
		d.Text = f.NoNewsMessage(now)
		return d
	}

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("[info][title]%s - %s[/title]", digestTitleHead, now.Format(digestDateFmt))
	line("📅 配信時刻: %s", now.Format(digestClockFmt))
	line("📊 記事数: %d件", len(articles))
	line("📡 情報源: %dサイト", len(d.Sources))
	line("")
	line(separator)
	line("")

	for i, a := range articles {
		line("📰 【記事 %d】(%s)", i+1, sourceLabel(a.SourceName))
		line("💡 %s", f.TruncateTitle(a.Title))
		line("🔗 %s", a.URL)
		line("")
	}

	line(separator)
	line("📈 主要情報源:")
	line("")
	for i, sc := range d.Sources {
		if i >= summaryTopN {
			break
		}
		line("　• %s: %d件", sc.Source, sc.Count)
	}
	line("")

	line(separator)
	line("✨ 最新のAI情報をお届けしました！")
	line("📱 気になる記事があればリンクをクリックしてご覧ください。")
	b.WriteString("[/info]")

	d.Text = b.String()
	return d
}

// NoNewsMessage は記事が1件も選ばれなかった日のメッセージを返す
func (f *Formatter) NoNewsMessage(now time.Time) string {
	now = f.local(now)
	return strings.Join([]string{
		fmt.Sprintf("[info][title]%s - %s[/title]", digestTitleHead, now.Format(digestDateFmt)),
		"📅 配信時刻: " + now.Format(digestClockFmt),
		"📊 記事数: 0件",
		"",
		separator,
		"",
		"🔍 申し訳ございません。本日は新しいAI関連記事が見つかりませんでした。",
		"📰 明日また最新情報をお届けいたします！",
		"",
		separator,
		"[/info]",
	}, "\n")
}

// FailureNotice は配信処理が失敗したときのシステム通知を返す。
// エラーの詳細はログにだけ出し、チャットには載せない。
func (f *Formatter) FailureNotice(now time.Time) string {
	now = f.local(now)
	return strings.Join([]string{
		"[info][title]⚠️ システム通知 - " + now.Format(digestDateFmt) + "[/title]",
		"📅 通知時刻: " + now.Format(digestClockFmt),
		"",
		separator,
		"",
		"🚨 AIニュース配信でエラーが発生しました。",
		"🔧 システム管理者にご確認ください。",
		"🕐 次回の配信をお待ちください。",
		"",
		separator,
		"[/info]",
	}, "\n")
}

// TruncateTitle はタイトルを表示幅 TitleWidth 以内に切り詰める（末尾 "..."）
func (f *Formatter) TruncateTitle(title string) string {
	if f.TitleWidth <= 0 || runewidth.StringWidth(title) <= f.TitleWidth {
		return title
	}
	return runewidth.Truncate(title, f.TitleWidth, truncationTail)
}

// CountSources はソースごとの記事数を、件数の多い順（同数なら初出順）で返す
func CountSources(articles []Article) []SourceCount {
	index := map[string]int{}
	var out []SourceCount
	for _, a := range articles {
		name := sourceLabel(a.SourceName)
		pos, ok := index[name]
		if !ok {
			pos = len(out)
			index[name] = pos
			out = append(out, SourceCount{Source: name})
		}
		out[pos].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func sourceLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return unknownSource
	}
	return name
}
