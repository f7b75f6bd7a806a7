package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gorilla/feeds"
)

const (
	feedTitle       = "本日のAIニュース"
	feedDescription = "国内ニュースサイトから選んだAI関連記事のダイジェスト"
	feedLink        = "https://api.chatwork.com/"
	feedAuthor      = "ai-news-relay"
)

// BuildFeed は選定済み記事を gorilla/feeds の Feed にする
func BuildFeed(d Digest) *feeds.Feed {
	f := &feeds.Feed{
		Title:       fmt.Sprintf("%s - %s", feedTitle, d.GeneratedAt.Format(digestDateFmt)),
		Link:        &feeds.Link{Href: feedLink},
		Description: feedDescription,
		Author:      &feeds.Author{Name: feedAuthor},
		Created:     d.GeneratedAt,
		Id:          "tag:ai-news-relay," + d.GeneratedAt.Format("2006-01-02"),
	}
	for _, a := range d.Articles {
		created := d.GeneratedAt
		if a.PublishedAt != nil {
			created = *a.PublishedAt
		}
		f.Items = append(f.Items, &feeds.Item{
			Title:       a.Title,
			Link:        &feeds.Link{Href: a.URL},
			Description: fmt.Sprintf("%s (tier %d, score %d)", a.SourceName, a.SourceTier, a.Score),
			Author:      &feeds.Author{Name: a.SourceName},
			Created:     created,
			Id:          a.URL,
		})
	}
	return f
}

// WriteAtomFeed はダイジェストをAtom形式で書き出す
func WriteAtomFeed(w io.Writer, d Digest) error {
	return BuildFeed(d).WriteAtom(w)
}

// WriteJSON はダイジェストをJSONで書き出す
func WriteJSON(w io.Writer, d Digest) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// WriteFileAtomic は一時ファイルに書いてからリネームする
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
