// =============================================================================
// publisher.go - 配信先の共通インターフェース
// =============================================================================
//
// 【配信先】
//
//	chatwork - ChatWorkのルームに本文を投稿（デフォルト・プライマリ）
//	notion   - 選定記事をNotionデータベースにクリップ
//	email    - 本文をGmail SMTPでメール送信
//
// -publishers の先頭がプライマリ。プライマリの失敗だけが実行全体の失敗になり、
// それ以外の失敗はログに残して続行する。
//
// =============================================================================
package pipeline

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Publisher はダイジェストの配信先
type Publisher interface {
	Name() string
	Publish(ctx context.Context, d Digest) error
}

// BuildPublishers は設定から配信先を順番どおりに組み立てる。
// 設定は Validate 済みであること。
func BuildPublishers(cfg *PublishConfig, client *http.Client, log *zap.SugaredLogger) ([]Publisher, error) {
	var out []Publisher
	for _, name := range cfg.Publishers() {
		switch name {
		case PublisherChatWork:
			out = append(out, NewChatWorkPublisher(ChatWorkConfig{
				BaseURL: cfg.ChatWorkBaseURL,
				Token:   cfg.ChatWorkToken,
				RoomID:  cfg.ChatWorkRoomID,
			}, client))
		case PublisherNotion:
			p, err := NewNotionPublisher(cfg.NotionToken, cfg.NotionDatabaseID, log)
			if err != nil {
				return nil, &ConfigError{Field: "notion", Err: err}
			}
			out = append(out, p)
		case PublisherEmail:
			p, err := NewEmailPublisher(cfg.EmailFrom, cfg.EmailPassword, cfg.EmailTo, log)
			if err != nil {
				return nil, &ConfigError{Field: "email", Err: err}
			}
			out = append(out, p)
		default:
			return nil, configErrorf("publishers", "unknown publisher %q", name)
		}
	}
	if len(out) == 0 {
		return nil, configErrorf("publishers", "at least one publisher is required")
	}
	return out, nil
}

// WriterPublisher はダイジェスト本文を io.Writer に書く（ドライラン用）
type WriterPublisher struct {
	W io.Writer
}

func (p WriterPublisher) Name() string { return "stdout" }

func (p WriterPublisher) Publish(_ context.Context, d Digest) error {
	if _, err := p.W.Write([]byte(d.Text + "\n")); err != nil {
		return &PublishError{Publisher: p.Name(), Err: err}
	}
	return nil
}
