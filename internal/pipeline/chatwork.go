package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// DefaultChatWorkBaseURL はChatWork APIのベースURL
const DefaultChatWorkBaseURL = "https://api.chatwork.com"

// ChatWorkConfig はChatWork投稿の設定
type ChatWorkConfig struct {
	BaseURL string
	Token   string
	RoomID  string
}

// ChatWorkPublisher はダイジェスト本文をChatWorkのルームに投稿する。
//
//	POST {base}/v2/rooms/{room_id}/messages
//	X-ChatWorkToken: {token}
//	body={本文}（application/x-www-form-urlencoded）
//
// 2xx以外は *PublishError。リトライはしない（二重投稿を避けるため）。
type ChatWorkPublisher struct {
	client *resty.Client
	roomID string
}

// NewChatWorkPublisher はPublisherを生成する。client が nil の場合は新しく作る。
func NewChatWorkPublisher(cfg ChatWorkConfig, client *http.Client) *ChatWorkPublisher {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultChatWorkBaseURL
	}
	var rc *resty.Client
	if client != nil {
		rc = resty.NewWithClient(client)
	} else {
		rc = resty.New().SetTimeout(DefaultTimeout)
	}
	rc.SetBaseURL(base).
		SetHeader("X-ChatWorkToken", cfg.Token).
		SetHeader("User-Agent", "ai-news-relay")
	return &ChatWorkPublisher{client: rc, roomID: cfg.RoomID}
}

func (p *ChatWorkPublisher) Name() string { return PublisherChatWork }

// Publish は d.Text を1件のメッセージとして投稿する
func (p *ChatWorkPublisher) Publish(ctx context.Context, d Digest) error {
	if strings.TrimSpace(d.Text) == "" {
		return &PublishError{Publisher: p.Name(), Err: errors.New("empty message body")}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("roomID", p.roomID).
		SetFormData(map[string]string{"body": d.Text}).
		Post("/v2/rooms/{roomID}/messages")
	if err != nil {
		return &PublishError{Publisher: p.Name(), Err: err}
	}
	if !resp.IsSuccess() {
		return &PublishError{
			Publisher:  p.Name(),
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("unexpected response: %s", truncateText(resp.String(), 200)),
		}
	}
	return nil
}

// truncateText はバイト数 maxLen 以内に切り詰める（rune境界を保つ）
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
