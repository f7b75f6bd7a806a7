package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

// Notionデータベースのプロパティ名
const (
	notionPropTitle  = "Title"
	notionPropURL    = "URL"
	notionPropSource = "Source"
	notionPropTier   = "Tier"
	notionPropScore  = "Score"
	notionPropDigest = "Digest"
)

// notionPages は notionapi.PageService のうち使うメソッドだけ
type notionPages interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionPublisher は選定記事を1件ずつNotionデータベースにクリップする。
// 1件の失敗では止めず、最後に失敗件数をまとめて返す。
type NotionPublisher struct {
	pages notionPages
	dbID  notionapi.DatabaseID
	log   *zap.SugaredLogger
}

// NewNotionPublisher creates a publisher for an existing database.
func NewNotionPublisher(token, databaseID string, log *zap.SugaredLogger) (*NotionPublisher, error) {
	if token == "" {
		return nil, fmt.Errorf("NOTION_TOKEN is required")
	}
	if databaseID == "" {
		return nil, fmt.Errorf("NOTION_DATABASE_ID is required")
	}
	client := notionapi.NewClient(notionapi.Token(token))
	return newNotionPublisher(client.Page, notionapi.DatabaseID(databaseID), log), nil
}

func newNotionPublisher(pages notionPages, dbID notionapi.DatabaseID, log *zap.SugaredLogger) *NotionPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &NotionPublisher{pages: pages, dbID: dbID, log: log}
}

func (p *NotionPublisher) Name() string { return PublisherNotion }

// Publish clips every article of the digest. An empty digest is a no-op.
func (p *NotionPublisher) Publish(ctx context.Context, d Digest) error {
	failed := 0
	var lastErr error
	for _, a := range d.Articles {
		if err := p.clip(ctx, a, d.GeneratedAt); err != nil {
			failed++
			lastErr = err
			p.log.Warnf("Notionへのクリップに失敗: %s: %v", a.URL, err)
		}
	}
	if failed > 0 {
		return &PublishError{
			Publisher: p.Name(),
			Err:       fmt.Errorf("%d/%d articles failed: %w", failed, len(d.Articles), lastErr),
		}
	}
	if len(d.Articles) > 0 {
		p.log.Infof("Notionに %d件クリップしました", len(d.Articles))
	}
	return nil
}

func (p *NotionPublisher) clip(ctx context.Context, a Article, digestDate time.Time) error {
	date := notionapi.Date(digestDate)
	properties := notionapi.Properties{
		notionPropTitle: notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Text: &notionapi.Text{Content: a.Title}},
			},
		},
		notionPropURL: notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  a.URL,
		},
		notionPropSource: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: a.SourceName},
		},
		notionPropTier: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(a.SourceTier),
		},
		notionPropScore: notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: float64(a.Score),
		},
		notionPropDigest: notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &date},
		},
	}

	_, err := p.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: p.dbID,
		},
		Properties: properties,
	})
	if err != nil {
		return fmt.Errorf("failed to clip article: %w", err)
	}
	return nil
}
