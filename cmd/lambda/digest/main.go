// =============================================================================
// Lambda: ai-news-digest
// =============================================================================
//
// EventBridgeのスケジュール（毎朝9時JSTなど）で起動し、AIニュースの
// ダイジェストをChatWorkに投稿するLambda関数
//
// 環境変数:
//   - CHATWORK_TOKEN:     ChatWork APIトークン (必須)
//   - CHATWORK_ROOM_ID:   投稿先ルームID (必須)
//   - SOURCES:            取得するソース (デフォルト: all)
//   - PER_SOURCE:         ソースあたりの記事数 (デフォルト: 50)
//   - MAX_ARTICLES:       ダイジェストの記事数 (デフォルト: 8)
//   - HOURS_BACK:         何時間以内の記事を対象にするか (デフォルト: 48、0=フィルタなし)
//   - PUBLISHERS:         配信先 (デフォルト: chatwork)
//   - NOTION_TOKEN / NOTION_DATABASE_ID:         PUBLISHERSにnotionを含む場合
//   - EMAIL_FROM / EMAIL_PASSWORD / EMAIL_TO:    PUBLISHERSにemailを含む場合
//
// 実行の失敗は StatusCode で返し、error は返さない（非同期起動を再試行させない）。
//
// =============================================================================
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"ai-news-relay/internal/pipeline"
)

// Response はLambdaレスポンス
type Response struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	RunID      string   `json:"runId,omitempty"`
	Fetched    int      `json:"fetched"`
	Selected   int      `json:"selected"`
	Published  []string `json:"published,omitempty"`
}

// Handler はLambdaのメインハンドラー
func Handler(ctx context.Context, event interface{}) (Response, error) {
	cfg := pipeline.LoadEnvConfig()

	logger, err := pipeline.NewLogger(cfg.Log.Level, false)
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Message: err.Error()}, err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	log.Infof("Starting ai-news-digest Lambda: sources=%s, maxArticles=%d, hoursBack=%d, publishers=%s",
		cfg.Input.SourcesRaw, cfg.Selection.MaxArticles, cfg.Input.HoursBack, cfg.Publish.PublishersRaw)

	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}

	runner, err := pipeline.NewRunner(cfg, log)
	if err != nil {
		log.Errorf("failed to build runner: %v", err)
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}

	report, err := runner.Run(ctx)
	return toResponse(log, report, err)
}

// toResponse は実行結果をLambdaレスポンスに変換する
func toResponse(log *zap.SugaredLogger, report *pipeline.RunReport, err error) (Response, error) {
	resp := Response{}
	if report != nil {
		resp.RunID = report.RunID
		resp.Fetched = report.Fetched
		resp.Selected = report.Selected
		resp.Published = report.Published
	}

	var pubErr *pipeline.PublishError
	switch {
	case err == nil:
		resp.StatusCode = http.StatusOK
		if resp.Selected == 0 {
			resp.Message = "No AI articles selected"
		} else {
			resp.Message = fmt.Sprintf("Successfully published %d articles", resp.Selected)
		}
		return resp, nil
	case errors.Is(err, pipeline.ErrNoSourcesReachable):
		resp.StatusCode = http.StatusBadGateway
	case errors.As(err, &pubErr) && pubErr.Unauthorized():
		resp.StatusCode = http.StatusUnauthorized
	default:
		resp.StatusCode = http.StatusInternalServerError
	}
	resp.Message = err.Error()
	log.Errorf("ai-news-digest failed: %v", err)
	return resp, nil
}

func main() {
	lambda.Start(Handler)
}
