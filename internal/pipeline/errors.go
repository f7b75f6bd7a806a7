package pipeline

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSourcesReachable is returned by Runner.Run when every configured source
// failed or returned zero articles.
var ErrNoSourcesReachable = errors.New("no articles fetched from any source")

// SourceFetchError は1ソースの取得失敗（ネットワーク・ステータス・パース）。
// 回復可能: そのソースをスキップして続行する。
type SourceFetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// ParseError は1記事の正規化失敗。回復可能: その記事だけを落とす。
type ParseError struct {
	Source string
	Title  string
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("drop article from %s (title=%q url=%q): %s", e.Source, e.Title, e.URL, e.Reason)
}

// PublishError は配信失敗。プライマリPublisherで起きた場合は実行全体が失敗扱い。
type PublishError struct {
	Publisher  string
	StatusCode int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish via %s: HTTP %d: %v", e.Publisher, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("publish via %s: %v", e.Publisher, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Unauthorized reports whether the endpoint rejected our credentials.
func (e *PublishError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ConfigError は起動時の設定エラー（ソースなし、必須シークレットの欠落など）。
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}
