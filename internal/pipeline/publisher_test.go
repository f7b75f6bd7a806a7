package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPublishers(t *testing.T) {
	cfg := &PublishConfig{
		PublishersRaw:    "chatwork, notion, email",
		ChatWorkToken:    "tok",
		ChatWorkRoomID:   "123",
		NotionToken:      "secret",
		NotionDatabaseID: "db",
		EmailFrom:        "bot@example.com",
		EmailPassword:    "pw",
		EmailTo:          "a@example.com",
	}

	pubs, err := BuildPublishers(cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, pubs, 3)
	assert.Equal(t, PublisherChatWork, pubs[0].Name())
	assert.Equal(t, PublisherNotion, pubs[1].Name())
	assert.Equal(t, PublisherEmail, pubs[2].Name())

	// 先頭がプライマリ
	cfg.PublishersRaw = "email,chatwork"
	pubs, err = BuildPublishers(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, PublisherEmail, pubs[0].Name())
}

func TestBuildPublishers_Errors(t *testing.T) {
	var cfgErr *ConfigError

	_, err := BuildPublishers(&PublishConfig{PublishersRaw: "slack"}, nil, nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "publishers", cfgErr.Field)

	_, err = BuildPublishers(&PublishConfig{PublishersRaw: ""}, nil, nil)
	require.ErrorAs(t, err, &cfgErr)

	_, err = BuildPublishers(&PublishConfig{PublishersRaw: "notion"}, nil, nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "notion", cfgErr.Field)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriterPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := WriterPublisher{W: &buf}
	assert.Equal(t, "stdout", p.Name())

	require.NoError(t, p.Publish(context.Background(), Digest{Text: "本文"}))
	assert.Equal(t, "本文\n", buf.String())

	err := WriterPublisher{W: failingWriter{}}.Publish(context.Background(), Digest{Text: "本文"})
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
}
