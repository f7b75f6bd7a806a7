// =============================================================================
// email.go - メール配信
// =============================================================================
//
// ダイジェストをGmail SMTPでプレーンテキストメールとして送信します。
//
// =============================================================================
// 【必要な環境変数】
// =============================================================================
//
//	EMAIL_FROM     - 送信元メールアドレス（Gmail）
//	EMAIL_PASSWORD - Gmailアプリパスワード（通常のパスワードではない）
//	EMAIL_TO       - 送信先メールアドレス（カンマ区切りで複数可）
//
// =============================================================================
// 【メール形式】
// =============================================================================
//
//	件名: 本日のAIニュース - 2025-06-01 (8件)
//
//	本日のAIニュース - 2025年06月01日
//	========================================
//	記事数: 8件 / 情報源: 5サイト
//	========================================
//
//	[1] OpenAIが新モデル発表
//	    ITmedia AI+
//	    https://...
//
// 記事が0件の日や障害通知は、ChatWork用の本文からタグを除いて送る。
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	gmailSMTPHost    = "smtp.gmail.com"
	gmailSMTPPort    = "587" // TLSポート
	emailMaxRetries  = 3
	emailBaseBackoff = 2 * time.Second
)

var reChatWorkTags = regexp.MustCompile(`\[/?(info|title)\]`)

// EmailConfig はメール送信の設定を保持する
type EmailConfig struct {
	From     string
	Password string
	To       []string
	SMTPHost string
	SMTPPort string
}

// sendMailFunc は smtp.SendMail と同じシグネチャ（テストで差し替える）
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailPublisher はダイジェストをメールで送る
type EmailPublisher struct {
	config   EmailConfig
	sendMail sendMailFunc
	backoff  time.Duration
	log      *zap.SugaredLogger
}

// NewEmailPublisher は新しいメール配信先を作成する。
// to はカンマ区切りで複数指定できる。
func NewEmailPublisher(from, password, to string, log *zap.SugaredLogger) (*EmailPublisher, error) {
	if from == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required")
	}
	if password == "" {
		return nil, fmt.Errorf("EMAIL_PASSWORD is required (use Gmail App Password)")
	}
	var toList []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			toList = append(toList, addr)
		}
	}
	if len(toList) == 0 {
		return nil, fmt.Errorf("EMAIL_TO is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &EmailPublisher{
		config: EmailConfig{
			From:     from,
			Password: password,
			To:       toList,
			SMTPHost: gmailSMTPHost,
			SMTPPort: gmailSMTPPort,
		},
		sendMail: smtp.SendMail,
		backoff:  emailBaseBackoff,
		log:      log,
	}, nil
}

func (p *EmailPublisher) Name() string { return PublisherEmail }

// Publish はダイジェストを1通のメールとして送る
func (p *EmailPublisher) Publish(ctx context.Context, d Digest) error {
	subject := emailSubject(d)
	msg := p.buildEmailMessage(subject, generateEmailBody(d))
	if err := p.sendWithRetry(ctx, msg); err != nil {
		return &PublishError{Publisher: p.Name(), Err: err}
	}
	p.log.Infof("メールを送信しました: %s", subject)
	return nil
}

func emailSubject(d Digest) string {
	date := d.GeneratedAt.Format("2006-01-02")
	if d.Empty {
		return fmt.Sprintf("本日のAIニュース - %s", date)
	}
	return fmt.Sprintf("本日のAIニュース - %s (%d件)", date, len(d.Articles))
}

// generateEmailBody はプレーンテキストのメール本文を生成する
func generateEmailBody(d Digest) string {
	if d.Empty || len(d.Articles) == 0 {
		return strings.TrimSpace(reChatWorkTags.ReplaceAllString(d.Text, "")) + "\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "本日のAIニュース - %s\n", d.GeneratedAt.Format(digestDateFmt))
	sb.WriteString("========================================\n")
	fmt.Fprintf(&sb, "記事数: %d件 / 情報源: %dサイト\n", len(d.Articles), len(d.Sources))
	sb.WriteString("========================================\n\n")

	for i, a := range d.Articles {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, a.Title)
		fmt.Fprintf(&sb, "    %s\n", sourceLabel(a.SourceName))
		fmt.Fprintf(&sb, "    %s\n\n", a.URL)
	}

	sb.WriteString("---\n")
	sb.WriteString("Generated by ai-news-relay\n")
	return sb.String()
}

// buildEmailMessage はRFC 5322準拠のメールメッセージを構築する。
// 件名は日本語を含むため MIME encoded-word にする。
func (p *EmailPublisher) buildEmailMessage(subject, body string) []byte {
	var msg strings.Builder

	fmt.Fprintf(&msg, "From: %s\r\n", p.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(p.config.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(msg.String())
}

// sendWithRetry は指数バックオフ（2秒→4秒）でリトライしながら送信する
func (p *EmailPublisher) sendWithRetry(ctx context.Context, msg []byte) error {
	var lastErr error

	for i := 0; i < emailMaxRetries; i++ {
		if i > 0 {
			wait := p.backoff << (i - 1)
			p.log.Infof("Retrying email send in %v...", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := p.send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		p.log.Warnf("Email send failed (attempt %d/%d): %v", i+1, emailMaxRetries, err)
	}

	return fmt.Errorf("failed to send email after %d retries: %w", emailMaxRetries, lastErr)
}

// send はPLAIN認証（TLS上）でSMTP送信する
func (p *EmailPublisher) send(msg []byte) error {
	auth := smtp.PlainAuth("", p.config.From, p.config.Password, p.config.SMTPHost)
	addr := p.config.SMTPHost + ":" + p.config.SMTPPort

	if err := p.sendMail(addr, auth, p.config.From, p.config.To, msg); err != nil {
		return fmt.Errorf("SMTP send failed: %w (check EMAIL_PASSWORD is a Gmail App Password)", err)
	}
	return nil
}
