// Package mailer отправляет письма подтверждения e-mail и сброса пароля.
// Сервис зависит от интерфейса Sender; в проде используется Resend,
// без API-ключа письма только пишутся в лог (локальная разработка).
package mailer

//go:generate mockgen -source=mailer.go -destination=../../mocks/mock_mailer.go -package=mocks

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/pribylovaa/tweeter-auth/internal/config"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/log"
	"github.com/pribylovaa/tweeter-auth/internal/pkg/redact"
)

// Sender — контракт отправки транзакционных писем.
// token — открытое значение одноразового токена (в базе хранится его хэш).
type Sender interface {
	SendVerification(ctx context.Context, toEmail, username, token string) error
	SendPasswordReset(ctx context.Context, toEmail, username, token string) error
}

// New выбирает реализацию по конфигурации.
func New(cfg config.MailConfig) Sender {
	if cfg.ResendAPIKey == "" {
		return NewLogSender(cfg.FrontendURL)
	}

	return NewResendSender(cfg.ResendAPIKey, cfg.From, cfg.FrontendURL)
}

// VerificationLink — ссылка на страницу подтверждения e-mail во фронтенде.
func VerificationLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/verify-email?token=" + url.QueryEscape(token)
}

// ResetLink — ссылка на страницу сброса пароля во фронтенде.
func ResetLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
}

type resendSender struct {
	client      *resend.Client
	from        string
	frontendURL string
}

// NewResendSender создаёт Sender поверх Resend API.
func NewResendSender(apiKey, from, frontendURL string) Sender {
	return &resendSender{
		client:      resend.NewClient(apiKey),
		from:        from,
		frontendURL: frontendURL,
	}
}

func (s *resendSender) SendVerification(ctx context.Context, toEmail, username, token string) error {
	const op = "mailer.resend.SendVerification"

	link := VerificationLink(s.frontendURL, token)
	body := renderMessage(username,
		"Thanks for signing up. Please confirm your e-mail address to activate your account.",
		"Verify e-mail", link,
		"The link expires in 24 hours.")

	if err := s.send(ctx, toEmail, "Verify your e-mail address", body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *resendSender) SendPasswordReset(ctx context.Context, toEmail, username, token string) error {
	const op = "mailer.resend.SendPasswordReset"

	link := ResetLink(s.frontendURL, token)
	body := renderMessage(username,
		"We received a request to reset your password.",
		"Reset password", link,
		"The link expires in 1 hour. If you did not request a reset, ignore this e-mail.")

	if err := s.send(ctx, toEmail, "Reset your password", body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *resendSender) send(ctx context.Context, to, subject, body string) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	})

	return err
}

func renderMessage(username, intro, action, link, footer string) string {
	link = html.EscapeString(link)
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family:Arial,Helvetica,sans-serif;">
  <p>Hi %s,</p>
  <p>%s</p>
  <p><a href="%s">%s</a></p>
  <p style="color:#64748b;font-size:13px;">%s</p>
  <p style="color:#64748b;font-size:13px;word-break:break-all;">%s</p>
</body>
</html>`, html.EscapeString(username), intro, link, action, footer, link)
}

// logSender пишет письма в лог вместо отправки. Токен в лог попадает
// только в маскированном виде.
type logSender struct {
	frontendURL string
}

// NewLogSender создаёт Sender, который только логирует факт отправки.
func NewLogSender(frontendURL string) Sender {
	return &logSender{frontendURL: frontendURL}
}

func (s *logSender) SendVerification(ctx context.Context, toEmail, _, token string) error {
	log.From(ctx).Info("mail_verification_skipped",
		slog.String("to", redact.Email(toEmail)),
		slog.String("page", strings.TrimRight(s.frontendURL, "/")+"/verify-email"),
		slog.String("token", redact.Token(token)),
	)

	return nil
}

func (s *logSender) SendPasswordReset(ctx context.Context, toEmail, _, token string) error {
	log.From(ctx).Info("mail_password_reset_skipped",
		slog.String("to", redact.Email(toEmail)),
		slog.String("page", strings.TrimRight(s.frontendURL, "/")+"/reset-password"),
		slog.String("token", redact.Token(token)),
	)

	return nil
}
