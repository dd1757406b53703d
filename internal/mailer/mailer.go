// Package mailer delivers one-time verification codes over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/leicestercs/societybot/internal/config"
)

// Sender dispatches a one-time code to an email address. A returned error
// means nothing was (reliably) delivered and no challenge may be kept.
type Sender interface {
	Send(ctx context.Context, to, code string) error
}

// SMTPSender sends verification codes through an SMTP relay.
type SMTPSender struct {
	client   *mail.Client
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSMTPSender builds the SMTP client from config.
func NewSMTPSender(log *slog.Logger, cfg config.MailConfig) (*SMTPSender, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout.Std()),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{
		client:   client,
		from:     cfg.From,
		fromName: cfg.FromName,
		logger:   log.With(slog.String("service", "mailer")),
	}, nil
}

// Send emails the code. The message body matches the wording students have
// seen since the original deployment.
func (s *SMTPSender) Send(ctx context.Context, to, code string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject("Verification Email")
	msg.SetBodyString(mail.TypeTextPlain, Body(code))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("send failed", slog.String("to", to), slog.Any("error", err))
		return fmt.Errorf("send verification mail: %w", err)
	}
	s.logger.Info("verification code sent", slog.String("to", to))
	return nil
}

// Body renders the plain-text message for a code.
func Body(code string) string {
	return "Hi,\n\nBelow is your verification code, please enter it in the Discord field: " +
		code +
		"\n\nKind Regards,\nLeicester Computer Science Society."
}
