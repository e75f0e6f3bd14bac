package notify

import (
	"context"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/contabhub/onety/internal/config"
)

// EmailSender envia e-mails transacionais via SMTP.
type EmailSender struct {
	cfg config.SMTPConfig
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if s == nil || !s.cfg.Enabled() {
		return ErrChannelDisabled
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return &InvalidMessageError{Reason: "remetente: " + err.Error()}
	}
	if err := m.To(msg.To); err != nil {
		return &InvalidMessageError{Reason: "destinatário: " + err.Error()}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(10 * time.Second),
	}
	if s.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}
