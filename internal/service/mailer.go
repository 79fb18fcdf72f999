package service

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/insuratrack/insuratrack/internal/config"
)

// Mailer sends transactional email over SMTP.
type Mailer struct {
	cfg config.MailConfig
}

// NewMailer returns a Mailer, or nil when no SMTP host is configured so
// callers can fall back to logging.
func NewMailer(cfg config.MailConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &Mailer{cfg: cfg}
}

// SendReset mails a password-reset link. The link embeds a token that
// expires after ten minutes.
func (m *Mailer) SendReset(to, name, resetURL string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Password reset request")
	msg.SetBody("text/html", fmt.Sprintf(
		`<p>Hi %s,</p>
<p>We received a request to reset your password. Click the link below to set a new one. The link expires in 10 minutes.</p>
<p><a href=%q>%s</a></p>
<p>If you did not request this, you can ignore this email.</p>`,
		name, resetURL, resetURL))

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	return d.DialAndSend(msg)
}
