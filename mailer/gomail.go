// Package mailer provides an SMTP implementation of the engine's reset
// mail boundary.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds connection and rendering settings for the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// ResetURLBase is prepended to the reset token when building the link in
	// the mail body, e.g. "https://shop.example.com/account/reset?token=".
	ResetURLBase string
}

// SMTPMailer sends password reset mail over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	config SMTPConfig
	tmpl   *template.Template
}

var resetTemplate = template.Must(template.New("reset").Parse(
	`<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for your account.
Click the link below within {{.TTL}} to choose a new password:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not request this, you can ignore this mail; your password
stays unchanged.</p>`))

// NewSMTPMailer returns a mailer connected lazily on first send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("smtp host and port required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		config: cfg,
		tmpl:   resetTemplate,
	}, nil
}

// SendPasswordReset delivers the reset link. The context is honored up
// front only; gomail does not support cancellation mid-dial.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, recipient, resetToken, displayName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := displayName
	if name == "" {
		name = "there"
	}

	var body bytes.Buffer
	err := m.tmpl.Execute(&body, map[string]string{
		"Name": name,
		"Link": m.config.ResetURLBase + resetToken,
		"TTL":  "15 minutes",
	})
	if err != nil {
		return fmt.Errorf("render reset mail: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", "Password Reset Request")
	msg.SetBody("text/html", body.String())

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}
