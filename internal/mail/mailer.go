package mail

import (
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/jordan-wright/email"
)

// Mailer delivers account lifecycle mail.
type Mailer interface {
	SendVerification(to, name, link string) error
	SendPasswordReset(to, name, link string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	addr     string
	authHost string
	username string
	password string
	from     string
	appName  string
}

// NewSMTPMailer builds a mailer for host:port with optional auth.
func NewSMTPMailer(host string, port int, username, password, from, appName string) *SMTPMailer {
	if appName == "" {
		appName = "FileVault"
	}
	return &SMTPMailer{
		addr:     fmt.Sprintf("%s:%d", host, port),
		authHost: host,
		username: username,
		password: password,
		from:     from,
		appName:  appName,
	}
}

func (m *SMTPMailer) SendVerification(to, name, link string) error {
	subject := fmt.Sprintf("%s: verify your email", m.appName)
	text := fmt.Sprintf(
		"Hi %s,\n\nConfirm your email address to activate your account:\n\n%s\n\nThe link expires in one hour. If you did not sign up, ignore this message.\n",
		displayName(name), link,
	)
	return m.send(to, subject, text)
}

func (m *SMTPMailer) SendPasswordReset(to, name, link string) error {
	subject := fmt.Sprintf("%s: reset your password", m.appName)
	text := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Set a new password here:\n\n%s\n\nThe link expires in one hour and can be used once. If this was not you, ignore this message.\n",
		displayName(name), link,
	)
	return m.send(to, subject, text)
}

func (m *SMTPMailer) send(to, subject, text string) error {
	e := &email.Email{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Text:    []byte(text),
		Headers: textproto.MIMEHeader{},
	}
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.authHost)
	}
	if err := e.Send(m.addr, auth); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return name
}
