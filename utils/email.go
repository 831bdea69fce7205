package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// SMTPMailer sends account mail through an SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Configured reports whether enough settings are present to send mail.
func (m *SMTPMailer) Configured() bool {
	return m != nil && m.Host != "" && m.Port != 0 && m.From != ""
}

// SendActivation sends the account activation mail.
func (m *SMTPMailer) SendActivation(ctx context.Context, to, link string) error {
	if !m.Configured() {
		return errors.New("smtp config missing")
	}

	e := email.NewEmail()
	e.From = m.From
	e.To = []string{to}
	e.Subject = "Account Activation"
	e.HTML = []byte(`
		<h2>Welcome</h2>
		<p>Please click the link below to activate your account:</p>
		<a href="` + link + `">Activate account</a>
	`)

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Password, m.Host)
	}
	tlsConfig := &tls.Config{ServerName: m.Host}

	done := make(chan error, 1)
	go func() {
		switch m.Port {
		case 465:
			done <- e.SendWithTLS(addr, auth, tlsConfig)
		case 587:
			done <- e.SendWithStartTLS(addr, auth, tlsConfig)
		default:
			done <- e.Send(addr, auth)
		}
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
