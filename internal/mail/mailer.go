// Package mail delivers transactional email (verification links). The SMTP
// implementation is swapped for a log-only one when SMTP is not configured,
// so local development and tests never need a mail server.
package mail

import (
	"log"

	gomail "gopkg.in/gomail.v2"
)

type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// LogMailer writes outgoing mail to the server log instead of sending it.
type LogMailer struct{}

func (LogMailer) Send(to, subject, body string) error {
	log.Printf("[INFO] mail (not sent, SMTP unconfigured): to=%s subject=%q body=%q", to, subject, body)
	return nil
}
