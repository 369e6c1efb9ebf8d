package main

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
)

// Mailer delivers one message to one recipient.
type Mailer interface {
	Send(to, subject, body string) error
}

// smtpMailer sends through a plain SMTP relay.
type smtpMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

// NewMailerFromEnv builds a Mailer from SMTP_* variables. Without SMTP_HOST
// deliveries are written to the log instead, so local environments work with
// no relay configured.
func NewMailerFromEnv() Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("[WARN] SMTP_HOST not set, emails will be logged only")
		return logMailer{}
	}

	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "no-reply@localhost"
	}

	return &smtpMailer{
		host: host,
		port: port,
		user: os.Getenv("SMTP_USER"),
		pass: os.Getenv("SMTP_PASSWORD"),
		from: from,
	}
}

func (m *smtpMailer) Send(to, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s\r\n",
		m.from, to, subject, body,
	))

	addr := m.host + ":" + m.port
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, msg)
}

// logMailer is the no-relay fallback.
type logMailer struct{}

func (logMailer) Send(to, subject, body string) error {
	log.Printf("[INFO] Email (log only) to=%s subject=%q", to, subject)
	return nil
}
