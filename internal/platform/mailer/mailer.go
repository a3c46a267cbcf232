package mailer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-mail/mail/v2"

	"nalanda-backend/internal/platform/config"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// New picks the SMTP mailer when a host is configured, the log mailer otherwise.
func New(cfg config.SMTPConfig) Mailer {
	if cfg.Host == "" {
		log.Println("[WARN] smtp.host is empty; mails are written to the log")
		return LogMailer{}
	}
	return NewSMTP(cfg)
}

type SMTPMailer struct {
	dialer *mail.Dialer
	from   string
}

func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 5 * time.Second
	return &SMTPMailer{dialer: d, from: cfg.From}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer は開発用。本文は出さない
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("[INFO] mail to=%s subject=%q (not sent, smtp disabled)", to, subject)
	return nil
}

type Message struct {
	To      string
	Subject string
	Body    string
}

// Recorder keeps sent messages in memory. Set Err to make Send fail.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, to, subject, htmlBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.msgs = append(r.msgs, Message{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Last returns the most recent message, or a zero Message.
func (r *Recorder) Last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return Message{}
	}
	return r.msgs[len(r.msgs)-1]
}
