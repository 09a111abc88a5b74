package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/MrEthical07/passgate"
)

// ErrNoRecipient is returned for a notice without an e-mail address.
var ErrNoRecipient = errors.New("notify: notice has no recipient")

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Location renders expiry times. Defaults to UTC.
	Location *time.Location
}

// Mailer sends prepared messages. *gomail.Dialer implements it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP e-mails notices. Each call dials the relay, so wrap it in a
// Dispatcher. Notify returns when ctx ends even if the relay has not
// answered; that send finishes in the background.
type SMTP struct {
	mailer Mailer
	from   string
	loc    *time.Location
}

var _ passgate.Notifier = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) *SMTP {
	return NewSMTPWithMailer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.Location)
}

func NewSMTPWithMailer(mailer Mailer, from string, loc *time.Location) *SMTP {
	return &SMTP{mailer: mailer, from: from, loc: loc}
}

func (s *SMTP) Notify(ctx context.Context, n passgate.Notice) error {
	if n.Email == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := Render(n, s.loc)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	sent := make(chan error, 1)
	go func() { sent <- s.mailer.DialAndSend(m) }()

	select {
	case err := <-sent:
		if err != nil {
			return fmt.Errorf("notify: send %s e-mail: %w", n.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: send %s e-mail: %w", n.Kind, ctx.Err())
	}
}
