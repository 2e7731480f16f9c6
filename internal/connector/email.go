// internal/connector/email.go
package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// EmailSettings is the SMTP section of the email channel config.
type EmailSettings struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"fromEmail"`
	FromName  string `json:"fromName"`
	// Secure selects implicit TLS (port 465). Otherwise STARTTLS is used when offered.
	Secure bool `json:"secure"`
}

// Mail is one outgoing HTML message.
type Mail struct {
	From      mail.Address
	To        string
	Subject   string
	HTML      string
	MessageID string
}

// Mailer delivers a Mail over some transport.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// EmailConnector sends HTML email over SMTP.
type EmailConnector struct {
	base
	settings EmailSettings

	// NewMailer builds the transport from the active settings. Defaults to SMTP.
	NewMailer func(EmailSettings) Mailer
	mailer    Mailer
}

func NewEmailConnector(d Deps) *EmailConnector {
	c := &EmailConnector{NewMailer: func(s EmailSettings) Mailer { return &smtpMailer{settings: s} }}
	c.init(model.ChannelEmail, d)
	return c
}

func (c *EmailConnector) Initialize(ctx context.Context) error {
	return c.ensure(ctx, func(cfg *model.ChannelConfig) error {
		var s EmailSettings
		if err := cfg.Decode(&s); err != nil {
			return err
		}
		if s.Host == "" || s.FromEmail == "" {
			return errors.New("host and fromEmail are required")
		}
		if s.Port == 0 {
			s.Port = 587
			if s.Secure {
				s.Port = 465
			}
		}
		c.settings = s
		c.mailer = c.NewMailer(s)
		return nil
	})
}

func (c *EmailConnector) Send(ctx context.Context, msg string, r *model.Recipient, opts SendOptions) model.DeliveryResult {
	rec := sendRecord{recipient: r, opts: opts}
	if r != nil {
		rec.platformID = r.Email
	}
	if err := c.Initialize(ctx); err != nil {
		return c.fail(ctx, rec, err)
	}
	rec.sender = c.resolveSender(ctx, opts, senderInfo{Name: c.settings.FromName, PlatformID: c.settings.FromEmail})
	if r == nil || r.Email == "" {
		return c.fail(ctx, rec, errors.New("recipient email is required"))
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return c.fail(ctx, rec, fmt.Errorf("invalid recipient email: %w", err))
	}

	from := rec.sender.PlatformID
	if from == "" || !strings.Contains(from, "@") {
		from = c.settings.FromEmail
	}
	subject := opts.Subject
	if subject == "" {
		subject = "A message from " + rec.sender.Name
	}
	m := Mail{
		From:      mail.Address{Name: rec.sender.Name, Address: from},
		To:        r.Email,
		Subject:   subject,
		HTML:      msg,
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from)),
	}
	if err := c.mailer.Send(ctx, m); err != nil {
		return c.fail(ctx, rec, err)
	}
	return c.succeed(ctx, rec, m.MessageID)
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

type smtpMailer struct {
	settings EmailSettings
}

func (m *smtpMailer) Send(ctx context.Context, msg Mail) error {
	s := m.settings
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if s.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if !s.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
				return err
			}
		}
	}
	if s.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return err
		}
	}
	if err := client.Mail(msg.From.Address); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		return err
	}
	return w.Close()
}

func buildMIME(m Mail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From.String())
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", m.MessageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.HTML)
	return []byte(b.String())
}

var _ Connector = (*EmailConnector)(nil)
