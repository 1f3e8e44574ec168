package notify

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds the relay settings for SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is "mandatory", "opportunistic" or "none".
	TLS string
}

// SMTPTransport sends multipart text+HTML mail through an SMTP relay.
type SMTPTransport struct {
	client *gomail.Client
}

// NewSMTPTransport builds a client; no connection is made until Send.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &SMTPTransport{client: c}, nil
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send dials, sends and closes. The returned id is the Message-ID header.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	m, err := buildMail(msg)
	if err != nil {
		return "", err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

func buildMail(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetDate()
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

func tlsPolicy(s string) gomail.TLSPolicy {
	switch s {
	case "mandatory":
		return gomail.TLSMandatory
	case "none":
		return gomail.NoTLS
	default:
		return gomail.TLSOpportunistic
	}
}
