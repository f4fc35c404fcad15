package delivery

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"

	"github.com/unifi-insight/reporter/internal/model"
)

// EmailConfig is the SMTP channel configuration. Recipients go out as
// BCC so clients do not see each other.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	TLS        bool
}

// EmailDeliverer sends the report over SMTP with an HTML body and a
// plain-text alternative.
type EmailDeliverer struct {
	cfg    EmailConfig
	html   Renderer
	text   Renderer
	logger *zap.Logger

	// send is the wire seam; tests replace it.
	send func(m *mail.Message) error
}

// NewEmailDeliverer wires the SMTP dialer.
func NewEmailDeliverer(cfg EmailConfig, logger *zap.Logger) *EmailDeliverer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.TLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	} else {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: true}
	}
	return &EmailDeliverer{
		cfg:    cfg,
		html:   HTMLRenderer{},
		text:   TextRenderer{},
		logger: logger.Named("email"),
		send:   func(m *mail.Message) error { return d.DialAndSend(m) },
	}
}

func (e *EmailDeliverer) Name() string { return "email" }

// Deliver renders and sends the report. The SMTP dial honors ctx only
// coarsely: cancellation is checked before the dial.
func (e *EmailDeliverer) Deliver(ctx context.Context, r *model.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	textBody, err := e.text.Render(r)
	if err != nil {
		return err
	}
	htmlBody, err := e.html.Render(r)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("Bcc", e.cfg.Recipients...)
	m.SetHeader("Subject", Subject(r))
	m.SetBody("text/plain", string(textBody))
	m.AddAlternative("text/html", string(htmlBody))

	if err := e.send(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	e.logger.Info("email sent",
		zap.Int("recipients", len(e.cfg.Recipients)),
		zap.String("subject", Subject(r)))
	return nil
}
