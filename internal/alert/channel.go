package alert

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"gopkg.in/gomail.v2"

	"logflow/pkg/config"
)

// Channel delivers one Alert to an external destination. Send failures are
// logged by the caller and do not affect CheckAlerts' result — delivery is
// best-effort, retried by the resend loop.
type Channel interface {
	Name() string
	Type() string
	Send(ctx context.Context, a *Alert) error
}

// NewChannel builds a Channel from a ChannelConfig's Type.
func NewChannel(cfg config.ChannelConfig) (Channel, error) {
	switch cfg.Type {
	case "email":
		return NewEmailChannel(cfg), nil
	case "webhook":
		return NewWebhookChannel(cfg), nil
	default:
		return nil, fmt.Errorf("unknown channel type %q", cfg.Type)
	}
}

// EmailChannel sends alert notifications over SMTP via gomail.
type EmailChannel struct {
	name string
	cfg  config.ChannelConfig
}

// NewEmailChannel returns an EmailChannel. cfg.Target is the recipient
// address; cfg.SMTPAddr is "host:port" of the relay.
func NewEmailChannel(cfg config.ChannelConfig) *EmailChannel {
	return &EmailChannel{name: cfg.Name, cfg: cfg}
}

func (c *EmailChannel) Name() string { return c.name }
func (c *EmailChannel) Type() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, a *Alert) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.SMTPFrom)
	m.SetHeader("To", c.cfg.Target)
	m.SetHeader("Subject", fmt.Sprintf("[%s] %s", a.Level, a.Name))
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nstatus: %s\nsource: %s\ncount: %d\n", a.Description, a.Status, a.Source, a.Count))

	addr, port := splitSMTPAddr(c.cfg.SMTPAddr)
	d := gomail.NewDialer(addr, port, c.cfg.SMTPUsername, c.cfg.SMTPPassword)
	return d.DialAndSend(m)
}

func splitSMTPAddr(addr string) (string, int) {
	host, port := "localhost", 587
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			if i > 0 {
				host = addr[:i]
			}
			fmt.Sscanf(addr[i+1:], "%d", &port)
			return host, port
		}
	}
	if addr != "" {
		host = addr
	}
	return host, port
}

// WebhookChannel POSTs the canonical Alert-JSON to a configured URL.
type WebhookChannel struct {
	name   string
	url    string
	client *resty.Client
}

// NewWebhookChannel returns a WebhookChannel posting to cfg.Target.
func NewWebhookChannel(cfg config.ChannelConfig) *WebhookChannel {
	return &WebhookChannel{
		name:   cfg.Name,
		url:    cfg.Target,
		client: resty.New(),
	}
}

func (c *WebhookChannel) Name() string { return c.name }
func (c *WebhookChannel) Type() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, a *Alert) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(a).
		Post(c.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s returned status %d", c.name, resp.StatusCode())
	}
	return nil
}
