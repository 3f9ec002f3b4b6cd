package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	gomail "github.com/wneessen/go-mail"

	"scanhub/internal/config"
	"scanhub/internal/models"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages through a single SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	policy := gomail.NoTLS
	if cfg.TLS {
		policy = gomail.TLSMandatory
	}
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return s.client.DialAndSendWithContext(ctx, m)
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(`Hi {{.Name}},

Welcome to Scanhub. Confirm your email address by opening the link below:

{{.Link}}

The link expires in 24 hours.
`))

	resetTmpl = template.Must(template.New("reset").Parse(`Hi {{.Name}},

Someone asked to reset the password of your Scanhub account. If it was you, open the link below:

{{.Link}}

If you did not ask for this, ignore this email.
`))
)

// Mailer renders account emails whose links point back at the frontend.
type Mailer struct {
	sender      Sender
	frontendURL string
}

func NewMailer(sender Sender, frontendURL string) *Mailer {
	return &Mailer{sender: sender, frontendURL: strings.TrimSuffix(frontendURL, "/")}
}

func (m *Mailer) SendVerification(ctx context.Context, user models.User, token string) error {
	return m.send(ctx, user, "Verify your account", verificationTmpl, m.link("/verify-account", user.ID, token))
}

func (m *Mailer) SendPasswordReset(ctx context.Context, user models.User, token string) error {
	return m.send(ctx, user, "Reset your password", resetTmpl, m.link("/reset-password", user.ID, token))
}

func (m *Mailer) link(path, id, token string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("token", token)
	return m.frontendURL + path + "?" + q.Encode()
}

func (m *Mailer) send(ctx context.Context, user models.User, subject string, tmpl *template.Template, link string) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, struct{ Name, Link string }{user.Name, link}); err != nil {
		return fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return m.sender.Send(ctx, Message{To: user.Email, Subject: subject, Body: body.String()})
}
