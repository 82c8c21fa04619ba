package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"github.com/example/otp-auth-service/config"
)

type deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Sender delivers verification and reset mails over SMTP.
type Sender struct {
	from    string
	appName string
	client  deliverer
}

func NewSender(cfg *config.Config) (*Sender, error) {
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUsername),
		mail.WithPassword(cfg.SMTPPassword),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Sender{from: cfg.MailFrom, appName: cfg.AppName, client: client}, nil
}

var (
	otpTemplate = template.Must(template.New("otp").Parse(`<div style="font-family:Arial,sans-serif;max-width:480px">
<p>Hi {{.Name}},</p>
<p>Your verification code is:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:6px">{{.Code}}</p>
<p>The code expires in 5 minutes. If you did not request it, ignore this email.</p>
</div>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<div style="font-family:Arial,sans-serif;max-width:480px">
<p>Hi {{.Name}},</p>
<p>Use this code to reset your password:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:6px">{{.Code}}</p>
<p>Then choose a new password here: <a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not ask for a reset, you can ignore this email.</p>
</div>`))
)

type mailData struct {
	Name string
	Code string
	Link string
}

func (s *Sender) SendOTP(ctx context.Context, to, name, code string) error {
	body, err := render(otpTemplate, mailData{Name: name, Code: code})
	if err != nil {
		return err
	}
	return s.send(ctx, to, s.appName+" verification code", body)
}

func (s *Sender) SendPasswordReset(ctx context.Context, to, name, link, code string) error {
	body, err := render(resetTemplate, mailData{Name: name, Code: code, Link: link})
	if err != nil {
		return err
	}
	return s.send(ctx, to, s.appName+" password reset", body)
}

func (s *Sender) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func render(t *template.Template, data mailData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", t.Name(), err)
	}
	return buf.String(), nil
}
