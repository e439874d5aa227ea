package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/BradenHooton/folio-auth/internal/config"
	pkglogger "github.com/BradenHooton/folio-auth/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"gopkg.in/gomail.v2"
)

// EmailService sends the transactional emails of the auth flows
type EmailService interface {
	SendOTP(ctx context.Context, email, code string, validFor time.Duration) error
	SendPasswordChanged(ctx context.Context, email string, changedAt time.Time) error
	SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// Message is a rendered email ready for a Mailer
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a rendered message
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// TemplateEmailService renders the auth emails and hands them to a Mailer
type TemplateEmailService struct {
	mailer Mailer
	appURL string
}

func NewTemplateEmailService(mailer Mailer, appURL string) *TemplateEmailService {
	return &TemplateEmailService{mailer: mailer, appURL: strings.TrimRight(appURL, "/")}
}

// NewEmailService picks the delivery backend named by cfg.Provider
func NewEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (*TemplateEmailService, error) {
	var mailer Mailer

	switch cfg.Provider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		mailer = NewSESMailer(ses.NewFromConfig(awsCfg), cfg.FromAddress, logger)
	case "smtp":
		dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		mailer = NewSMTPMailer(dialer, cfg.FromAddress, logger)
	case "log", "":
		mailer = NewLogMailer(logger)
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	logger.Info("email delivery configured", slog.String("provider", cfg.Provider))
	return NewTemplateEmailService(mailer, cfg.AppURL), nil
}

func (s *TemplateEmailService) SendOTP(ctx context.Context, email, code string, validFor time.Duration) error {
	data := map[string]any{
		"Code":    code,
		"Minutes": int(validFor.Round(time.Minute).Minutes()),
	}
	msg, err := render(email, "Your password reset code", otpText, otpHTML, data)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

func (s *TemplateEmailService) SendPasswordChanged(ctx context.Context, email string, changedAt time.Time) error {
	data := map[string]any{
		"ChangedAt": changedAt.UTC().Format("Jan 2, 2006 15:04 MST"),
	}
	msg, err := render(email, "Your password was changed", passwordChangedText, passwordChangedHTML, data)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

func (s *TemplateEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	data := map[string]any{
		"Link":  s.appURL + "/verify-email/" + url.PathEscape(token),
		"Hours": int(time.Until(expiresAt).Round(time.Hour).Hours()),
	}
	msg, err := render(email, "Verify your email address", verificationText, verificationHTML, data)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

type templateExecutor interface {
	Execute(w io.Writer, data any) error
	Name() string
}

func render(to, subject string, text, html templateExecutor, data any) (Message, error) {
	var textBuf, htmlBuf bytes.Buffer
	if err := text.Execute(&textBuf, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", text.Name(), err)
	}
	if err := html.Execute(&htmlBuf, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", html.Name(), err)
	}
	return Message{To: to, Subject: subject, Text: textBuf.String(), HTML: htmlBuf.String()}, nil
}

// SESClient is the subset of *ses.Client used for delivery
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends mail through AWS SES
type SESMailer struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

func NewSESMailer(client SESClient, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML)},
				Text: &types.Content{Data: aws.String(msg.Text)},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}

	m.logger.Info("email sent",
		pkglogger.EmailAttr(msg.To),
		slog.String("subject", msg.Subject),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// SMTPDialer is satisfied by *gomail.Dialer
type SMTPDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	dialer      SMTPDialer
	fromAddress string
	logger      *slog.Logger
}

func NewSMTPMailer(dialer SMTPDialer, fromAddress string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{dialer: dialer, fromAddress: fromAddress, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.fromAddress)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)
	gm.AddAlternative("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}

	m.logger.Info("email sent", pkglogger.EmailAttr(msg.To), slog.String("subject", msg.Subject))
	return nil
}

// LogMailer writes messages to the log instead of delivering them. The body
// is logged so codes and links are usable in local development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email (log provider)",
		pkglogger.EmailAttr(msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Text),
	)
	return nil
}

var (
	otpText = texttemplate.Must(texttemplate.New("otp").Parse(
		`Your password reset code is {{.Code}}

It expires in {{.Minutes}} minutes. If you did not request a password reset, you can ignore this email.
`))
	otpHTML = template.Must(template.New("otp").Parse(
		`<p>Your password reset code is</p>
<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>It expires in {{.Minutes}} minutes. If you did not request a password reset, you can ignore this email.</p>
`))

	passwordChangedText = texttemplate.Must(texttemplate.New("password_changed").Parse(
		`The password for your account was changed on {{.ChangedAt}}.

All existing sessions have been signed out. If this was not you, reset your password immediately.
`))
	passwordChangedHTML = template.Must(template.New("password_changed").Parse(
		`<p>The password for your account was changed on {{.ChangedAt}}.</p>
<p>All existing sessions have been signed out. If this was not you, reset your password immediately.</p>
`))

	verificationText = texttemplate.Must(texttemplate.New("verification").Parse(
		`Welcome! Please verify your email address by opening the link below:

{{.Link}}

This link expires in {{.Hours}} hours. If you did not create an account, you can ignore this email.
`))
	verificationHTML = template.Must(template.New("verification").Parse(
		`<p>Welcome! Please verify your email address:</p>
<p><a href="{{.Link}}">Verify email address</a></p>
<p>This link expires in {{.Hours}} hours. If you did not create an account, you can ignore this email.</p>
`))
)
