package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/essay-correction-api/internal/models"
)

// Email providers.
const (
	EmailProviderConsole  = "console"
	EmailProviderSendgrid = "sendgrid"

	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// CorrectionEmail is the message announcing a corrected essay.
type CorrectionEmail struct {
	To             string
	ToName         string
	Subject        string
	Text           string
	HTML           string
	AttachmentName string
	Attachment     []byte
	Link           string
}

// EmailDispatcher delivers correction emails.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, email CorrectionEmail) error
}

// EmailSettings selects and configures the dispatcher.
type EmailSettings struct {
	Provider    string
	APIKey      string
	FromName    string
	FromAddress string
	Signature   string
	Host        string
}

// NewEmailDispatcher returns the Sendgrid dispatcher when configured, the log dispatcher otherwise.
func NewEmailDispatcher(settings EmailSettings, logger *zap.Logger) EmailDispatcher {
	if settings.Provider == EmailProviderSendgrid && settings.APIKey != "" {
		return NewSendgridDispatcher(settings, logger)
	}
	return NewLogDispatcher(logger)
}

// SendgridDispatcher sends correction emails through the Sendgrid v3 API.
type SendgridDispatcher struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgridDispatcher constructs a SendgridDispatcher.
func NewSendgridDispatcher(settings EmailSettings, logger *zap.Logger) *SendgridDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	host := settings.Host
	if host == "" {
		host = sendgridHost
	}
	return &SendgridDispatcher{
		key:    settings.APIKey,
		host:   host,
		from:   sgmail.NewEmail(settings.FromName, settings.FromAddress),
		logger: logger,
	}
}

// Dispatch posts the message and treats any 4xx/5xx answer as a failure.
func (d *SendgridDispatcher) Dispatch(ctx context.Context, email CorrectionEmail) error {
	req := sendgrid.GetRequest(d.key, sendgridEndpoint, d.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(d.prepare(email))

	var (
		status int
		body   string
	)
	done := make(chan error, 1)
	go func() {
		res, err := sendgrid.API(req)
		if err == nil {
			status, body = res.StatusCode, res.Body
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sendgrid send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sendgrid send: %w", err)
		}
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", status, strings.TrimSpace(body))
	}
	d.logger.Debug("correction email accepted", zap.String("to", email.To), zap.Int("status", status))
	return nil
}

func (d *SendgridDispatcher) prepare(email CorrectionEmail) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = email.Subject
	p.AddTos(sgmail.NewEmail(email.ToName, email.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(d.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", email.Text),
		sgmail.NewContent("text/html", email.HTML),
	)
	if len(email.Attachment) > 0 {
		a := sgmail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(email.Attachment))
		a.SetType("application/pdf")
		a.SetFilename(email.AttachmentName)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}

// LogDispatcher writes correction emails to the log instead of sending them.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the message.
func (d *LogDispatcher) Dispatch(ctx context.Context, email CorrectionEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Sugar().Infow("correction_email_logged",
		"to", email.To,
		"subject", email.Subject,
		"link", email.Link,
		"attachment", email.AttachmentName,
		"attachment_bytes", len(email.Attachment),
	)
	return nil
}

// buildCorrectionEmail composes the message for a corrected essay.
func buildCorrectionEmail(essay *models.Essay, recipient *models.User, link, signature string, pdf []byte) CorrectionEmail {
	theme := essay.Theme()
	if theme == "" {
		theme = string(essay.Type)
	}
	name := recipient.FullName
	if name == "" {
		name = recipient.Email
	}

	lines := []string{
		fmt.Sprintf("Olá %s,", name),
		"",
		"Sua redação foi corrigida.",
		fmt.Sprintf("Tema: %s", theme),
		fmt.Sprintf("Tipo: %s", essay.Type),
	}
	if essay.Bimester != nil {
		lines = append(lines, fmt.Sprintf("Bimestre: %d", *essay.Bimester))
	}
	if essay.AnnulmentActive {
		lines = append(lines, "Situação: redação anulada", "Motivos: "+strings.Join(essay.Annulment().Reasons, ", "))
	} else if essay.ScaledScore != nil {
		lines = append(lines, fmt.Sprintf("Nota: %.2f", *essay.ScaledScore))
	}
	lines = append(lines, "", "Baixar correção: "+link)
	if signature != "" {
		lines = append(lines, "", signature)
	}

	var body strings.Builder
	body.WriteString("<!DOCTYPE html>")
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Baixar correção: ") {
			fmt.Fprintf(&body, `<p><a href="%s">Baixar correção</a></p>`, html.EscapeString(link))
			continue
		}
		fmt.Fprintf(&body, "<p>%s</p>", html.EscapeString(line))
	}

	return CorrectionEmail{
		To:             recipient.Email,
		ToName:         recipient.FullName,
		Subject:        "Redação Corrigida - " + theme,
		Text:           strings.Join(lines, "\n"),
		HTML:           body.String(),
		AttachmentName: fmt.Sprintf("redacao-corrigida-%s.pdf", essay.ID),
		Attachment:     pdf,
		Link:           link,
	}
}
