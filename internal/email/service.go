// Package email sends document notifications via SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when no SMTP server is configured.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	logger zerolog.Logger
}

// NewService creates a new email service
func NewService(config Config, logger zerolog.Logger) *Service {
	if config.AppName == "" {
		config.AppName = "Docdiff"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger.With().Str("component", "email").Logger(),
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart message with a plain text alternative.
func (s *Service) SendHTMLEmail(ctx context.Context, to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return errors.New("email has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}
	boundary := "docdiff-" + uuid.NewString()

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	s.logger.Info().Int("recipients", len(to)).Str("subject", subject).Msg("email sent")
	return nil
}

// DocumentUpdate describes a change to notify readers about. DiffHTML is the
// compact diff; when HasDiff is false the message only links to the document.
type DocumentUpdate struct {
	Title      string
	URL        string
	Actor      string
	RevisionID string
	DiffHTML   string
	HasDiff    bool
}

type documentUpdateData struct {
	AppName string
	DocumentUpdate
	Diff template.HTML
}

// SendDocumentUpdated notifies recipients that a document changed.
func (s *Service) SendDocumentUpdated(ctx context.Context, to []string, update DocumentUpdate) error {
	data := documentUpdateData{
		AppName:        s.config.AppName,
		DocumentUpdate: update,
		Diff:           template.HTML(update.DiffHTML),
	}
	body, err := renderTemplate(documentUpdatedTmpl, data)
	if err != nil {
		return fmt.Errorf("render document update template: %w", err)
	}

	subject := fmt.Sprintf("%s updated %q", actorName(update.Actor), update.Title)
	text := fmt.Sprintf("%s updated %q.\r\n\r\nView the document: %s", actorName(update.Actor), update.Title, update.URL)
	return s.SendHTMLEmail(ctx, to, subject, text, body)
}

func actorName(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "Someone"
	}
	return actor
}

var documentUpdatedTmpl = template.Must(template.New("document-updated").Parse(documentUpdatedTemplate))

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentUpdatedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}} was updated</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .diff { border: 1px solid #eee; border-radius: 4px; padding: 0 16px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p>{{if .Actor}}{{.Actor}}{{else}}Someone{{end}} updated <strong>{{.Title}}</strong>.</p>
    {{if .HasDiff}}
    <div class="diff">
{{.Diff}}
    </div>
    {{end}}
    <p>
        <a href="{{.URL}}" class="button">View document</a>
    </p>

    <div class="footer">
        <p>You are receiving this because you follow changes to this document.{{if .RevisionID}} Revision {{.RevisionID}}.{{end}}</p>
    </div>
</body>
</html>`
