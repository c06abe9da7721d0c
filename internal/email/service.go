// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Message is one outgoing mail. HTML is optional.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Sender is the envelope address used for outgoing mail.
func (s *Service) Sender() (address, name string) {
	return s.config.From, s.config.FromName
}

func (s *Service) Send(msg Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("email has no recipients")
	}
	body, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.send(s.server, s.auth, s.config.From, msg.To, body); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *Service) build(msg Message) ([]byte, error) {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", headerSafe(s.config.FromName)), s.config.From)
	}
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = headerSafe(addr)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerSafe(msg.Subject)))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		fmt.Fprintf(&buf, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes(), nil
	}

	boundary, err := newBoundary()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, msg.Text)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, msg.HTML)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes(), nil
}

func newBoundary() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate mime boundary: %w", err)
	}
	return "crm-" + hex.EncodeToString(b), nil
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// InvitationData describes a calendar event invitation.
type InvitationData struct {
	CompanyName   string
	OrganizerName string
	Title         string
	Description   string
	Location      string
	StartAt       time.Time
	EndAt         *time.Time
	AllDay        bool
	CaseNumber    string
}

// RenderInvitation builds the subject and both bodies of an invitation.
func RenderInvitation(data InvitationData) (Message, error) {
	var text, html bytes.Buffer
	if err := invitationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render invitation text: %w", err)
	}
	if err := invitationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render invitation html: %w", err)
	}
	return Message{
		Subject: "Приглашение: " + data.Title,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func formatWhen(start time.Time, end *time.Time, allDay bool) string {
	if allDay {
		return start.Format("02.01.2006") + ", весь день"
	}
	s := start.Format("02.01.2006 15:04")
	if end != nil {
		if end.Format("20060102") == start.Format("20060102") {
			return s + "–" + end.Format("15:04")
		}
		return s + " – " + end.Format("02.01.2006 15:04")
	}
	return s
}

var invitationFuncs = map[string]any{"when": formatWhen}

var invitationText = texttemplate.Must(texttemplate.New("invitation_text").Funcs(invitationFuncs).Parse(
	`{{.OrganizerName}} приглашает вас на событие «{{.Title}}».

Когда: {{when .StartAt .EndAt .AllDay}}
{{if .Location}}Где: {{.Location}}
{{end}}{{if .CaseNumber}}Дело: {{.CaseNumber}}
{{end}}{{if .Description}}
{{.Description}}
{{end}}`))

var invitationHTML = template.Must(template.New("invitation_html").Funcs(invitationFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        dt { color: #666; font-size: 12px; }
        dd { margin: 0 0 10px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header"><h1>{{if .CompanyName}}{{.CompanyName}}{{else}}CRM{{end}}</h1></div>
    <h2>{{.Title}}</h2>
    <p>{{.OrganizerName}} приглашает вас на событие.</p>
    <dl>
        <dt>Когда</dt><dd>{{when .StartAt .EndAt .AllDay}}</dd>
        {{if .Location}}<dt>Где</dt><dd>{{.Location}}</dd>{{end}}
        {{if .CaseNumber}}<dt>Дело</dt><dd>{{.CaseNumber}}</dd>{{end}}
    </dl>
    {{if .Description}}<p>{{.Description}}</p>{{end}}
    <div class="footer"><p>Письмо отправлено автоматически.</p></div>
</body>
</html>`))
