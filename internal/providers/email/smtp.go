package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n%s\r\n%s", strings.Join(to, ", "), subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	t, err := template.ParseFS(templateFS, "templates/"+templateName+".html")
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	subject := "Notification from Timberline"
	if dataMap, ok := data.(map[string]interface{}); ok {
		if subj, exists := dataMap["subject"]; exists {
			if subjStr, ok := subj.(string); ok {
				subject = subjStr
			}
		} else {
			switch templateName {
			case "invite_member":
				if projectName, ok := dataMap["project_name"].(string); ok {
					subject = fmt.Sprintf("You're invited to join %s", projectName)
				} else {
					subject = "You're invited to join a project"
				}
			case "bid_awarded":
				subject = "Your bid was accepted"
			}
		}
	}

	return p.Send(ctx, to, subject, body.String())
}
