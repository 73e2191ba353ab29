// Package notify delivers mention notifications over SMTP.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"

	"coedit/api/internal/collab"
)

// Config holds SMTP configuration.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Directory resolves a user id to a deliverable address and display
// name. Unknown users are skipped silently.
type Directory func(userID string) (address, name string, ok bool)

// Mailer implements the session manager's Notifier. Sends happen on
// their own goroutines so a slow SMTP server never blocks a comment.
type Mailer struct {
	config    Config
	server    string
	auth      smtp.Auth
	directory Directory
}

func NewMailer(config Config, directory Directory) *Mailer {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Mailer{
		config:    config,
		server:    config.Host + ":" + config.Port,
		auth:      auth,
		directory: directory,
	}
}

// IsConfigured returns true if SMTP delivery is configured.
func (m *Mailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.Port != "" && m.config.From != ""
}

// NotifyMention emails the mentioned user about the comment. Delivery
// failures are logged, never surfaced to the commenting call.
func (m *Mailer) NotifyMention(_ context.Context, session collab.Session, comment collab.Comment, mentionedID string) {
	if !m.IsConfigured() || m.directory == nil {
		return
	}
	address, name, ok := m.directory(mentionedID)
	if !ok || address == "" {
		return
	}

	go func() {
		author := comment.AuthorID
		if a, aname, ok := m.directory(comment.AuthorID); ok && a != "" && aname != "" {
			author = aname
		}
		data := mentionData{
			AppName:     "Coedit",
			UserName:    name,
			Author:      author,
			SessionName: session.Name,
			FileID:      comment.FileID,
			Line:        comment.Anchor.Line,
			Body:        comment.Body,
		}
		subject := fmt.Sprintf("%s mentioned you in %s", author, session.Name)
		html, err := renderTemplate(mentionEmailTemplate, data)
		if err != nil {
			log.Printf("notify: render mention template: %v", err)
			return
		}
		if err := m.sendHTML([]string{address}, subject, html); err != nil {
			log.Printf("notify: mention email to %s: %v", mentionedID, err)
		}
	}()
}

func (m *Mailer) sendHTML(to []string, subject, htmlBody string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp not configured")
	}

	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}

	boundary := "boundary-coedit"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(m.server, m.auth, m.config.From, to, msg.Bytes())
}

type mentionData struct {
	AppName     string
	UserName    string
	Author      string
	SessionName string
	FileID      string
	Line        int
	Body        string
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const mentionEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>You were mentioned in {{.SessionName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .comment { background: #f6f8fa; padding: 12px; border-left: 3px solid #0066cc; border-radius: 4px; margin: 20px 0; }
        .location { font-family: monospace; color: #666; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Hi {{.UserName}},</h2>

    <p><strong>{{.Author}}</strong> mentioned you in a comment during <strong>{{.SessionName}}</strong>.</p>

    <p class="location">{{.FileID}}, line {{.Line}}</p>

    <div class="comment">
        <p>{{.Body}}</p>
    </div>

    <div class="footer">
        <p>You received this because you were @mentioned in a {{.AppName}} review session.</p>
    </div>
</body>
</html>`
