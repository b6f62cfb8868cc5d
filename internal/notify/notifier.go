package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/cloo-solutions/researchq/internal/domain"
	"github.com/cloo-solutions/researchq/internal/service"
)

const appName = "Research"

var bodyTemplate = template.Must(template.New("research_complete").Parse(`<!DOCTYPE html>
<html>
<body>
<p>Your research results are ready.</p>
<p>The research for <strong>{{.Query}}</strong> has been completed and your results are now available to view.</p>
{{if .Unanalyzed}}<p>{{.Unanalyzed}} of your documents could not be analyzed and are not part of these results. Submitting the research again will retry them.</p>
{{end}}<p><a href="{{.Link}}">View Research Results</a></p>
<p>You can also find this and all your previous research results in your history.</p>
</body>
</html>
`))

// ResultLink is the absolute link to an archived record.
func ResultLink(appURL, teamSlug, recordID string) string {
	return strings.TrimRight(appURL, "/") + domain.ResultPath(teamSlug, recordID)
}

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier emails requesters when their research has been archived.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyResearchComplete(ctx context.Context, notice service.CompletionNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := parseRecipient(notice.Email)
	if err != nil {
		return fmt.Errorf("record %s: %w", notice.RecordID, err)
	}

	msg, err := n.compose(to, notice)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(addr, auth, n.cfg.From, []string{to.Address}, msg); err != nil {
		return fmt.Errorf("failed to send completion email: %w", err)
	}
	return nil
}

// parseRecipient accepts a single bare address. Header breaks are refused
// before parsing since the address is written into the message headers.
func parseRecipient(email string) (*mail.Address, error) {
	if email == "" {
		return nil, errors.New("no email address")
	}
	if strings.ContainsAny(email, "\r\n") {
		return nil, fmt.Errorf("invalid email address %q", email)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, fmt.Errorf("invalid email address %q: %w", email, err)
	}
	return &mail.Address{Address: addr.Address}, nil
}

func (n *SMTPNotifier) compose(to *mail.Address, notice service.CompletionNotice) ([]byte, error) {
	var body bytes.Buffer
	err := bodyTemplate.Execute(&body, struct {
		Query      string
		Link       string
		Unanalyzed int
	}{
		Query:      notice.UserSearchQuery,
		Link:       ResultLink(n.cfg.AppURL, notice.TeamSlug, notice.RecordID),
		Unanalyzed: notice.Unanalyzed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render completion email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: Your %s Results are Ready\r\n", appName)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// LogNotifier writes completion notices to the log when no mail relay is set up.
type LogNotifier struct {
	AppURL string
}

func (n LogNotifier) NotifyResearchComplete(ctx context.Context, notice service.CompletionNotice) error {
	log.Printf("research complete: record %s for %s: %s",
		notice.RecordID, notice.Email, ResultLink(n.AppURL, notice.TeamSlug, notice.RecordID))
	return nil
}
