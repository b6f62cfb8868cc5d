package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/cloo-solutions/researchq/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestNotifier(cfg SMTPConfig, sendErr error) (*SMTPNotifier, *[]sentMail) {
	var sent []sentMail
	n := NewSMTPNotifier(cfg)
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return sendErr
	}
	return n, &sent
}

func TestResultLink(t *testing.T) {
	assert.Equal(t, "https://app.example.com/teams/acme/ai-result?id=rec-1",
		ResultLink("https://app.example.com/", "acme", "rec-1"))
	assert.Equal(t, "/teams/acme/ai-result?id=rec-1", ResultLink("", "acme", "rec-1"))
}

func TestSMTPNotifier_SendsLink(t *testing.T) {
	n, sent := newTestNotifier(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "research@example.com",
		AppURL:   "https://app.example.com",
	}, nil)

	err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{
		Email:           "ada@example.com",
		TeamSlug:        "acme",
		RecordID:        "rec-1",
		UserSearchQuery: "<revenue>",
	})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	mail := (*sent)[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.NotNil(t, mail.auth)
	assert.Equal(t, "research@example.com", mail.from)
	assert.Equal(t, []string{"ada@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: Your Research Results are Ready\r\n")
	assert.Contains(t, mail.msg, `href="https://app.example.com/teams/acme/ai-result?id=rec-1"`)
	assert.Contains(t, mail.msg, "To: <ada@example.com>\r\n")
	assert.Contains(t, mail.msg, "&lt;revenue&gt;")
	assert.NotContains(t, mail.msg, "could not be analyzed")
}

func TestSMTPNotifier_MentionsUnanalyzedDocuments(t *testing.T) {
	n, sent := newTestNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "r@example.com"}, nil)

	err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{
		Email: "ada@example.com", TeamSlug: "acme", RecordID: "rec-1", Unanalyzed: 2,
	})
	require.NoError(t, err)
	assert.Contains(t, (*sent)[0].msg, "2 of your documents could not be analyzed")
}

func TestSMTPNotifier_RejectsInvalidRecipients(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{"header injection", "ada@example.com\r\nBcc: eve@example.com"},
		{"bare newline", "ada@example.com\nSubject: hi"},
		{"not an address", "ada at example"},
		{"two addresses", "ada@example.com, eve@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, sent := newTestNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "r@example.com"}, nil)

			err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{
				Email: tt.email, TeamSlug: "acme", RecordID: "rec-1",
			})

			assert.ErrorContains(t, err, "invalid email address")
			assert.Empty(t, *sent)
		})
	}
}

func TestSMTPNotifier_UsesBareAddressFromDisplayName(t *testing.T) {
	n, sent := newTestNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "r@example.com"}, nil)

	err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{
		Email: "Ada Lovelace <ada@example.com>", TeamSlug: "acme", RecordID: "rec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, (*sent)[0].to)
	assert.Contains(t, (*sent)[0].msg, "To: <ada@example.com>\r\n")
}

func TestSMTPNotifier_NoAuthWithoutUsername(t *testing.T) {
	n, sent := newTestNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "r@example.com"}, nil)

	err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{
		Email: "ada@example.com", TeamSlug: "acme", RecordID: "rec-1",
	})
	require.NoError(t, err)
	assert.Nil(t, (*sent)[0].auth)
}

func TestSMTPNotifier_Errors(t *testing.T) {
	n, sent := newTestNotifier(SMTPConfig{Host: "localhost", Port: 25, From: "r@example.com"}, errors.New("relay down"))

	err := n.NotifyResearchComplete(context.Background(), service.CompletionNotice{RecordID: "rec-1"})
	assert.Error(t, err)
	assert.Empty(t, *sent)

	err = n.NotifyResearchComplete(context.Background(), service.CompletionNotice{Email: "ada@example.com", RecordID: "rec-1"})
	assert.ErrorContains(t, err, "relay down")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.NotifyResearchComplete(context.Background(), service.CompletionNotice{RecordID: "rec-1"}))
}
