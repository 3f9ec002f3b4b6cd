package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/config"
	"scanhub/internal/models"
)

type captureSender struct {
	sent []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func TestMailer_Verification(t *testing.T) {
	sender := &captureSender{}
	m := NewMailer(sender, "https://app.scanhub.test/")

	user := models.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, m.SendVerification(context.Background(), user, "tok en"))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Verify your account", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Ada")
	assert.Contains(t, msg.Body, "https://app.scanhub.test/verify-account?id=u1&token=tok+en")
}

func TestMailer_PasswordResetPropagatesError(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	m := NewMailer(sender, "http://localhost:3000")

	err := m.SendPasswordReset(context.Background(), models.User{ID: "u2", Email: "b@example.com"}, "abc")
	assert.EqualError(t, err, "smtp down")
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "http://localhost:3000/reset-password?id=u2&token=abc")
}

func TestNewSMTPSender(t *testing.T) {
	s, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com", TLS: true})
	require.NoError(t, err)
	assert.Equal(t, "noreply@example.com", s.from)
}
