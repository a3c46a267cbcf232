package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nalanda-backend/internal/platform/config"
)

func TestTemplates(t *testing.T) {
	body, err := VerificationEmail(48213, 15)
	require.NoError(t, err)
	assert.Contains(t, body, "48213")
	assert.Contains(t, body, "15 minutes")

	body, err = PasswordResetEmail("http://localhost:3000/password/reset/abc", 15)
	require.NoError(t, err)
	assert.Contains(t, body, `href="http://localhost:3000/password/reset/abc"`)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	assert.Equal(t, Message{}, r.Last())

	require.NoError(t, r.Send(context.Background(), "a@example.com", "s1", "b1"))
	require.NoError(t, r.Send(context.Background(), "b@example.com", "s2", "b2"))
	assert.Len(t, r.Messages(), 2)
	assert.Equal(t, "b@example.com", r.Last().To)

	r.Err = errors.New("smtp down")
	assert.Error(t, r.Send(context.Background(), "c@example.com", "s3", "b3"))
	assert.Len(t, r.Messages(), 2)
}

func TestNewPicksImplementation(t *testing.T) {
	_, ok := New(config.SMTPConfig{}).(LogMailer)
	assert.True(t, ok)

	_, ok = New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}).(*SMTPMailer)
	assert.True(t, ok)
}

func TestSMTPMailerHonoursCancelledContext(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", Port: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "a@example.com", "s", "b"), context.Canceled)
}
