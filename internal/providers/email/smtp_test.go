package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderUsesTemplateSubject(t *testing.T) {
	subject, body, err := Render("payment_received", map[string]any{
		"recipient_name":  "Jane Doe",
		"total":           "154.50",
		"currency":        "USD",
		"order_reference": "OF-ABC",
	})
	require.NoError(t, err)
	assert.Equal(t, "We received your payment", subject)
	assert.Contains(t, body, "Hi Jane Doe,")
	assert.Contains(t, body, "154.50 USD")
	assert.Contains(t, body, "OF-ABC")
}

func TestRenderSubjectOverrideAndMissingTemplate(t *testing.T) {
	subject, body, err := Render("order_cancelled", map[string]any{"subject": "Cancelled", "reason": "<b>duplicate</b>"})
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", subject)
	assert.Contains(t, body, "Hello,")
	assert.Contains(t, body, "&lt;b&gt;duplicate&lt;/b&gt;")

	_, _, err = Render("nope", nil)
	assert.Error(t, err)
}

func TestSendTemplateWritesMessage(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "orders@pinksky.example"})
	var gotAddr string
	var gotTo []string
	var gotMsg string
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"jane@example.com"}, "order_completed", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"jane@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: orders@pinksky.example\r\nTo: jane@example.com\r\nSubject: Your order is complete\r\n"))

	assert.Error(t, p.Send(context.Background(), nil, "x", "y"))
}
