package mailbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/admin-e2e/internal/otp"
)

const plainMessage = "From: no-reply@example.com\r\n" +
	"To: admin.devrainyday@yopmail.com\r\n" +
	"Subject: Your verification code\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your verification code is 604182.\r\n"

const htmlOnlyMessage = "From: no-reply@example.com\r\n" +
	"To: admin.devrainyday@yopmail.com\r\n" +
	"Subject: Your verification code\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><p>Hello&nbsp;admin</p><div><b>739105</b></div><script>var x = 123456;</script></body></html>\r\n"

func TestMessageText_PlainPart(t *testing.T) {
	text, err := MessageText([]byte(plainMessage))
	require.NoError(t, err)
	code, ok := otp.Extract(text)
	require.True(t, ok)
	assert.Equal(t, otp.Code("604182"), code)
}

func TestMessageText_HTMLOnly(t *testing.T) {
	text, err := MessageText([]byte(htmlOnlyMessage))
	require.NoError(t, err)
	assert.NotContains(t, text, "<b>")
	code, ok := otp.Extract(text)
	require.True(t, ok)
	assert.Equal(t, otp.Code("739105"), code)
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<p>Your code</p><p>  <strong>123456</strong> </p><br>Thanks &amp; bye")
	assert.Equal(t, "Your code\n123456\nThanks & bye", got)
	assert.False(t, strings.Contains(HTMLToText("<script>alert(1)</script>ok"), "alert"))
}
