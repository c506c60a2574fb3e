package email

import (
	"fmt"
	"html"
)

// CodeExpiry is how long a verification code stays valid in the fake app.
const CodeExpiry = "10 minutes"

// VerificationCode builds the sign-in code email.
func VerificationCode(to, from, code string) Message {
	return Message{
		To:      to,
		From:    from,
		Subject: "Your Rainyday Parents verification code",
		Text: fmt.Sprintf("Your verification code is %s\n\nThe code expires in %s. "+
			"If you did not try to sign in, you can ignore this email.\n", code, CodeExpiry),
		HTML: renderVerificationHTML(code),
	}
}

func renderVerificationHTML(code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Your verification code</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: #2f6fed; padding: 24px; border-radius: 10px 10px 0 0;">
        <h1 style="color: white; margin: 0; font-size: 22px;">Rainyday Parents</h1>
    </div>
    <div style="background: #ffffff; padding: 24px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 10px 10px;">
        <p>Your verification code is</p>
        <p style="font-size: 32px; letter-spacing: 6px; font-weight: 700;">%s</p>
        <p style="color: #666; font-size: 14px;">The code expires in <strong>%s</strong>. If you did not try to sign in, you can ignore this email.</p>
    </div>
</body>
</html>`, html.EscapeString(code), CodeExpiry)
}
