// Package mail builds and delivers the account emails: verification codes and
// password reset codes.
package mail

import (
	"context"
	"fmt"
	"strings"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Kind selects the template rendered for a code email.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindPasswordReset Kind = "password_reset"
)

// Render produces the localized message for a code email. Locales other than
// "es" fall back to English.
func Render(kind Kind, to, code, locale, appURL string) Message {
	locale = normalizeLocale(locale)
	base := strings.TrimRight(appURL, "/")
	if base == "" {
		base = "http://localhost:3000"
	}

	var subject, intro, path string
	switch kind {
	case KindPasswordReset:
		path = "reset-password"
		if locale == "es" {
			subject, intro = "Código para restablecer tu contraseña", "Tu código para restablecer la contraseña es:"
		} else {
			subject, intro = "Password reset code", "Your password reset code is:"
		}
	default:
		path = "verify-email"
		if locale == "es" {
			subject, intro = "Verifica tu correo", "Tu código para verificar el correo es:"
		} else {
			subject, intro = "Verify your email", "Your email verification code is:"
		}
	}

	link := fmt.Sprintf("%s/%s/%s", base, locale, path)
	goTo, expires := "Go to", "It expires in 1 hour."
	if locale == "es" {
		goTo, expires = "Ve a", "Caduca en 1 hora."
	}

	text := fmt.Sprintf("%s %s\n\n%s: %s\n\n%s", intro, code, goTo, link, expires)
	html := fmt.Sprintf(`<p>%s</p>
<p style="font-size:24px; font-weight:800; letter-spacing:2px">%s</p>
<p>%s <a href="%s">%s</a></p>
<p>%s</p>`, intro, code, goTo, link, link, expires)

	return Message{To: to, Subject: subject, Text: text, HTML: html}
}

func normalizeLocale(locale string) string {
	l := strings.ToLower(strings.TrimSpace(locale))
	if strings.HasPrefix(l, "es") {
		return "es"
	}
	return "en"
}
