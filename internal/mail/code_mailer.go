package mail

import "context"

// Queue accepts messages for asynchronous delivery.
type Queue interface {
	Enqueue(msg Message) error
}

// CodeMailer renders code emails and queues them.
type CodeMailer struct {
	queue         Queue
	appURL        string
	defaultLocale string
}

// NewCodeMailer constructs a CodeMailer. Links in the emails point at appURL.
func NewCodeMailer(queue Queue, appURL, defaultLocale string) *CodeMailer {
	if defaultLocale == "" {
		defaultLocale = "es"
	}
	return &CodeMailer{queue: queue, appURL: appURL, defaultLocale: defaultLocale}
}

// SendVerificationCode queues the email verification message.
func (m *CodeMailer) SendVerificationCode(_ context.Context, to, code, locale string) error {
	return m.queue.Enqueue(Render(KindVerifyEmail, to, code, m.locale(locale), m.appURL))
}

// SendPasswordResetCode queues the password reset message.
func (m *CodeMailer) SendPasswordResetCode(_ context.Context, to, code, locale string) error {
	return m.queue.Enqueue(Render(KindPasswordReset, to, code, m.locale(locale), m.appURL))
}

func (m *CodeMailer) locale(locale string) string {
	if locale == "" {
		return m.defaultLocale
	}
	return locale
}
