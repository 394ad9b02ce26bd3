package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []Message
	err      error
	block    chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return s.err
}

func (s *recordingSender) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("spanish verification", func(t *testing.T) {
		t.Parallel()
		msg := Render(KindVerifyEmail, "ana@example.com", "123456", "es", "https://gym.example/")
		if msg.Subject != "Verifica tu correo" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if !strings.Contains(msg.Text, "123456") || !strings.Contains(msg.Text, "https://gym.example/es/verify-email") {
			t.Fatalf("unexpected body %q", msg.Text)
		}
		if msg.To != "ana@example.com" {
			t.Fatalf("unexpected recipient %q", msg.To)
		}
	})

	t.Run("english reset for unknown locale", func(t *testing.T) {
		t.Parallel()
		msg := Render(KindPasswordReset, "bob@example.com", "654321", "fr", "")
		if msg.Subject != "Password reset code" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if !strings.Contains(msg.HTML, "http://localhost:3000/en/reset-password") {
			t.Fatalf("expected default app url in html, got %q", msg.HTML)
		}
	})
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("delivers queued messages before close returns", func(t *testing.T) {
		t.Parallel()

		sender := &recordingSender{}
		d := NewDispatcher(sender, 4, time.Second, nil)
		for i := 0; i < 3; i++ {
			if err := d.Enqueue(Message{To: "user@example.com"}); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if got := len(sender.sent()); got != 3 {
			t.Fatalf("expected 3 deliveries, got %d", got)
		}
		if err := d.Enqueue(Message{}); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed after close, got %v", err)
		}
	})

	t.Run("full queue drops instead of blocking", func(t *testing.T) {
		t.Parallel()

		sender := &recordingSender{block: make(chan struct{})}
		d := NewDispatcher(sender, 1, time.Second, nil)

		var full bool
		for i := 0; i < 5; i++ {
			if err := d.Enqueue(Message{To: "x@example.com"}); errors.Is(err, ErrQueueFull) {
				full = true
				break
			}
		}
		close(sender.block)
		if !full {
			t.Fatalf("expected ErrQueueFull with a blocked worker")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	})

	t.Run("delivery failures are swallowed", func(t *testing.T) {
		t.Parallel()

		sender := &recordingSender{err: errors.New("relay down")}
		d := NewDispatcher(sender, 1, time.Second, nil)
		if err := d.Enqueue(Message{To: "x@example.com"}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if err := d.Close(context.Background()); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if len(sender.sent()) != 1 {
			t.Fatalf("expected one attempt")
		}
	})
}

func TestCodeMailer_UsesDefaultLocale(t *testing.T) {
	t.Parallel()

	queue := &queueStub{}
	mailer := NewCodeMailer(queue, "https://gym.example", "es")
	if err := mailer.SendPasswordResetCode(context.Background(), "a@example.com", "111111", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.messages) != 1 || queue.messages[0].Subject != "Código para restablecer tu contraseña" {
		t.Fatalf("unexpected queued messages: %+v", queue.messages)
	}
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	t.Parallel()

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 2525, Username: "u", Password: "p", From: "noreply@example.com"})
	sender.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		return nil
	}

	if err := sender.Send(context.Background(), Message{To: "a@example.com", Subject: "Hola", Text: "plain", HTML: "<p>html</p>"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotAddr != "smtp.example.com:2525" || gotFrom != "noreply@example.com" || len(gotTo) != 1 || gotTo[0] != "a@example.com" {
		t.Fatalf("unexpected envelope %s %s %v", gotAddr, gotFrom, gotTo)
	}
	body := string(gotBody)
	for _, want := range []string{"Subject: Hola", "text/plain", "text/html", "<p>html</p>"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in message, got %q", want, body)
		}
	}
}

type queueStub struct {
	messages []Message
}

func (q *queueStub) Enqueue(msg Message) error {
	q.messages = append(q.messages, msg)
	return nil
}
