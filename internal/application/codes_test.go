package application

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

func TestCodeIssuer_Issue(t *testing.T) {
	t.Parallel()

	issuer := NewCodeIssuer("secret", nil)
	code, hash, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(code) {
		t.Fatalf("expected six digits, got %q", code)
	}
	if hash != issuer.Hash(code) {
		t.Fatalf("expected hash of issued code")
	}
	if hash == NewCodeIssuer("other", nil).Hash(code) {
		t.Fatalf("expected hash to depend on the secret")
	}
}

func TestCodeIssuer_Check(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewCodeIssuer("secret", func() (string, error) { return "123456", nil })
	_, hash, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	valid := now.Add(time.Minute)
	expired := now.Add(-time.Second)

	cases := []struct {
		name    string
		code    string
		hash    string
		expires *time.Time
		want    error
	}{
		{name: "match", code: "123456", hash: hash, expires: &valid},
		{name: "mismatch", code: "654321", hash: hash, expires: &valid, want: ErrInvalidCode},
		{name: "no stored code", code: "123456", hash: "", expires: &valid, want: ErrInvalidCode},
		{name: "no expiry", code: "123456", hash: hash, want: ErrInvalidCode},
		{name: "expired match", code: "123456", hash: hash, expires: &expired, want: ErrCodeExpired},
		{name: "expired mismatch", code: "000000", hash: hash, expires: &expired, want: ErrCodeExpired},
		{name: "expires exactly now", code: "123456", hash: hash, expires: &now},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := issuer.Check(tc.code, tc.hash, tc.expires, now)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCodeIssuer_GeneratorFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("entropy exhausted")
	issuer := NewCodeIssuer("secret", func() (string, error) { return "", boom })
	if _, _, err := issuer.Issue(); !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
}
