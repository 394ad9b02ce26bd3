package application

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	argon, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	legacy, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	cases := []struct {
		name     string
		hash     string
		password string
		want     error
	}{
		{name: "argon2id match", hash: argon, password: "s3cret-pass"},
		{name: "argon2id mismatch", hash: argon, password: "other", want: ErrInvalidCredentials},
		{name: "bcrypt match", hash: string(legacy), password: "s3cret-pass"},
		{name: "bcrypt mismatch", hash: string(legacy), password: "other", want: ErrInvalidCredentials},
		{name: "malformed hash", hash: "not-a-hash", password: "s3cret-pass", want: ErrInvalidPasswordHash},
		{name: "unknown algorithm", hash: "$scrypt$v=1$a$b$c", password: "s3cret-pass", want: ErrInvalidPasswordHash},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := VerifyPassword(tc.hash, tc.password)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected match, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestHashPassword_Salted(t *testing.T) {
	t.Parallel()

	first, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	second, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts, got identical hashes")
	}
}
