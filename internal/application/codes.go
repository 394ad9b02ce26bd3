package application

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// DefaultCodeTTL is how long a verification or reset code stays valid.
const DefaultCodeTTL = time.Hour

const codeDigits = 6

// CodeIssuer generates one-time numeric codes and their keyed hashes.
type CodeIssuer struct {
	secret   []byte
	generate func() (string, error)
}

// NewCodeIssuer returns an issuer keyed with secret. A nil generate uses crypto/rand.
func NewCodeIssuer(secret string, generate func() (string, error)) *CodeIssuer {
	if generate == nil {
		generate = randomDigits
	}
	return &CodeIssuer{secret: []byte(secret), generate: generate}
}

// Issue returns a fresh code and the hash to persist.
func (c *CodeIssuer) Issue() (code, hash string, err error) {
	code, err = c.generate()
	if err != nil {
		return "", "", fmt.Errorf("generate code: %w", err)
	}
	return code, c.Hash(code), nil
}

// Hash returns the hex HMAC-SHA256 of code.
func (c *CodeIssuer) Hash(code string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Check compares code against a stored hash. An expired code is reported
// before a mismatch.
func (c *CodeIssuer) Check(code, storedHash string, expiresAt *time.Time, now time.Time) error {
	if storedHash == "" || expiresAt == nil {
		return ErrInvalidCode
	}
	if now.After(*expiresAt) {
		return ErrCodeExpired
	}
	computed := c.Hash(code)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return ErrInvalidCode
	}
	return nil
}

func randomDigits() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
