package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/partnerhub/partnerhub/internal/platform/errors"
)

const testIssuer = "partnerhub-test"

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return public, private
}

func signToken(t *testing.T, private ed25519.PrivateKey, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(private)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func newValidator(t *testing.T, key ed25519.PublicKey, now time.Time) *Validator {
	t.Helper()
	validator, err := NewValidator(Config{
		Issuer: testIssuer,
		Key:    key,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	return validator
}

func TestValidateAcceptsSignedToken(t *testing.T) {
	public, private := newKeyPair(t)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	raw := signToken(t, private, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	identity, err := newValidator(t, public, now).Validate(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if identity.Username != "alice" {
		t.Fatalf("username = %q, want alice", identity.Username)
	}
}

func TestValidateRejectsMissingToken(t *testing.T) {
	public, _ := newKeyPair(t)
	_, err := newValidator(t, public, time.Now()).Validate("   ")
	if apperrors.CodeOf(err) != apperrors.CodeTokenMissing {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTokenMissing)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	public, _ := newKeyPair(t)
	_, err := newValidator(t, public, time.Now()).Validate("not-a-jwt")
	if apperrors.CodeOf(err) != apperrors.CodeTokenMalformed {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTokenMalformed)
	}
}

func TestValidateRejectsWrongKeySignature(t *testing.T) {
	public, _ := newKeyPair(t)
	_, otherPrivate := newKeyPair(t)
	now := time.Now()
	raw := signToken(t, otherPrivate, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	_, err := newValidator(t, public, now).Validate(raw)
	if apperrors.CodeOf(err) != apperrors.CodeTokenMalformed {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTokenMalformed)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	public, private := newKeyPair(t)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	raw := signToken(t, private, jwt.RegisteredClaims{
		Issuer:    testIssuer,
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	})

	_, err := newValidator(t, public, now).Validate(raw)
	if apperrors.CodeOf(err) != apperrors.CodeTokenExpired {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTokenExpired)
	}
}

func TestValidateRejectsIssuerMismatch(t *testing.T) {
	public, private := newKeyPair(t)
	now := time.Now()
	raw := signToken(t, private, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})

	_, err := newValidator(t, public, now).Validate(raw)
	if apperrors.CodeOf(err) != apperrors.CodeTokenMalformed {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeTokenMalformed)
	}
}

func TestValidateRejectsInvalidSubject(t *testing.T) {
	public, private := newKeyPair(t)
	now := time.Now()
	for _, subject := range []string{"", "bad name", "alice!"} {
		raw := signToken(t, private, jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})
		_, err := newValidator(t, public, now).Validate(raw)
		if apperrors.CodeOf(err) != apperrors.CodeTokenMalformed {
			t.Fatalf("subject %q: err = %v, want %s", subject, err, apperrors.CodeTokenMalformed)
		}
	}
}
