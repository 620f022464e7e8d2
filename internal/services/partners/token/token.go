// Package token verifies bearer tokens presented on partner connections.
//
// Tokens are EdDSA-signed JWTs carrying the account username in the subject
// claim. Validation is a pure function of the token and the clock; the
// gateway re-validates on every connection event because a long-lived
// connection can outlive its token.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/partnerhub/partnerhub/internal/platform/errors"
	"github.com/partnerhub/partnerhub/internal/services/partners/protocol"
)

// Identity is a verified account username extracted from a valid token.
type Identity struct {
	Username string
}

// Config defines how bearer tokens are verified.
type Config struct {
	Issuer string
	Key    ed25519.PublicKey
	Now    func() time.Time
}

// tokenEnv holds raw env values before post-parse validation.
type tokenEnv struct {
	Issuer    string `env:"PARTNERHUB_TOKEN_ISSUER"`
	PublicKey string `env:"PARTNERHUB_TOKEN_PUBLIC_KEY"`
}

// LoadConfigFromEnv reads token verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw tokenEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("PARTNERHUB_TOKEN_ISSUER is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("PARTNERHUB_TOKEN_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode token public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer: issuer,
		Key:    ed25519.PublicKey(keyBytes),
		Now:    now,
	}, nil
}

// Validator verifies bearer tokens against a fixed issuer and public key.
type Validator struct {
	cfg Config
}

// NewValidator creates a token validator from a complete config.
func NewValidator(cfg Config) (*Validator, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		return nil, errors.New("token public key is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Validator{cfg: cfg}, nil
}

// Validate verifies signature, issuer and expiry and returns the identity.
// Failures are domain errors with one of the token codes: missing,
// malformed, expired.
func (v *Validator) Validate(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, apperrors.New(apperrors.CodeTokenMissing, "bearer token is required")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return v.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}

	if claims.Issuer == "" || claims.Issuer != v.cfg.Issuer {
		return Identity{}, apperrors.WithMetadata(
			apperrors.CodeTokenMalformed,
			"token issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if claims.ExpiresAt == nil {
		return Identity{}, apperrors.New(apperrors.CodeTokenMalformed, "token exp is required")
	}

	now := v.cfg.Now().UTC()
	exp := claims.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Identity{}, apperrors.New(apperrors.CodeTokenExpired, "token is expired")
	}

	username := strings.TrimSpace(claims.Subject)
	if !protocol.ValidUsername(username) {
		return Identity{}, apperrors.WithMetadata(
			apperrors.CodeTokenMalformed,
			"token subject is not a valid username",
			map[string]string{"Field": "subject"},
		)
	}
	return Identity{Username: username}, nil
}

// mapJWTError translates jwt library errors to domain errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeTokenMalformed, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeTokenMalformed, "token alg is invalid")
	}
	return apperrors.New(apperrors.CodeTokenMalformed, "token is malformed")
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
