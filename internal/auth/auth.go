// Package auth supplies the caller's identity to a chat session.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider returns the authenticated identity, or false when there is none.
type Provider interface {
	CurrentIdentity() (string, bool)
}

// Static always reports the same identity. An empty ID means signed out.
type Static string

func (s Static) CurrentIdentity() (string, bool) {
	return string(s), s != ""
}

// JWTProvider reports the subject of a HS256 token while it is valid.
type JWTProvider struct {
	Token  string
	Secret string
	Issuer string
	Log    *slog.Logger
}

func (p JWTProvider) CurrentIdentity() (string, bool) {
	if p.Token == "" {
		return "", false
	}
	id, err := ValidateJWT(p.Token, p.Secret, p.Issuer)
	if err != nil {
		log := p.Log
		if log == nil {
			log = slog.Default()
		}
		log.Warn("identity token rejected", "error", err)
		return "", false
	}
	return id, true
}

func MakeJWT(subject, tokenSecret, issuer string, expiresIn time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("internal/auth: empty subject")
	}

	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
	})

	return token.SignedString([]byte(tokenSecret))
}

// ValidateJWT returns the token subject. An empty issuer skips the issuer
// check.
func ValidateJWT(tokenString, tokenSecret, issuer string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(tokenSecret), nil },
		opts...,
	)
	if err != nil {
		return "", fmt.Errorf("internal/auth: failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", errors.New("internal/auth: token is invalid")
	}

	if claims.Subject == "" {
		return "", errors.New("subject claim is missing")
	}

	return claims.Subject, nil
}
