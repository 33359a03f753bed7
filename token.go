package main

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoIdentity = errors.New("token carries no identity")

// identityVerifier turns a bearer token into an identity.
type identityVerifier interface {
	verify(token string) (string, error)
}

// identityClaims is the claim set issued by the account service.
type identityClaims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// tokenVerifier checks HMAC-signed JWTs. It does no I/O.
type tokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenVerifier(secret string, now func() time.Time) *tokenVerifier {
	if now == nil {
		now = time.Now
	}
	return &tokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithTimeFunc(now),
		),
	}
}

func (v *tokenVerifier) verify(token string) (string, error) {
	if token == "" {
		return "", errNoIdentity
	}
	claims := &identityClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errNoIdentity
}
