package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var errMissingToken = errors.New("missing bearer token")

// Tokens issues and verifies the HS256 credentials returned by consent
// registration.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token for userID carrying sub, iat and exp.
func (t *Tokens) Issue(userID string) (string, error) {
	now := t.now()
	claims := jwt.StandardClaims{
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the signature and expiry and returns the subject.
func (t *Tokens) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.StandardClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.StandardClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// bearerToken extracts the token from the Authorization header, falling back
// to the token query parameter when allowQuery is set.
func bearerToken(r *http.Request, allowQuery bool) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if allowQuery {
		return r.URL.Query().Get("token")
	}
	return ""
}

// authorize returns the subject of the request's bearer token.
func (s *Server) authorize(r *http.Request, allowQuery bool) (string, error) {
	tok := bearerToken(r, allowQuery)
	if tok == "" {
		return "", errMissingToken
	}
	return s.tokens.Verify(tok)
}
