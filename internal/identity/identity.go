// Package identity resolves the participant behind a signaling connection.
package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "token"

var (
	ErrNoToken      = errors.New("no token presented")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what the server trusts about a connection. An anonymous
// identity is empty and the participant names itself when joining a room.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

func (i Identity) Anonymous() bool {
	return i.UserID == "" && i.Email == ""
}

// Display is the identity shown to the other participant.
func (i Identity) Display() string {
	if i.Email != "" {
		return i.Email
	}
	return i.UserID
}

type Provider interface {
	Authenticate(r *http.Request) (Identity, error)
}

// Claims carried by session tokens. The user id lives in "_id" for
// compatibility with tokens issued by the web app.
type Claims struct {
	UserID string `json:"_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HMAC signed tokens from the "token" cookie or a
// Bearer authorization header.
type JWTProvider struct {
	secret []byte
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// Authenticate returns ErrNoToken when the request carries no token.
func (p *JWTProvider) Authenticate(r *http.Request) (Identity, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return Identity{}, ErrNoToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}

	id := Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.Anonymous() {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// Anonymous accepts every connection without an identity.
type Anonymous struct{}

func (Anonymous) Authenticate(*http.Request) (Identity, error) {
	return Identity{}, ErrNoToken
}
