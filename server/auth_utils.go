package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// sessionCookieName is the cookie carrying the signed session id
const sessionCookieName = "bank_session"

// sessionCookies issues and verifies the session cookie. The cookie value is an HS256 JWT whose
// sid claim keys the server side session record; no token material ever reaches the browser.
type sessionCookies struct {
	secret []byte
	maxAge time.Duration
}

func newSessionCookies(secret string, maxAge time.Duration) (*sessionCookies, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 characters")
	}
	return &sessionCookies{secret: []byte(secret), maxAge: maxAge}, nil
}

// sessionID returns the verified session id from the request cookie
func (c *sessionCookies) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, c.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		return "", false
	}

	sid, ok := claims["sid"].(string)
	if !ok || uuid.Validate(sid) != nil {
		return "", false
	}
	return sid, true
}

// issue starts a new session and sets its cookie
func (c *sessionCookies) issue(w http.ResponseWriter, r *http.Request) (string, error) {
	sid := uuid.NewString()
	now := NowTimeFunc()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": sid,
		"iat": now.Unix(),
		"exp": now.Add(c.maxAge).Unix(),
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode, // the provider redirect back to /callback is a top level GET
		MaxAge:   int(c.maxAge.Seconds()),
	})
	return sid, nil
}

// ensure returns the request's session id, issuing a new session when there is none
func (c *sessionCookies) ensure(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid, ok := c.sessionID(r); ok {
		return sid, nil
	}
	return c.issue(w, r)
}

func (c *sessionCookies) clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (c *sessionCookies) verificationKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return c.secret, nil
}
