package sessions

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// FromOAuth2 converts a token endpoint response. Expiry is computed from expires_in against now
// when the provider sent it, so callers control the clock.
func FromOAuth2(t *oauth2.Token, now time.Time) Token {
	tok := Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.Type(),
		Expiry:       t.Expiry,
		RefreshedAt:  now,
	}
	if secs := expiresIn(t); secs > 0 {
		tok.Expiry = now.Add(time.Duration(secs) * time.Second)
	}
	if scope, ok := t.Extra("scope").(string); ok {
		tok.Scopes = strings.Fields(scope)
	}
	return tok
}

// UserIDFromOAuth2 returns the provider's user id when the token response carries one
func UserIDFromOAuth2(t *oauth2.Token) string {
	userID, _ := t.Extra("user_id").(string)
	return userID
}

func expiresIn(t *oauth2.Token) int64 {
	if t.ExpiresIn > 0 {
		return t.ExpiresIn
	}
	switch v := t.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
