// Package token inspects access tokens on the client side. Signature
// verification is deliberately absent, that being the server's responsibility;
// the client only reads claims to decide when a credential needs renewing.
package token

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims holds the decoded claim set of an access token.
type Claims map[string]any

// Decode extracts the claims from a raw token without verifying its
// signature.
func Decode(rawToken string) (Claims, error) {
	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[Decode] parsing token")
	}

	mapClaims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[Decode] error extracting claims")
	}

	return Claims(mapClaims), nil
}

// IsExpired reports whether the token's expiration claim is in the past.
// It fails closed: an undecodable token, or one with a missing or unreadable
// exp claim, is reported as expired so a malformed credential is never used.
func IsExpired(rawToken string) bool {
	claims, err := Decode(rawToken)
	if err != nil {
		return true
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return true
	}

	return NowTimeFunc().Unix() >= int64(exp)
}

// String reads a string claim, returning "" when absent or not a string.
func (c Claims) String(name string) string {
	s, _ := c[name].(string)
	return s
}
