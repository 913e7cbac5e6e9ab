package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "skillswap", "alice", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	claims, err := ParseToken("secret", "skillswap", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "alice" || !claims.IsAdmin() {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestDefaultRoleIsUser(t *testing.T) {
	token, err := NewAccessToken("secret", "skillswap", "bob", "", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	claims, err := ParseToken("secret", "skillswap", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Role != RoleUser || claims.IsAdmin() {
		t.Fatalf("expected user role, got %q", claims.Role)
	}
}

func TestParseTokenRejects(t *testing.T) {
	valid, _ := NewAccessToken("secret", "skillswap", "alice", RoleUser, time.Hour)
	expired, _ := NewAccessToken("secret", "skillswap", "alice", RoleUser, -time.Minute)
	foreign, _ := NewAccessToken("secret", "someone-else", "alice", RoleUser, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "iss": "skillswap"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := []struct {
		name   string
		secret string
		token  string
		want   error
	}{
		{"wrong secret", "other", valid, jwt.ErrTokenSignatureInvalid},
		{"expired", "secret", expired, jwt.ErrTokenExpired},
		{"wrong issuer", "secret", foreign, jwt.ErrTokenInvalidIssuer},
		{"unsigned", "secret", none, jwt.ErrTokenSignatureInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseToken(tc.secret, "skillswap", tc.token)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
