package socket

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, sub string, expired bool) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub}
	if expired {
		claims["exp"] = time.Now().Add(-time.Hour).Unix()
	} else {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestAuthenticateAcceptsValidBearerTokenInQuery(t *testing.T) {
	secret := []byte("test-secret")
	a := &Adapter{jwtSecret: secret}

	token := signToken(t, secret, "player-1", false)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	playerID, err := a.authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "player-1", playerID)
}

func TestAuthenticateAcceptsBearerTokenInHeader(t *testing.T) {
	secret := []byte("test-secret")
	a := &Adapter{jwtSecret: secret}

	token := signToken(t, secret, "player-2", false)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	playerID, err := a.authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "player-2", playerID)
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	a := &Adapter{jwtSecret: []byte("test-secret")}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	_, err := a.authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticateRejectsWrongSigningSecret(t *testing.T) {
	a := &Adapter{jwtSecret: []byte("real-secret")}
	token := signToken(t, []byte("wrong-secret"), "player-1", false)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	_, err := a.authenticate(req)
	assert.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	a := &Adapter{jwtSecret: secret}
	token := signToken(t, secret, "player-1", true)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)

	_, err := a.authenticate(req)
	assert.Error(t, err)
}

func TestCorsCheckOriginAllowsAnyWhenUnconfigured(t *testing.T) {
	check := corsCheckOrigin(nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, check(req))
}

func TestCorsCheckOriginRejectsUnlistedOrigin(t *testing.T) {
	check := corsCheckOrigin([]string{"https://chesscore.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

func TestCorsCheckOriginAllowsListedOrigin(t *testing.T) {
	check := corsCheckOrigin([]string{"https://chesscore.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://chesscore.example")
	assert.True(t, check(req))
}

func TestCorsCheckOriginWildcard(t *testing.T) {
	check := corsCheckOrigin([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, check(req))
}
