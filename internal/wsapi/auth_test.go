package wsapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, key, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestAuthenticateDisabledAcceptsAnyToken(t *testing.T) {
	a := NewAuthenticator("")
	defer a.Close()
	userID, err := a.Authenticate("anything", "1.2.3.4:5555")
	require.NoError(t, err)
	require.Equal(t, "local", userID)
}

func TestAuthenticateValidTokenReturnsSubject(t *testing.T) {
	a := NewAuthenticator("secret-key")
	defer a.Close()
	tok := signedToken(t, "secret-key", "user-42")
	userID, err := a.Authenticate(tok, "1.2.3.4:5555")
	require.NoError(t, err)
	require.Equal(t, "user-42", userID)
}

func TestAuthenticateWrongKeyFails(t *testing.T) {
	a := NewAuthenticator("secret-key")
	defer a.Close()
	tok := signedToken(t, "other-key", "user-42")
	_, err := a.Authenticate(tok, "1.2.3.4:5555")
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestAuthenticateLocksOutAfterMaxFailedAttempts(t *testing.T) {
	a := NewAuthenticator("secret-key")
	defer a.Close()

	for i := 0; i < MaxFailedAttempts; i++ {
		_, err := a.Authenticate("garbage", "9.9.9.9:1111")
		require.ErrorIs(t, err, ErrAuthFailed)
	}

	_, err := a.Authenticate("garbage", "9.9.9.9:1111")
	require.ErrorIs(t, err, ErrRateLimited)
}
