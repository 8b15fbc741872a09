package security

import (
	"strings"
	"testing"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789"

func TestIssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	token, exp, err := issuer.Issue(&models.User{ID: 42, Role: models.ROLE_PREMIUM})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, models.ROLE_PREMIUM, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseRejects(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	other, err := NewTokenIssuer("another-secret-0123456789", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	expiredIssuer, err := NewTokenIssuer(testSecret, time.Minute)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue(&models.User{ID: 1})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not.a.token",
		"foreign secret": foreign,
		"expired":        expired,
		"alg none":       none,
		"tampered":       strings.TrimSuffix(foreign, foreign[len(foreign)-2:]) + "xx",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("short", time.Hour)
	assert.Error(t, err)
}
