package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := Tokens{Secret: []byte("test-secret"), TTL: time.Hour}
	raw, sessionID, expiresAt, err := tokens.Issue()
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.NotEmpty(t, sessionID)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	parsed, err := tokens.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, sessionID, parsed)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	issuer := Tokens{Secret: []byte("secret-a"), TTL: time.Hour}
	raw, _, _, err := issuer.Issue()
	require.NoError(t, err)

	verifier := Tokens{Secret: []byte("secret-b")}
	_, err = verifier.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := Tokens{Secret: []byte("test-secret"), TTL: time.Hour, Now: func() time.Time { return past }}
	raw, _, _, err := issuer.Issue()
	require.NoError(t, err)

	verifier := Tokens{Secret: []byte("test-secret")}
	_, err = verifier.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsGarbage(t *testing.T) {
	tokens := Tokens{Secret: []byte("test-secret")}
	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c"} {
		_, err := tokens.Parse(raw)
		require.ErrorIs(t, err, ErrInvalidToken, "input %q", raw)
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	_, _, _, err := Tokens{}.Issue()
	require.Error(t, err)
}
