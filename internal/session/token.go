package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const tokenIssuer = "storefront-api"

// ErrInvalidToken covers every way a session token can fail verification.
// Handlers treat it as "start a fresh session", never as a hard failure.
var ErrInvalidToken = errors.New("session: invalid token")

// Tokens signs and verifies the session tokens the storefront stores in
// place of a raw cart id. HS256 with a server-held secret; the browser can
// read the session id but cannot mint or alter a token.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Tokens) ttl() time.Duration {
	if t.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return t.TTL
}

// Issue mints a token for a brand-new session id.
func (t Tokens) Issue() (string, string, time.Time, error) {
	if len(t.Secret) == 0 {
		return "", "", time.Time{}, errors.New("session: signing secret not configured")
	}
	sessionID := uuid.NewString()
	now := t.now()
	expiresAt := now.Add(t.ttl())
	token, err := jwt.NewBuilder().
		Subject(sessionID).
		Issuer(tokenIssuer).
		IssuedAt(now).
		Expiration(expiresAt).
		Build()
	if err != nil {
		return "", "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, t.Secret))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return string(signed), sessionID, expiresAt, nil
}

// Parse verifies a token and returns the session id it carries.
func (t Tokens) Parse(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	if err := requireHS256(trimmed); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	parsed, err := jwt.ParseString(trimmed,
		jwt.WithKey(jwa.HS256, t.Secret),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithClock(jwt.ClockFunc(t.now)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	subject := parsed.Subject()
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// requireHS256 rejects tokens whose header declares any other algorithm, so
// a forged "none" or asymmetric header never reaches verification.
func requireHS256(token string) error {
	message, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return errors.New("token contains no signatures")
	}
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return errors.New("token missing protected headers")
		}
		if alg := headers.Algorithm(); alg != jwa.HS256 {
			return fmt.Errorf("unexpected token algorithm %s", alg)
		}
	}
	return nil
}
