package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tably/orderd/internal/directory"
)

type sessionStub struct {
	sessions map[string]*directory.Session
}

func (s *sessionStub) GetSession(_ context.Context, id string) (*directory.Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, directory.ErrNotFound
}

const testSecret = "test-secret"

func signToken(t *testing.T, secret, userID, sessionID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newAuth(sessions map[string]*directory.Session) *Authenticator {
	return &Authenticator{Secret: testSecret, Sessions: &sessionStub{sessions: sessions}}
}

func TestAuthenticate_NoTokenIsPublic(t *testing.T) {
	state, userID, err := newAuth(nil).Authenticate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
	assert.Empty(t, userID)
}

func TestAuthenticate_MalformedTokenDropsConnection(t *testing.T) {
	_, _, err := newAuth(nil).Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestAuthenticate_ValidSession(t *testing.T) {
	auth := newAuth(map[string]*directory.Session{
		"s1": {ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)},
	})

	state, userID, err := auth.Authenticate(context.Background(), signToken(t, testSecret, "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)
	assert.Equal(t, "u1", userID)
}

func TestAuthenticate_RevokedSessionDowngradesToPublic(t *testing.T) {
	revoked := time.Now().Add(-time.Minute)
	auth := newAuth(map[string]*directory.Session{
		"s1": {ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour), RevokedAt: &revoked},
	})

	state, _, err := auth.Authenticate(context.Background(), signToken(t, testSecret, "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
}

func TestAuthenticate_ExpiredSessionDowngradesToPublic(t *testing.T) {
	auth := newAuth(map[string]*directory.Session{
		"s1": {ID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour)},
	})

	state, _, err := auth.Authenticate(context.Background(), signToken(t, testSecret, "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
}

func TestAuthenticate_UnknownSessionDowngradesToPublic(t *testing.T) {
	state, _, err := newAuth(nil).Authenticate(context.Background(), signToken(t, testSecret, "u1", "ghost"))
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
}

func TestAuthenticate_WrongSignatureDowngradesToPublic(t *testing.T) {
	state, _, err := newAuth(nil).Authenticate(context.Background(), signToken(t, "other-secret", "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
}

func TestAuthenticate_SessionUserMismatchDowngradesToPublic(t *testing.T) {
	auth := newAuth(map[string]*directory.Session{
		"s1": {ID: "s1", UserID: "someone-else", ExpiresAt: time.Now().Add(time.Hour)},
	})

	state, _, err := auth.Authenticate(context.Background(), signToken(t, testSecret, "u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, StatePublic, state)
}
