package realtime

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tably/orderd/internal/directory"
)

type State int

const (
	StateUnauthenticated State = iota
	StatePublic
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StatePublic:
		return "public"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ErrBadToken marks a syntactically invalid token: the connection is dropped
// rather than downgraded.
var ErrBadToken = errors.New("malformed token")

// Conn is one live subscriber. The state is settled once during the handshake
// and never changes for the connection's lifetime; a new token needs a new
// connection.
type Conn struct {
	ID     string
	State  State
	UserID string

	send chan Event
}

// sendBuffer bounds per-connection backlog; a full buffer drops events
// (delivery is best-effort, at most once).
const sendBuffer = 64

func newConn(state State, userID string) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		State:  state,
		UserID: userID,
		send:   make(chan Event, sendBuffer),
	}
}

// Events is the connection's outbound stream, closed when the hub drops the
// connection.
func (c *Conn) Events() <-chan Event { return c.send }

func (c *Conn) push(ev Event) {
	select {
	case c.send <- ev:
	default:
		log.Printf("[realtime] conn=%s dropping event type=%s (slow consumer)", c.ID, ev.Type)
	}
}

// SessionReader is the narrow slice of the directory the authenticator needs.
type SessionReader interface {
	GetSession(ctx context.Context, id string) (*directory.Session, error)
}

// Authenticator resolves a bearer token to a terminal connection state. One
// storage round-trip; expired or revoked sessions downgrade to Public instead
// of failing the connection.
type Authenticator struct {
	Secret   string
	Sessions SessionReader
}

type sessionClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Authenticate maps a raw token to (state, userID). An empty token is a
// public viewer; a token that does not parse at all is ErrBadToken.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (State, string, error) {
	if token == "" {
		return StatePublic, "", nil
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(a.Secret), nil
	})
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return StateUnauthenticated, "", ErrBadToken
		}
		// expired signature window, wrong key etc: read-only viewer
		return StatePublic, "", nil
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return StatePublic, "", nil
	}
	sess, err := a.Sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return StatePublic, "", nil
	}
	if sess.UserID != claims.UserID || !sess.Active(time.Now()) {
		return StatePublic, "", nil
	}
	return StateAuthenticated, sess.UserID, nil
}
