// Package session keeps the per-user dialogue state between turns.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 20 * time.Minute

var ErrEmptyUserID = errors.New("session: empty user id")

// Store persists sessions. Get never returns nil for a valid user id:
// unknown or expired users receive a fresh idle session.
// Every Get and Save pushes the expiry to now + TTL.
type Store interface {
	Get(ctx context.Context, userID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Clear(ctx context.Context, userID string) error
}
