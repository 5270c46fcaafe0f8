package auth

import (
	"context"

	"github.com/google/uuid"

	"ugc-maroc-backend/internal/models"
)

// --- Context Helper Functions ---

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the authenticated user id from the request
// context. Returns the id and true if found, otherwise uuid.Nil and false.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// WithPrincipal returns a context carrying cached principal data.
func WithPrincipal(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, PrincipalKey, user)
}

// GetPrincipalFromContext retrieves cached principal data, if the session
// cache attached any. Absence just means the downstream lookup runs.
func GetPrincipalFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(PrincipalKey).(*models.User)
	return user, ok
}
