package shared

import (
	"context"

	"github.com/google/uuid"
)

type userContextKey struct{}

// ContextWithUserID stores the authenticated user id in context.
func ContextWithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userContextKey{}, id)
}

// UserIDFromContext extracts the authenticated user id from context.
// The zero UUID means no identity was attached.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userContextKey{}).(uuid.UUID)
	return id
}
