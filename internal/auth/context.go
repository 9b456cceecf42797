package auth

import (
	"context"

	"github.com/jw6ventures/campuscal/internal/calendar"
)

type contextKey string

const (
	contextKeyUser      contextKey = "user"
	contextKeySessionID contextKey = "session_id"
)

func WithUser(ctx context.Context, user *calendar.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func UserFromContext(ctx context.Context) (*calendar.User, bool) {
	u, ok := ctx.Value(contextKeyUser).(*calendar.User)
	return u, ok && u != nil
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeySessionID).(string)
	return s
}
