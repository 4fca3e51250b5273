package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx returns the logger stored in ctx, or the global one.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// ConnLogger derives the logger of one websocket connection.
func ConnLogger(base zerolog.Logger, connID, userID, role string) zerolog.Logger {
	return base.With().
		Str(FieldConnID, connID).
		Str(FieldUserID, userID).
		Str(FieldRole, role).
		Logger()
}

// WithSession tags the logger in ctx with a chat session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(FieldSessionID, sessionID).Logger())
}
