// Package context carries request-scoped correlation values used by the
// logger and tracer.
package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	projectIDKey contextKey = "project_id"
	actorKey     contextKey = "actor"
)

type actorValue struct {
	Type string
	ID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

func ProjectIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(projectIDKey).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorValue{Type: actorType, ID: actorID})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey).(actorValue)
	if !ok {
		return "", ""
	}
	return value.Type, value.ID
}
