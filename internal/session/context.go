package session

import "context"

type managerContextKey struct{}

// ContextWithManager stores the session engine in context.
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerContextKey{}, m)
}

// FromContext extracts the session engine from context, nil when absent.
func FromContext(ctx context.Context) *Manager {
	m, _ := ctx.Value(managerContextKey{}).(*Manager)
	return m
}

type sidContextKey struct{}

// ContextWithSID stores the session ID in context.
func ContextWithSID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sidContextKey{}, sid)
}

// SIDFromContext extracts the session ID from context, empty when absent.
func SIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sidContextKey{}).(string)
	return sid
}
