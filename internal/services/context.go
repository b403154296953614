package services

import "context"

type contextKey string

const (
	galleryIDKey contextKey = "gallery_id"
	hostKey      contextKey = "host"
	requestIDKey contextKey = "request_id"
)

// WithGalleryID annotates context with the queue gallery identifier.
func WithGalleryID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, galleryIDKey, id)
}

// GalleryIDFromContext extracts the gallery identifier if present.
func GalleryIDFromContext(ctx context.Context) (int64, bool) {
	switch v := ctx.Value(galleryIDKey).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// WithHost annotates context with the file-host name work is running against.
func WithHost(ctx context.Context, host string) context.Context {
	if host == "" {
		return ctx
	}
	return context.WithValue(ctx, hostKey, host)
}

// HostFromContext returns the host name if present.
func HostFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(hostKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
