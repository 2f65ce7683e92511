package telemetry

import (
	"context"
	"time"
)

type softDeadlineKey struct{}

// WithSoftDeadline attaches an advisory deadline to ctx. Batch operations
// stop admitting new per-location work once it passes, returning whatever
// partial results were produced, while in-flight work keeps running until the
// context's hard deadline.
func WithSoftDeadline(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, softDeadlineKey{}, t)
}

// SoftDeadlineExceeded reports whether ctx carries a soft deadline that has
// already passed.
func SoftDeadlineExceeded(ctx context.Context) bool {
	t, ok := ctx.Value(softDeadlineKey{}).(time.Time)
	return ok && time.Now().After(t)
}
