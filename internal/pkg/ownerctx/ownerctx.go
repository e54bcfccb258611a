package ownerctx

import "context"

type ctxKey struct{}

// WithOwner attaches the owner the current work is billed to. Handlers set
// it from the authenticated user; background jobs set it per record.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

func OwnerID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
