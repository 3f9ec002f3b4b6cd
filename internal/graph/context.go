package graph

import (
	"context"
	"sync"

	"scanhub/internal/models"
)

type ctxKey struct{}

// requestAuth memoizes the guard so nested resolvers authenticate once per
// request.
type requestAuth struct {
	token string
	once  sync.Once
	user  models.User
	err   error
}

func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, &requestAuth{token: token})
}

func authFrom(ctx context.Context) *requestAuth {
	if ra, ok := ctx.Value(ctxKey{}).(*requestAuth); ok {
		return ra
	}
	return &requestAuth{}
}
