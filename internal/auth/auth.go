package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnauthenticated is returned for a missing, malformed, invalid or expired credential.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the identity resolved from a bearer token.
type Principal struct {
	UserID string
	Email  string
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrUnauthenticated
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrUnauthenticated
	}
	return token, nil
}
