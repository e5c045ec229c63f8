package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	authgo "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

// SupabaseVerifier validates access tokens against a Supabase (GoTrue) project.
type SupabaseVerifier struct {
	client  authgo.Client
	timeout time.Duration
}

// NewSupabaseVerifier targets the auth API under baseURL, e.g.
// https://project.supabase.co.
func NewSupabaseVerifier(baseURL, anonKey string, timeout time.Duration) *SupabaseVerifier {
	client := authgo.New("", anonKey).
		WithCustomAuthURL(strings.TrimRight(baseURL, "/") + "/auth/v1")
	return &SupabaseVerifier{client: client, timeout: timeout}
}

type userResult struct {
	user *types.UserResponse
	err  error
}

// Verify resolves token to a Principal. Any client error, cancelled context
// or response without a user id yields ErrUnauthenticated.
func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	// GetUser takes no context; the buffered channel lets it finish after we stop waiting.
	done := make(chan userResult, 1)
	go func() {
		user, err := v.client.WithToken(token).GetUser()
		done <- userResult{user: user, err: err}
	}()

	var res userResult
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ErrUnauthenticated, ctx.Err().Error())
	case res = <-done:
	}

	if res.err != nil {
		return nil, errors.Wrap(ErrUnauthenticated, res.err.Error())
	}
	if res.user == nil || res.user.ID == uuid.Nil {
		return nil, errors.Wrap(ErrUnauthenticated, "identity response carried no user")
	}

	return &Principal{UserID: res.user.ID.String(), Email: res.user.Email}, nil
}
