package client

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrTokenUnavailable is returned when a deferred token cannot be resolved.
var ErrTokenUnavailable = errors.New("access token unavailable")

// Token is either a LiteralToken or a DeferredToken. A token that resolves
// to "" is treated as absent: no Authorization header is installed and the
// caller's headers are kept.
type Token interface {
	resolve(ctx context.Context) (string, error)
}

// LiteralToken is an access token known up front.
type LiteralToken string

func (t LiteralToken) resolve(context.Context) (string, error) {
	return string(t), nil
}

// DeferredToken obtains an access token when the request is normalized.
// An empty result means the request is sent unauthenticated.
type DeferredToken func(ctx context.Context) (string, error)

func (t DeferredToken) resolve(ctx context.Context) (string, error) {
	if t == nil {
		return "", nil
	}
	token, err := t(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	return token, nil
}

// TokenSource adapts an oauth2.TokenSource, typically one returned by
// oauth2.Config.TokenSource for an EVE SSO refresh token.
func TokenSource(src oauth2.TokenSource) DeferredToken {
	return func(context.Context) (string, error) {
		tok, err := src.Token()
		if err != nil {
			return "", err
		}
		if !tok.Valid() {
			return "", errors.New("token source returned an invalid token")
		}
		return tok.AccessToken, nil
	}
}
