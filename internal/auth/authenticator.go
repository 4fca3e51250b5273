package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-support-chat/internal/cache"
	"github.com/weiawesome/wes-support-chat/internal/domain"
	"github.com/weiawesome/wes-support-chat/internal/repository"
	"github.com/weiawesome/wes-support-chat/pkg/jwt"
	"github.com/weiawesome/wes-support-chat/pkg/log"
	"github.com/weiawesome/wes-support-chat/pkg/middleware"
)

// lookupTimeout bounds a shared identity lookup, which outlives the
// request that started it.
const lookupTimeout = 5 * time.Second

// Authenticator resolves a bearer credential into the Identity bound to a
// connection. Lookups go cache first, then the users table.
type Authenticator struct {
	validator middleware.TokenValidator
	users     repository.UserRepository
	cache     cache.IdentityCache
	cacheTTL  time.Duration
	sf        singleflight.Group
}

// NewAuthenticator creates an Authenticator. identityCache may be nil.
func NewAuthenticator(
	validator middleware.TokenValidator,
	users repository.UserRepository,
	identityCache cache.IdentityCache,
	cacheTTL time.Duration,
) *Authenticator {
	return &Authenticator{
		validator: validator,
		users:     users,
		cache:     identityCache,
		cacheTTL:  cacheTTL,
	}
}

// Authenticate validates token and loads its identity. Failures are
// *domain.AuthError, except an unreachable user store which is a
// *domain.TransientStoreError.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, &domain.AuthError{Reason: domain.AuthInvalid}
	}

	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, &domain.AuthError{Reason: domain.AuthExpired}
		}
		return nil, &domain.AuthError{Reason: domain.AuthInvalid}
	}
	if claims.UserID == "" {
		return nil, &domain.AuthError{Reason: domain.AuthInvalid}
	}

	return a.Resolve(ctx, claims.UserID)
}

// Resolve loads the identity of an already validated user id. An unknown id
// is a *domain.AuthError with reason unknown.
func (a *Authenticator) Resolve(ctx context.Context, userID string) (*domain.Identity, error) {
	result, err, _ := a.sf.Do(userID, func() (interface{}, error) {
		// Other handshakes may be waiting on this lookup, so the first
		// caller going away must not cancel it.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return a.lookup(lookupCtx, userID)
	})
	if err != nil {
		return nil, err
	}

	identity, ok := result.(*domain.Identity)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	// Callers own their copy; the singleflight result is shared.
	out := *identity
	return &out, nil
}

// Invalidate drops a cached identity, e.g. after its role changed.
func (a *Authenticator) Invalidate(ctx context.Context, userID string) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete(ctx, userID)
}

func (a *Authenticator) lookup(ctx context.Context, userID string) (*domain.Identity, error) {
	if a.cache != nil {
		cached, err := a.cache.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("identity cache get error")
		}
	}

	identity, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.AuthError{Reason: domain.AuthUnknown}
		}
		return nil, &domain.TransientStoreError{Op: "resolve identity", Err: err}
	}

	if a.cache != nil {
		go func(id domain.Identity) {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.cache.Set(cacheCtx, &id, a.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldUserID, id.ID).Msg("identity cache set error")
			}
		}(*identity)
	}

	return identity, nil
}
