// Package access resolves the caller's profile for authenticated requests and
// provides the role gates used by admin and owner routes. Authorization always
// reads the resolved profile row; token claims only establish identity.
package access

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hardhat-labs/crewdeck/domains/profiles/be/service"
	platformauth "github.com/hardhat-labs/crewdeck/platform/go/auth"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type ctxKey struct{}

// WithProfileContext stores the resolved profile on the context.
func WithProfileContext(ctx context.Context, p service.Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the resolved profile, if the request passed WithProfile.
func FromContext(ctx context.Context) (service.Profile, bool) {
	p, ok := ctx.Value(ctxKey{}).(service.Profile)
	return p, ok
}

// Resolver defines the minimal lookup capability needed to attach a profile.
// Implemented by the profiles service.
type Resolver interface {
	EnsureFromCredentials(ctx context.Context, creds *platformauth.UserCredentials) (service.Profile, error)
}

// Config controls middleware behavior.
type Config struct {
	// Optional small in-memory TTL cache to avoid a DB hit per request; zero disables caching.
	CacheTTL time.Duration
}

// WithProfile resolves the caller's profile from JWT credentials and attaches it
// to the context. Requests without credentials get 401.
func WithProfile(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("access middleware: resolver is required")
	}

	var cache *profileCache
	if cfg.CacheTTL > 0 {
		cache = newProfileCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.ID == "" {
				problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
					"Unauthorized", "authentication is required"))
				return
			}

			if cached := cache.get(creds.ID); cached != nil {
				ctx := WithProfileContext(r.Context(), *cached)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			profile, err := resolver.EnsureFromCredentials(r.Context(), creds)
			if err != nil {
				problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
					"Unauthorized", "profile could not be resolved"))
				return
			}

			cache.put(creds.ID, profile)

			ctx := WithProfileContext(r.Context(), profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithOptionalProfile resolves the caller's profile when credentials are present
// and passes anonymous requests through untouched. Public endpoints use this so
// admin callers keep their role-gated query options.
func WithOptionalProfile(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("access middleware: resolver is required")
	}

	var cache *profileCache
	if cfg.CacheTTL > 0 {
		cache = newProfileCache(cfg.CacheTTL)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds == nil || creds.ID == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cached := cache.get(creds.ID); cached != nil {
				ctx := WithProfileContext(r.Context(), *cached)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			profile, err := resolver.EnsureFromCredentials(r.Context(), creds)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			cache.put(creds.ID, profile)

			ctx := WithProfileContext(r.Context(), profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose resolved profile role is not in the allowed set.
// Unresolved profiles get 401, wrong roles 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, ok := FromContext(r.Context())
			if !ok {
				problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
					"Unauthorized", "authentication is required"))
				return
			}

			if _, permitted := allowed[profile.Role]; !permitted {
				problem.Write(w, problem.New(http.StatusForbidden, problem.CodeForbidden,
					"Forbidden", "insufficient role"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type profileCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	profile   service.Profile
	expiresAt time.Time
}

func newProfileCache(ttl time.Duration) *profileCache {
	return &profileCache{ttl: ttl, items: make(map[string]cacheItem)}
}

func (c *profileCache) get(authUID string) *service.Profile {
	if c == nil {
		return nil
	}

	c.mu.RLock()
	item, ok := c.items[authUID]
	c.mu.RUnlock()

	if !ok || time.Now().After(item.expiresAt) {
		return nil
	}
	return &item.profile
}

func (c *profileCache) put(authUID string, profile service.Profile) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.items[authUID] = cacheItem{profile: profile, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
