// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package keys

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/openchami/reportsmith/pkg/logging"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrKeyNotFound indicates the key set has no usable signing key for a kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrJWKSUnavailable indicates the key set endpoint could not be read
	ErrJWKSUnavailable = errors.New("key set unavailable")

	// ErrUnsupportedAlgorithm indicates a token or key declares an algorithm other than RS256
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

const (
	DefaultCacheMaxEntries = 5
	DefaultCacheMaxAge     = 10 * time.Minute
	DefaultFetchTimeout    = 10 * time.Second
)

// Observer receives key cache events. pkg/metrics implements it.
type Observer interface {
	KeyCacheHit()
	KeyCacheMiss()
	KeyFetchFailed()
}

type nopObserver struct{}

func (nopObserver) KeyCacheHit()    {}
func (nopObserver) KeyCacheMiss()   {}
func (nopObserver) KeyFetchFailed() {}

// ResolverConfig configures a Resolver
type ResolverConfig struct {
	// JWKSURL is the identity provider's published key set
	JWKSURL string
	// CacheMaxEntries bounds how many keys are kept; oldest are evicted first
	CacheMaxEntries int
	// CacheMaxAge is how long a fetched key stays fresh
	CacheMaxAge time.Duration
	// FetchTimeout bounds a single key set request
	FetchTimeout time.Duration
	// HTTPClient overrides the client used for fetching; its timeout is kept
	HTTPClient *http.Client
	// Observer is notified of cache hits, misses and fetch failures
	Observer Observer
}

// Resolver maps key identifiers to RSA public keys published at a JWKS
// endpoint. Keys are fetched on demand and cached for a bounded time and
// count. Concurrent misses for the same kid share one fetch.
type Resolver struct {
	jwksURL    string
	httpClient *http.Client
	cache      *expirable.LRU[string, *rsa.PublicKey]
	group      singleflight.Group
	observer   Observer
	logger     *logging.StructuredLogger
}

// NewResolver creates a Resolver, filling unset config fields with defaults
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if config.JWKSURL == "" {
		return nil, fmt.Errorf("JWKS URL is required")
	}
	if config.CacheMaxEntries <= 0 {
		config.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if config.CacheMaxAge <= 0 {
		config.CacheMaxAge = DefaultCacheMaxAge
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.FetchTimeout}
	}

	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Resolver{
		jwksURL:    config.JWKSURL,
		httpClient: httpClient,
		cache:      expirable.NewLRU[string, *rsa.PublicKey](config.CacheMaxEntries, nil, config.CacheMaxAge),
		observer:   observer,
		logger:     logging.NewStructuredLogger("keys"),
	}, nil
}

// JWKSURL returns the key set endpoint this resolver reads
func (r *Resolver) JWKSURL() string {
	return r.jwksURL
}

// Resolve returns the public key for kid, fetching the key set on a cache miss.
// The fetch is not retried; a failed lookup must be treated as an
// unverifiable token.
func (r *Resolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, fmt.Errorf("%w: empty key ID", ErrKeyNotFound)
	}

	if key, ok := r.cache.Get(kid); ok {
		r.observer.KeyCacheHit()
		return key, nil
	}
	r.observer.KeyCacheMiss()

	ch := r.group.DoChan(kid, func() (interface{}, error) {
		// A concurrent caller may have filled the cache while we queued.
		if key, ok := r.cache.Get(kid); ok {
			return key, nil
		}
		return r.fetch(kid)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*rsa.PublicKey), nil
	}
}

// fetch reads the key set and caches the key for kid. It runs detached from
// any single request context so a cancelled caller does not fail the
// others waiting on the same fetch; the HTTP client timeout bounds it.
func (r *Resolver) fetch(kid string) (*rsa.PublicKey, error) {
	start := time.Now()
	key, err := r.fetchKey(context.Background(), kid)
	r.logger.LogKeyFetch(kid, err, time.Since(start))
	if err != nil {
		r.observer.KeyFetchFailed()
		return nil, err
	}

	r.cache.Add(kid, key)
	return key, nil
}

func (r *Resolver) fetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, err := jwk.Fetch(ctx, r.jwksURL, jwk.WithHTTPClient(r.httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	return rsaPublicKey(key)
}

// rsaPublicKey accepts only RSA signing keys usable with RS256
func rsaPublicKey(key jwk.Key) (*rsa.PublicKey, error) {
	if key.KeyType() != jwa.RSA {
		return nil, fmt.Errorf("%w: kid %q has key type %s", ErrKeyNotFound, key.KeyID(), key.KeyType())
	}
	if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
		return nil, fmt.Errorf("%w: kid %q is not a signing key", ErrKeyNotFound, key.KeyID())
	}
	if alg := key.Algorithm().String(); alg != "" && alg != AcceptedAlgorithm {
		return nil, fmt.Errorf("%w: kid %q declares %s", ErrUnsupportedAlgorithm, key.KeyID(), alg)
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to export kid %q: %v", ErrKeyNotFound, key.KeyID(), err)
	}
	publicKey, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: kid %q is not an RSA public key", ErrKeyNotFound, key.KeyID())
	}
	return publicKey, nil
}

// Len returns the number of cached keys
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// Purge drops every cached key
func (r *Resolver) Purge() {
	r.cache.Purge()
}
