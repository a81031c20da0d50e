package cognito

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

var (
	// ErrKeyNotFound is returned when no key in the current JWKS matches the requested kid
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrJWKSUnavailable is returned when the JWKS endpoint cannot be reached
	ErrJWKSUnavailable = errors.New("failed to fetch JWKS")
)

// JWKS represents the JSON Web Key Set published by Cognito
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a single JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet is one fetched generation of the JWKS with its RSA keys already
// parsed. Replaced wholesale on refresh; never mutated after construction.
type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// KeySet fetches and caches the user pool's public signing keys.
// The cached set is never served past its TTL; an expired set forces a
// refetch before any lookup. Concurrent refreshes are last-writer-wins,
// which is safe because each set is immutable once built.
type KeySet struct {
	jwksURL    string
	ttl        time.Duration
	httpClient *http.Client

	mu      sync.RWMutex
	current *keySet
}

// NewKeySet creates a key set backed by the given JWKS URL.
// A zero ttl defaults to 1 hour, a zero httpTimeout to 10 seconds.
func NewKeySet(jwksURL string, ttl, httpTimeout time.Duration) *KeySet {
	if ttl == 0 {
		ttl = 1 * time.Hour
	}
	if httpTimeout == 0 {
		httpTimeout = 10 * time.Second
	}
	return &KeySet{
		jwksURL: jwksURL,
		ttl:     ttl,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// Resolve returns the RSA public key for the given kid, refreshing the
// cached JWKS first when it is empty or older than the TTL. At most one
// fetch is attempted per call.
func (ks *KeySet) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, err := ks.currentSet(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := set.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: kid %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// currentSet returns the cached key set, fetching a fresh one when the
// cache is empty or expired.
func (ks *KeySet) currentSet(ctx context.Context) (*keySet, error) {
	ks.mu.RLock()
	set := ks.current
	ks.mu.RUnlock()

	if set != nil && time.Since(set.fetchedAt) < ks.ttl {
		return set, nil
	}

	return ks.refresh(ctx)
}

// refresh fetches the JWKS and replaces the cached set atomically.
func (ks *KeySet) refresh(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := ks.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSUnavailable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	set := &keySet{
		keys:      make(map[string]*rsa.PublicKey, len(jwks.Keys)),
		fetchedAt: time.Now(),
	}
	for i := range jwks.Keys {
		key, err := jwkToRSAPublicKey(&jwks.Keys[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWK %s: %w", jwks.Keys[i].Kid, err)
		}
		set.keys[jwks.Keys[i].Kid] = key
	}

	ks.mu.Lock()
	ks.current = set
	ks.mu.Unlock()

	return set, nil
}

// Invalidate drops the cached key set, forcing a fetch on the next lookup
func (ks *KeySet) Invalidate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.current = nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
