// Package jwks implements the KeyProvider port against a JWKS endpoint.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Client fetches and caches public keys from a JWKS endpoint.
type Client struct {
	endpoint   string
	minRefresh time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	lastFetch time.Time
}

// NewClient creates a JWKS client that caches keys and won't re-fetch
// more often than minRefresh.
func NewClient(endpoint string, minRefresh time.Duration) *Client {
	return &Client{
		endpoint:   endpoint,
		minRefresh: minRefresh,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
}

// GetKey returns the public key for the given key ID.
// Fetches from the JWKS endpoint on first call and caches the result.
// If the kid is not cached and enough time has passed since the last
// fetch, it re-fetches to pick up key rotations.
func (c *Client) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, errors.Wrapf(err, "fetching key %q", kid)
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Newf("key ID %q not found in JWKS", kid)
	}
	return key, nil
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may already have refreshed
	if !c.lastFetch.IsZero() && time.Since(c.lastFetch) < c.minRefresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "creating JWKS request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetching JWKS")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return errors.Wrap(err, "decoding JWKS")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Alg != "RS256" {
			slog.Debug("skipping non-RS256 JWKS key", "kid", k.Kid, "kty", k.Kty, "alg", k.Alg)
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			slog.Warn("failed to parse JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	c.keys = keys
	c.lastFetch = time.Now()
	return nil
}

type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding n")
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, errors.Wrap(err, "decoding e")
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{
		N: n,
		E: int(e.Int64()),
	}, nil
}
