package middleware_test

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/relay"
	"relay/internal/relay/middleware"
	"relay/internal/testutil"
)

type staticKeys struct {
	kid string
	pub *rsa.PublicKey
}

func (s *staticKeys) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid != s.kid {
		return nil, errors.Newf("unknown kid %q", kid)
	}
	return s.pub, nil
}

func authChain(t *testing.T, keys relay.KeyProvider, cfg middleware.AuthConfig) (relay.Handler, *bool) {
	t.Helper()
	terminalCalled := false
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			terminalCalled = true
			return relay.NewResponse(http.StatusOK), nil
		}),
		middleware.Auth(keys, cfg, nil),
	)
	return handler, &terminalCalled
}

func TestAuthValidToken(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	principal := domain.Principal{ID: "user-1", Type: domain.PrincipalUser, Scopes: []domain.Scope{"things:read"}}
	token := testutil.IssueTestToken(t, kid, priv, principal, time.Minute)

	var seen domain.Principal
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			seen, _ = middleware.PrincipalFrom(req)
			return relay.NewResponse(http.StatusOK), nil
		}),
		middleware.Auth(&staticKeys{kid: kid, pub: pub}, middleware.AuthConfig{}, nil),
	)

	req := newRequest(http.MethodGet, "/things")
	req.Header().Set("Authorization", "Bearer "+token)

	resp, err := handler.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if seen.ID != "user-1" {
		t.Errorf("expected principal user-1, got %q", seen.ID)
	}
	if !seen.HasScope("things:read") {
		t.Error("expected scope carried into the principal")
	}
}

func TestAuthMissingHeader(t *testing.T) {
	kid, _, pub := testutil.GenerateTestKeyPair(t)
	handler, terminalCalled := authChain(t, &staticKeys{kid: kid, pub: pub}, middleware.AuthConfig{})

	resp, err := handler.Handle(newRequest(http.MethodGet, "/things"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if *terminalCalled {
		t.Error("terminal must not run without credentials")
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Status)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	token := testutil.IssueTestToken(t, kid, priv, domain.Principal{ID: "user-1"}, -time.Hour)
	handler, terminalCalled := authChain(t, &staticKeys{kid: kid, pub: pub}, middleware.AuthConfig{})

	req := newRequest(http.MethodGet, "/things")
	req.Header().Set("Authorization", "Bearer "+token)

	resp, err := handler.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if *terminalCalled {
		t.Error("terminal must not run with an expired token")
	}
	if resp.Status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.Status)
	}

	var errResp domain.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if errResp.Message != domain.ErrTokenExpired.Error() {
		t.Errorf("expected expiry called out, got %q", errResp.Message)
	}
}

func TestAuthRecastsDownstreamDenials(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	principal := domain.Principal{ID: "user-1", Scopes: []domain.Scope{"things:read"}}
	token := testutil.IssueTestToken(t, kid, priv, principal, time.Minute)

	cases := []struct {
		name       string
		downstream error
		want       int
	}{
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := relay.Chain(
				relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
					return nil, errors.Wrap(tc.downstream, "upstream said no")
				}),
				middleware.Auth(&staticKeys{kid: kid, pub: pub}, middleware.AuthConfig{}, nil),
			)

			req := newRequest(http.MethodGet, "/things")
			req.Header().Set("Authorization", "Bearer "+token)

			resp, err := handler.Handle(req)
			if err != nil {
				t.Fatalf("expected the error recast into a response, got %v", err)
			}
			if resp.Status != tc.want {
				t.Errorf("expected %d, got %d", tc.want, resp.Status)
			}
		})
	}
}

func TestAuthPublicPathBypasses(t *testing.T) {
	kid, _, pub := testutil.GenerateTestKeyPair(t)
	handler, terminalCalled := authChain(t, &staticKeys{kid: kid, pub: pub},
		middleware.AuthConfig{PublicPaths: []string{"/healthz"}})

	resp, err := handler.Handle(newRequest(http.MethodGet, "/healthz"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !*terminalCalled {
		t.Error("public paths must reach the terminal without credentials")
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
}

func TestAuthRequiredScope(t *testing.T) {
	kid, priv, pub := testutil.GenerateTestKeyPair(t)
	principal := domain.Principal{ID: "user-1", Scopes: []domain.Scope{"things:read"}}
	token := testutil.IssueTestToken(t, kid, priv, principal, time.Minute)
	handler, terminalCalled := authChain(t, &staticKeys{kid: kid, pub: pub},
		middleware.AuthConfig{RequiredScope: "things:write"})

	req := newRequest(http.MethodPost, "/things")
	req.Header().Set("Authorization", "Bearer "+token)

	resp, err := handler.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if *terminalCalled {
		t.Error("terminal must not run without the required scope")
	}
	if resp.Status != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.Status)
	}
}
