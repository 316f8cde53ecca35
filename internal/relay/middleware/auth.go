package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"relay/internal/domain"
	"relay/internal/platform/telemetry"
	"relay/internal/relay"
)

const (
	principalKey = "relay.principal"
	maxClockSkew = 30 * time.Second
)

// AuthConfig controls the Auth middleware.
type AuthConfig struct {
	// PublicPaths are exempt from authentication.
	PublicPaths []string
	// RequiredScope, when non-empty, must be present in the token's
	// scopes; requests without it receive 403.
	RequiredScope domain.Scope
}

// Auth returns a middleware that validates JWT Bearer tokens.
// It uses the provided KeyProvider to look up public keys by kid and
// stores the authenticated principal in the request extensions. Downstream
// errors matching domain.ErrUnauthorized or domain.ErrForbidden are caught
// on the way back out and recast into 401/403 responses.
// The metrics parameter is optional; pass nil to skip metric recording.
func Auth(keys relay.KeyProvider, cfg AuthConfig, m *telemetry.PipelineMetrics) relay.Middleware {
	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = struct{}{}
	}
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			if _, ok := public[req.Path()]; ok {
				resp, err := next.Handle(req)
				return recastDenied(req, m, resp, err)
			}

			tokenStr, ok := bearerToken(req)
			if !ok {
				return authFailure(req, m, "missing or malformed authorization header"), nil
			}

			// SECURITY: Only allow RS256 — prevents algorithm confusion attacks
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
				kidRaw, ok := t.Header["kid"]
				if !ok {
					return nil, domain.ErrInvalidToken
				}
				kid, ok := kidRaw.(string)
				if !ok {
					return nil, domain.ErrInvalidToken
				}
				return keys.GetKey(req.Context(), kid)
			},
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithLeeway(maxClockSkew),
			)
			if err != nil {
				slog.Debug("auth validation failed", "error", err)
				if errors.Is(err, jwt.ErrTokenExpired) {
					return authFailure(req, m, domain.ErrTokenExpired.Error()), nil
				}
				return authFailure(req, m, domain.ErrInvalidToken.Error()), nil
			}
			if !token.Valid {
				return authFailure(req, m, "invalid token"), nil
			}

			principal, err := principalFromClaims(token.Claims)
			if err != nil {
				slog.Debug("extracting principal", "error", err)
				return authFailure(req, m, "invalid token claims"), nil
			}

			if cfg.RequiredScope != "" && !principal.HasScope(cfg.RequiredScope) {
				if m != nil {
					m.RecordAuthValidation(req.Context(), "forbidden")
					m.RecordShortCircuit(req.Context(), "auth")
				}
				return envelope(http.StatusForbidden, domain.ErrorResponse{
					Error:   "forbidden",
					Message: "insufficient permissions",
				}), nil
			}

			if m != nil {
				m.RecordAuthValidation(req.Context(), "success")
			}
			req.Set(principalKey, principal)
			resp, err := next.Handle(req)
			return recastDenied(req, m, resp, err)
		})
	}
}

// recastDenied translates downstream authorization sentinels into their
// canonical responses, the same contract MaxBodySize applies to
// domain.ErrBodyTooLarge.
func recastDenied(req *relay.Request, m *telemetry.PipelineMetrics, resp *relay.Response, err error) (*relay.Response, error) {
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, domain.ErrForbidden):
		if m != nil {
			m.RecordAuthValidation(req.Context(), "forbidden")
		}
		return envelope(http.StatusForbidden, domain.ErrorResponse{
			Error:   "forbidden",
			Message: "insufficient permissions",
		}), nil
	case errors.Is(err, domain.ErrUnauthorized):
		if m != nil {
			m.RecordAuthValidation(req.Context(), "failure")
		}
		return envelope(http.StatusUnauthorized, domain.ErrorResponse{
			Error:   "unauthorized",
			Message: domain.ErrUnauthorized.Error(),
		}), nil
	}
	return resp, err
}

// PrincipalFrom returns the principal stored by Auth.
func PrincipalFrom(req *relay.Request) (domain.Principal, bool) {
	v, _ := req.Value(principalKey)
	p, ok := v.(domain.Principal)
	return p, ok
}

func authFailure(req *relay.Request, m *telemetry.PipelineMetrics, msg string) *relay.Response {
	if m != nil {
		m.RecordAuthValidation(req.Context(), "failure")
		m.RecordShortCircuit(req.Context(), "auth")
	}
	return envelope(http.StatusUnauthorized, domain.ErrorResponse{
		Error:   "unauthorized",
		Message: msg,
	})
}

func bearerToken(req *relay.Request) (string, bool) {
	auth := req.HeaderValue("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func principalFromClaims(claims jwt.Claims) (domain.Principal, error) {
	mc, ok := claims.(jwt.MapClaims)
	if !ok {
		return domain.Principal{}, domain.ErrInvalidToken
	}

	sub, _ := mc["sub"].(string)
	if sub == "" {
		return domain.Principal{}, domain.ErrInvalidToken
	}

	ptype := domain.PrincipalUser
	if typeStr, ok := mc["type"].(string); ok && typeStr == "service" {
		ptype = domain.PrincipalService
	}

	var scopes []domain.Scope
	if scopeStr, ok := mc["scopes"].(string); ok && scopeStr != "" {
		fields := strings.Fields(scopeStr)
		scopes = make([]domain.Scope, len(fields))
		for i, s := range fields {
			scopes[i] = domain.Scope(s)
		}
	}

	return domain.Principal{
		ID:     sub,
		Type:   ptype,
		Scopes: scopes,
	}, nil
}
