package terminal

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"relay/internal/domain"
	"relay/internal/platform/telemetry"
	"relay/internal/relay"
	"relay/internal/relay/middleware"
)

// Upstream forwards requests to a fixed backend and relays the backend's
// answer. The relayed body streams straight off the backend connection;
// the adapter closes it after serialization.
type Upstream struct {
	name    string
	base    *url.URL
	client  *http.Client
	metrics *telemetry.PipelineMetrics
}

// NewUpstream creates an upstream terminal forwarding to rawURL.
// The metrics parameter is optional; pass nil to skip metric recording.
func NewUpstream(rawURL, name string, m *telemetry.PipelineMetrics) (*Upstream, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing upstream URL %q", rawURL)
	}
	return &Upstream{
		name:    name,
		base:    base,
		client:  &http.Client{},
		metrics: m,
	}, nil
}

func (u *Upstream) Handle(req *relay.Request) (*relay.Response, error) {
	target := *u.base
	target.Path = joinPath(u.base.Path, req.Path())
	target.RawQuery = req.RawQuery()

	out, err := http.NewRequestWithContext(req.Context(), req.Method(), target.String(), req.Body())
	if err != nil {
		return nil, errors.Wrap(err, "building upstream request")
	}
	out.Header = req.Header().Clone()

	// Strip Authorization — upstreams trust principal headers
	out.Header.Del("Authorization")
	if p, ok := middleware.PrincipalFrom(req); ok {
		out.Header.Set("X-Principal-ID", p.ID)
		out.Header.Set("X-Principal-Scopes", joinScopes(p.Scopes))
	}
	if id := middleware.RequestIDFrom(req); id != "" {
		out.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	backendResp, err := u.client.Do(out)
	if err != nil {
		return nil, &relay.StatusError{
			Code: http.StatusBadGateway,
			Err:  errors.Wrapf(err, "forwarding to upstream %q", u.name),
		}
	}

	if u.metrics != nil {
		u.metrics.RecordUpstreamRequest(req.Context(), u.name, backendResp.StatusCode, time.Since(start).Seconds())
	}

	return &relay.Response{
		Status: backendResp.StatusCode,
		Header: backendResp.Header.Clone(),
		Body:   backendResp.Body,
	}, nil
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	joined := path.Join(base, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

func joinScopes(scopes []domain.Scope) string {
	var b strings.Builder
	for i, s := range scopes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(string(s))
	}
	return b.String()
}
