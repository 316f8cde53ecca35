package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"relay/internal/platform/telemetry"
	"relay/internal/relay"
)

// FlaggedKey is the extension key marking a request as bot traffic.
const FlaggedKey = "honeypot.flagged"

// HoneypotConfig controls the Honeypot middleware.
type HoneypotConfig struct {
	// TrapField is the name of the hidden form field planted in HTML
	// responses. Bots that fill it in flag themselves on the next request.
	TrapField string
	// TrapHeader, when non-empty, flags any request carrying that header.
	TrapHeader string
}

func (c HoneypotConfig) withDefaults() HoneypotConfig {
	if c.TrapField == "" {
		c.TrapField = "website_url"
	}
	return c
}

// Honeypot answers flagged bot traffic with an empty 200 so the sender
// learns nothing, never invoking downstream handlers. For everyone else it
// invokes downstream and plants a hidden trap field in HTML response
// bodies. The metrics parameter is optional; pass nil to skip metric
// recording.
func Honeypot(cfg HoneypotConfig, m *telemetry.PipelineMetrics) relay.Middleware {
	cfg = cfg.withDefaults()
	return func(next relay.Handler) relay.Handler {
		return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			if flagged(req, cfg) {
				if m != nil {
					m.RecordShortCircuit(req.Context(), "honeypot")
				}
				resp := relay.NewResponse(http.StatusOK)
				resp.Header.Set("Content-Type", "text/html")
				resp.Header.Set("Content-Length", "0")
				return resp, nil
			}

			resp, err := next.Handle(req)
			if err != nil {
				return nil, err
			}
			return plantTrap(resp, cfg.TrapField)
		})
	}
}

// Flag marks a request as bot traffic. Detector middleware upstream of
// Honeypot uses this.
func Flag(req *relay.Request) {
	req.Set(FlaggedKey, true)
}

func flagged(req *relay.Request, cfg HoneypotConfig) bool {
	if v, ok := req.Value(FlaggedKey); ok {
		if b, _ := v.(bool); b {
			return true
		}
	}
	if cfg.TrapHeader != "" && req.HeaderValue(cfg.TrapHeader) != "" {
		return true
	}
	// A filled-in trap field means a bot submitted the hidden input.
	if req.Query().Get(cfg.TrapField) != "" {
		return true
	}
	return false
}

// plantTrap buffers HTML bodies and inserts the hidden trap input before
// the closing form tag, fixing up Content-Length. Non-HTML responses pass
// through untouched. Bodies are single-pass, so rewriting one requires
// buffering it.
func plantTrap(resp *relay.Response, field string) (*relay.Response, error) {
	if resp.Body == nil || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return resp, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if c, ok := resp.Body.(io.Closer); ok {
		c.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "buffering response body")
	}

	trap := fmt.Sprintf(`<input type="hidden" name=%q value="" tabindex="-1" autocomplete="off">`, field)
	var out []byte
	if idx := bytes.LastIndex(raw, []byte("</form>")); idx >= 0 {
		out = append(out, raw[:idx]...)
		out = append(out, trap...)
		out = append(out, raw[idx:]...)
	} else {
		out = append(raw, []byte("<!-- "+field+" -->")...)
	}

	resp.Body = bytes.NewReader(out)
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	return resp, nil
}
