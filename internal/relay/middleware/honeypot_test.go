package middleware_test

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"relay/internal/relay"
	"relay/internal/relay/middleware"
)

func htmlTerminal(body string) relay.Handler {
	return relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
		resp := relay.NewResponse(http.StatusOK)
		resp.Header.Set("Content-Type", "text/html")
		resp.Body = strings.NewReader(body)
		return resp, nil
	})
}

func TestHoneypotShortCircuitsFlaggedRequest(t *testing.T) {
	terminalCalled := false
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			terminalCalled = true
			return relay.Text(http.StatusOK, "Hello World"), nil
		}),
		middleware.Honeypot(middleware.HoneypotConfig{}, nil),
	)

	req := newRequest(http.MethodPost, "/signup")
	middleware.Flag(req)

	resp, err := handler.Handle(req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if terminalCalled {
		t.Error("terminal must not run for flagged traffic")
	}
	if resp.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "0" {
		t.Errorf("Content-Length = %q", cl)
	}
	if readBody(resp) != "" {
		t.Error("expected empty body for flagged traffic")
	}
}

func TestHoneypotFlagsFilledTrapField(t *testing.T) {
	terminalCalled := false
	handler := relay.Chain(
		relay.HandlerFunc(func(req *relay.Request) (*relay.Response, error) {
			terminalCalled = true
			return relay.NewResponse(http.StatusOK), nil
		}),
		middleware.Honeypot(middleware.HoneypotConfig{TrapField: "website_url"}, nil),
	)

	req := relay.NewRequest(context.Background(), relay.RequestInfo{
		Method:   http.MethodGet,
		Path:     "/signup",
		RawQuery: "website_url=http%3A%2F%2Fspam.example",
	})

	if _, err := handler.Handle(req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if terminalCalled {
		t.Error("a filled trap field must short-circuit")
	}
}

func TestHoneypotPlantsTrapInForms(t *testing.T) {
	handler := relay.Chain(
		htmlTerminal(`<html><body><form action="/signup"><input name="email"></form></body></html>`),
		middleware.Honeypot(middleware.HoneypotConfig{TrapField: "website_url"}, nil),
	)

	resp, err := handler.Handle(newRequest(http.MethodGet, "/signup"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	body := readBody(resp)
	if !strings.Contains(body, `name="website_url"`) {
		t.Errorf("expected trap field in body, got %q", body)
	}
	trapIdx := strings.Index(body, `name="website_url"`)
	formEnd := strings.Index(body, "</form>")
	if trapIdx > formEnd {
		t.Error("trap field must be planted inside the form")
	}
	if got, want := resp.Header.Get("Content-Length"), strconv.Itoa(len(body)); got != want {
		t.Errorf("Content-Length %q does not match body length %s", got, want)
	}
}

func TestHoneypotLeavesNonHTMLAlone(t *testing.T) {
	handler := relay.Chain(okTerminal("Hello World"), middleware.Honeypot(middleware.HoneypotConfig{}, nil))

	resp, err := handler.Handle(newRequest(http.MethodGet, "/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if readBody(resp) != "Hello World" {
		t.Error("plain-text bodies must pass through untouched")
	}
}
