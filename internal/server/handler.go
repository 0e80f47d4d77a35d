package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/pipeline"
)

// GatewayHandler adapts HTTP requests into pipeline executions. It is
// one of several possible request origins (batch and CLI adapters build
// the same RequestDetails); the pipeline itself never assumes HTTP.
type GatewayHandler struct {
	pipeline *pipeline.Orchestrator
	gateways map[string]*domain.GatewayConfig
}

// NewGatewayHandler creates a handler over a read-only gateway registry.
func NewGatewayHandler(p *pipeline.Orchestrator, gateways []*domain.GatewayConfig) *GatewayHandler {
	byName := make(map[string]*domain.GatewayConfig, len(gateways))
	for _, g := range gateways {
		byName[g.Name] = g
	}
	return &GatewayHandler{pipeline: p, gateways: byName}
}

// Lookup returns the named gateway record.
func (h *GatewayHandler) Lookup(name string) (*domain.GatewayConfig, bool) {
	g, ok := h.gateways[name]
	return g, ok
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "gateway")
	AddLogField(r.Context(), "gateway", name)

	gw, ok := h.Lookup(name)
	if !ok {
		AddError(r.Context(), fmt.Errorf("unknown gateway %q", name))
		http.Error(w, "unknown gateway", http.StatusNotFound)
		return
	}

	req := RequestFromHTTP(r)
	resp := h.pipeline.Execute(r.Context(), gw, req)
	AddLogField(r.Context(), "response_source", string(resp.Source))
	WriteResponse(w, resp)
}

// RequestFromHTTP builds pipeline request details from an HTTP request.
// The Cookie header is dropped here, before anything downstream can see
// it.
func RequestFromHTTP(r *http.Request) *domain.RequestDetails {
	path := "/"
	if rest := chi.URLParam(r, "*"); rest != "" {
		path = "/" + rest
	}

	req := domain.NewRequestDetails(path)
	req.Method = r.Method
	req.QueryString = r.URL.RawQuery
	req.URL = r.URL.String()

	for name, values := range r.Header {
		if strings.EqualFold(name, "Cookie") || len(values) == 0 {
			continue
		}
		req.Headers[name] = values[0]
	}

	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err == nil && len(body) > 0 {
			req.Data = body
			ct, _ := req.Header("Content-Type")
			if strings.Contains(ct, "application/json") {
				var parsed any
				if json.Unmarshal(body, &parsed) == nil {
					req.JSON = parsed
				}
			}
		}
	}

	return req
}

// WriteResponse writes pipeline response details back to the client.
func WriteResponse(w http.ResponseWriter, resp *domain.ResponseDetails) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if _, ok := resp.Header("Content-Type"); !ok {
		w.Header().Set("Content-Type", "text/plain")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Content)
}
