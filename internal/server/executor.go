package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/ports"
)

// InternalExecutor dispatches pipeline targets against the internal
// handler mux without a network hop. Internal handlers are mounted on a
// mux the public router never exposes, so only transformed requests that
// passed target validation reach them.
type InternalExecutor struct {
	handler http.Handler
}

var _ ports.TargetExecutor = (*InternalExecutor)(nil)

// NewInternalExecutor wraps the internal handler mux.
func NewInternalExecutor(handler http.Handler) *InternalExecutor {
	return &InternalExecutor{handler: handler}
}

// Execute dispatches the request in-process. The leading-slash
// restriction is enforced again here: the executor is the last line
// before handler code runs.
func (e *InternalExecutor) Execute(ctx context.Context, req *domain.RequestDetails) (*domain.ResponseDetails, error) {
	if !strings.HasPrefix(req.Path, "/") {
		return nil, domain.NewConfigurationError(fmt.Sprintf("internal target path must start with %q, got %q", "/", req.Path))
	}

	url := req.Path
	if req.QueryString != "" {
		url += "?" + req.QueryString
	}

	var body *bytes.Reader
	if req.Data != nil {
		body = bytes.NewReader(req.Data)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build internal request: %w", err)
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, "Cookie") {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	rec := &responseRecorder{header: make(http.Header), status: http.StatusOK}
	e.handler.ServeHTTP(rec, httpReq)

	resp := domain.NewResponseDetails(rec.status, rec.body.Bytes(), domain.SourceInternalTarget)
	resp.RequestPath = req.Path
	for k, values := range rec.header {
		if len(values) > 0 {
			resp.Headers[k] = values[0]
		}
	}
	return resp, nil
}

// responseRecorder captures an in-process handler's output.
type responseRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) Write(p []byte) (int, error) { return r.body.Write(p) }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }
