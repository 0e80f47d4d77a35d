package domain

import (
	"fmt"
	"strings"
)

// TransformResult is the final output of a response transform. Output is
// required; ContentType defaults to text/plain and StatusCode to 200.
type TransformResult struct {
	Output      []byte
	ContentType string
	StatusCode  int
	Headers     map[string]string
}

// NewTransformResult applies the TransformResult defaults.
func NewTransformResult(output []byte) *TransformResult {
	return &TransformResult{
		Output:      output,
		ContentType: "text/plain",
		StatusCode:  200,
	}
}

// DirectResponse is a response produced entirely by a request transform,
// bypassing target dispatch. ContentType defaults to text/html and
// StatusCode to 200.
type DirectResponse struct {
	Output      []byte
	ContentType string
	StatusCode  int
	Headers     map[string]string
}

// NewDirectResponse applies the DirectResponse defaults.
func NewDirectResponse(output []byte) *DirectResponse {
	return &DirectResponse{
		Output:      output,
		ContentType: "text/html",
		StatusCode:  200,
	}
}

// Response converts a direct response into response details.
func (d *DirectResponse) Response() *ResponseDetails {
	resp := NewResponseDetails(d.StatusCode, d.Output, SourceDirectResponse)
	resp.IsDirectResponse = true
	resp.SetHeader("Content-Type", d.ContentType)
	for k, v := range d.Headers {
		resp.SetHeader(k, v)
	}
	return resp
}

// TargetModeInternal is the only legal target mode. This pipeline never
// dispatches to external networks.
const TargetModeInternal = "internal"

// Target is the internal-only destination a transformed request is
// dispatched to.
type Target struct {
	Mode string
	URL  string
}

// Validate enforces the internal-only invariant: mode must be exactly
// "internal" and the URL must be an absolute internal path.
func (t *Target) Validate() error {
	if t.Mode != TargetModeInternal {
		return NewConfigurationError(fmt.Sprintf("target mode must be %q, got %q", TargetModeInternal, t.Mode))
	}
	if !strings.HasPrefix(t.URL, "/") {
		return NewConfigurationError(fmt.Sprintf("target url must start with %q, got %q", "/", t.URL))
	}
	return nil
}
