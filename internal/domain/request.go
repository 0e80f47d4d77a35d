// Package domain provides the canonical request/response types and error
// taxonomy for the gateway transform pipeline.
package domain

import "strings"

// RequestDetails is the pipeline's view of an inbound request. It is
// constructed fresh per invocation by whichever adapter received the
// request (HTTP, batch, CLI) and carries no identity beyond that
// invocation.
type RequestDetails struct {
	// Path is the request path, always beginning with "/".
	Path string

	// Method is the HTTP method. Defaults to GET.
	Method string

	// QueryString is the raw query string without the leading "?".
	QueryString string

	// Headers holds request headers. Access is case-insensitive via
	// Header; the Cookie header is never forwarded into the pipeline.
	Headers map[string]string

	// JSON is the parsed request body when the adapter could decode it.
	JSON any

	// Data is the raw request body.
	Data []byte

	// URL is the full original URL when known.
	URL string
}

// NewRequestDetails creates request details for the given path with the
// GET default applied.
func NewRequestDetails(path string) *RequestDetails {
	return &RequestDetails{
		Path:    path,
		Method:  "GET",
		Headers: make(map[string]string),
	}
}

// Header returns the named header, matching case-insensitively.
func (r *RequestDetails) Header(name string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader sets a header, replacing any existing value whose name
// matches case-insensitively.
func (r *RequestDetails) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	for k := range r.Headers {
		if strings.EqualFold(k, name) {
			delete(r.Headers, k)
		}
	}
	r.Headers[name] = value
}

// DeleteHeader removes a header, matching case-insensitively.
func (r *RequestDetails) DeleteHeader(name string) {
	for k := range r.Headers {
		if strings.EqualFold(k, name) {
			delete(r.Headers, k)
		}
	}
}

// Map renders the request as the mapping handed to transform code.
// The returned map is live: transform mutations show through and can be
// read back with RequestFromMap.
func (r *RequestDetails) Map() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	m := map[string]any{
		"path":         r.Path,
		"method":       r.Method,
		"query_string": r.QueryString,
		"headers":      headers,
	}
	if r.JSON != nil {
		m["json"] = r.JSON
	}
	if r.Data != nil {
		m["data"] = string(r.Data)
	}
	if r.URL != "" {
		m["url"] = r.URL
	}
	return m
}

// RequestFromMap rebuilds request details from a transform-visible
// mapping, applying the GET default. Unknown keys are ignored.
func RequestFromMap(m map[string]any) *RequestDetails {
	r := &RequestDetails{Method: "GET", Headers: make(map[string]string)}
	if v, ok := m["path"].(string); ok {
		r.Path = v
	}
	if v, ok := m["method"].(string); ok && v != "" {
		r.Method = v
	}
	if v, ok := m["query_string"].(string); ok {
		r.QueryString = v
	}
	if v, ok := m["url"].(string); ok {
		r.URL = v
	}
	if hs, ok := m["headers"].(map[string]any); ok {
		for k, v := range hs {
			if s, ok := v.(string); ok {
				r.Headers[k] = s
			}
		}
	}
	switch d := m["data"].(type) {
	case string:
		r.Data = []byte(d)
	case []byte:
		r.Data = d
	}
	if v, ok := m["json"]; ok {
		r.JSON = v
	}
	return r
}
