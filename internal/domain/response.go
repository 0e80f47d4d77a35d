package domain

import (
	"encoding/json"
	"strings"
)

// ResponseSource records where a response came from, so callers can tell
// a dispatched result apart from a transform short-circuit or a body
// synthesized by the redirect follower.
type ResponseSource string

const (
	SourceInternalTarget      ResponseSource = "internal-target"
	SourceDirectResponse      ResponseSource = "direct-response"
	SourceSynthesizedRedirect ResponseSource = "synthesized-from-redirect"
)

// ResponseDetails is the pipeline's view of a response. Like
// RequestDetails it lives for a single invocation only.
type ResponseDetails struct {
	StatusCode int
	Headers    map[string]string
	Content    []byte

	// JSON is the parsed body when it decodes as JSON, nil otherwise.
	JSON any

	// RequestPath is the path the originating request was dispatched to.
	RequestPath string

	Source           ResponseSource
	IsDirectResponse bool
}

// NewResponseDetails creates a response with the given status, content
// and source, decoding JSON content best-effort.
func NewResponseDetails(status int, content []byte, source ResponseSource) *ResponseDetails {
	r := &ResponseDetails{
		StatusCode: status,
		Headers:    make(map[string]string),
		Content:    content,
		Source:     source,
	}
	r.decodeJSON()
	return r
}

func (r *ResponseDetails) decodeJSON() {
	trimmed := strings.TrimSpace(string(r.Content))
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return
	}
	var v any
	if err := json.Unmarshal(r.Content, &v); err == nil {
		r.JSON = v
	}
}

// Text returns the body decoded as UTF-8, replacing invalid sequences.
func (r *ResponseDetails) Text() string {
	return strings.ToValidUTF8(string(r.Content), "�")
}

// Header returns the named header, matching case-insensitively.
func (r *ResponseDetails) Header(name string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader sets a header, replacing any existing value whose name
// matches case-insensitively.
func (r *ResponseDetails) SetHeader(name, value string) {
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

// IsRedirect reports whether the status is one of the standard redirect
// codes the follower acts on.
func (r *ResponseDetails) IsRedirect() bool {
	switch r.StatusCode {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// Map renders the response as the mapping handed to response transforms.
func (r *ResponseDetails) Map() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	m := map[string]any{
		"status_code":  r.StatusCode,
		"headers":      headers,
		"content":      string(r.Content),
		"text":         r.Text(),
		"request_path": r.RequestPath,
		"source":       string(r.Source),
	}
	if r.JSON != nil {
		m["json"] = r.JSON
	}
	return m
}
