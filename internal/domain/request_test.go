package domain

import "testing"

func TestRequestDetails_HeaderAccess(t *testing.T) {
	req := NewRequestDetails("/x")
	req.SetHeader("Content-Type", "application/json")

	if got, ok := req.Header("content-type"); !ok || got != "application/json" {
		t.Errorf("Header(content-type) = %q, %v; want application/json, true", got, ok)
	}

	// SetHeader replaces across casings instead of accumulating.
	req.SetHeader("CONTENT-TYPE", "text/plain")
	if len(req.Headers) != 1 {
		t.Errorf("headers = %v, want a single entry", req.Headers)
	}
	if got, _ := req.Header("Content-Type"); got != "text/plain" {
		t.Errorf("Header(Content-Type) = %q, want text/plain", got)
	}

	req.DeleteHeader("content-TYPE")
	if _, ok := req.Header("Content-Type"); ok {
		t.Error("header should be gone after DeleteHeader")
	}
}

func TestRequestDetails_Defaults(t *testing.T) {
	req := NewRequestDetails("/x")
	if req.Method != "GET" {
		t.Errorf("Method = %q, want GET", req.Method)
	}
}

func TestRequestFromMap_RoundTrip(t *testing.T) {
	req := NewRequestDetails("/orders")
	req.Method = "POST"
	req.QueryString = "limit=5"
	req.SetHeader("X-Foo", "1")
	req.Data = []byte(`{"a":1}`)
	req.JSON = map[string]any{"a": float64(1)}

	got := RequestFromMap(req.Map())

	if got.Path != "/orders" || got.Method != "POST" || got.QueryString != "limit=5" {
		t.Errorf("round trip lost basics: %+v", got)
	}
	if v, _ := got.Header("x-foo"); v != "1" {
		t.Errorf("round trip lost headers: %v", got.Headers)
	}
	if string(got.Data) != `{"a":1}` {
		t.Errorf("Data = %q", got.Data)
	}
}

func TestRequestFromMap_MethodDefault(t *testing.T) {
	got := RequestFromMap(map[string]any{"path": "/x"})
	if got.Method != "GET" {
		t.Errorf("Method = %q, want GET", got.Method)
	}
}
