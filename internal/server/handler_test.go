package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/passagehq/passage/internal/content/memory"
	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/pipeline"
	"github.com/passagehq/passage/internal/transform"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// newTestHandler wires a complete in-process stack: memory store,
// internal echo mux and orchestrator behind a gateway handler.
func newTestHandler(t *testing.T, store *memory.Store, gateways ...*domain.GatewayConfig) *GatewayHandler {
	t.Helper()

	internal := NewInternalMux()
	internal.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("echo:" + r.URL.Path + "?" + r.URL.RawQuery + " cookie=" + r.Header.Get("Cookie")))
	})

	orch, err := pipeline.New(pipeline.Config{
		Loader:   transform.NewLoader(store, quietLogger()),
		Executor: NewInternalExecutor(internal),
		Resolver: store,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	return NewGatewayHandler(orch, gateways)
}

// newTestRouter mounts the handler on the public routes the real server
// mounts.
func newTestRouter(t *testing.T, store *memory.Store, gateways ...*domain.GatewayConfig) *chi.Mux {
	t.Helper()

	handler := newTestHandler(t, store, gateways...)
	r := chi.NewRouter()
	r.Handle("/g/{gateway}", handler)
	r.Handle("/g/{gateway}/*", handler)
	return r
}

func mustPut(t *testing.T, store *memory.Store, src string) string {
	t.Helper()
	cid, err := store.Put(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return cid
}

func TestGatewayHandler_UnknownGateway(t *testing.T) {
	router := newTestRouter(t, memory.New())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/g/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGatewayHandler_DirectResponse(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) {
  return {output: "<h1>hi " + req.path + "</h1>"};
}`)
	router := newTestRouter(t, store, &domain.GatewayConfig{Name: "hi", RequestTransformCID: cid})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/g/hi/there", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); got != "<h1>hi /there</h1>" {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGatewayHandler_DispatchesToInternalTarget(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) {
  return {mode: "internal", url: "/echo?from=" + ctx.gateway};
}`)
	router := newTestRouter(t, store, &domain.GatewayConfig{Name: "proxy", RequestTransformCID: cid})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/g/proxy", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := rec.Body.String(); !strings.HasPrefix(got, "echo:/echo?from=proxy") {
		t.Errorf("body = %q", got)
	}
}

func TestGatewayHandler_CookieNeverReachesTarget(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store, &domain.GatewayConfig{Name: "echo"})

	req := httptest.NewRequest("GET", "/g/echo", nil)
	req.Header.Set("Cookie", "session=1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if body := rec.Body.String(); !strings.Contains(body, "cookie=") || strings.Contains(body, "session=1") {
		t.Errorf("cookie leaked to the internal target: %q", body)
	}
}

func TestGatewayHandler_ErrorResponse(t *testing.T) {
	store := memory.New()
	router := newTestRouter(t, store, &domain.GatewayConfig{Name: "broken", RequestTransformCID: "deadbeef"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/g/broken", nil))

	if rec.Code != 500 {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ConfigurationError") {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestGatewayHandler_RequestLogFields(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) { return {output: "done"}; }`)
	router := newTestRouter(t, store, &domain.GatewayConfig{Name: "hi", RequestTransformCID: cid})

	var buf bytes.Buffer
	logged := LoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))(router)
	logged.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/g/hi", nil))

	logs := buf.String()
	if !strings.Contains(logs, "gateway=hi") {
		t.Errorf("request log missing gateway field:\n%s", logs)
	}
	if !strings.Contains(logs, "response_source=direct-response") {
		t.Errorf("request log missing response source field:\n%s", logs)
	}
}

func TestGatewayHandler_UnknownGatewayLogsError(t *testing.T) {
	router := newTestRouter(t, memory.New())

	var buf bytes.Buffer
	logged := LoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))(router)
	logged.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/g/nope", nil))

	if logs := buf.String(); !strings.Contains(logs, "unknown gateway") {
		t.Errorf("request log missing error field:\n%s", logs)
	}
}

func TestRequestFromHTTP(t *testing.T) {
	r := httptest.NewRequest("POST", "/g/x/sub/path?q=1", strings.NewReader(`{"k":"v"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Cookie", "session=1")
	r.Header.Set("X-Foo", "bar")

	// Route through chi so the wildcard URL parameter is populated the
	// way the real router populates it.
	var req *domain.RequestDetails
	mux := chi.NewRouter()
	mux.Handle("/g/{gateway}/*", http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		req = RequestFromHTTP(r)
	}))
	mux.ServeHTTP(httptest.NewRecorder(), r)

	if req.Path != "/sub/path" {
		t.Errorf("Path = %q, want /sub/path", req.Path)
	}
	if req.Method != "POST" || req.QueryString != "q=1" {
		t.Errorf("Method/Query = %q/%q", req.Method, req.QueryString)
	}
	if _, ok := req.Header("Cookie"); ok {
		t.Error("Cookie must be dropped at the HTTP boundary")
	}
	if v, _ := req.Header("X-Foo"); v != "bar" {
		t.Errorf("X-Foo = %q", v)
	}
	if string(req.Data) != `{"k":"v"}` {
		t.Errorf("Data = %q", req.Data)
	}
	parsed, ok := req.JSON.(map[string]any)
	if !ok || parsed["k"] != "v" {
		t.Errorf("JSON = %v", req.JSON)
	}
}

func TestRequestFromHTTP_RootPath(t *testing.T) {
	var req *domain.RequestDetails
	mux := chi.NewRouter()
	mux.Handle("/g/{gateway}", http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		req = RequestFromHTTP(r)
	}))
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/g/x", nil))

	if req.Path != "/" {
		t.Errorf("Path = %q, want /", req.Path)
	}
}

func TestWriteResponse_DefaultContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResponse(rec, domain.NewResponseDetails(204, nil, domain.SourceInternalTarget))

	if rec.Code != 204 {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain default", ct)
	}
}

func TestWriteResponse_Headers(t *testing.T) {
	resp := domain.NewResponseDetails(201, []byte("ok"), domain.SourceDirectResponse)
	resp.SetHeader("Content-Type", "application/json")
	resp.SetHeader("X-Custom", "1")

	rec := httptest.NewRecorder()
	WriteResponse(rec, resp)

	if rec.Code != 201 || rec.Body.String() != "ok" {
		t.Errorf("wrote %d %q", rec.Code, rec.Body)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Custom") != "1" {
		t.Errorf("X-Custom = %q", rec.Header().Get("X-Custom"))
	}
}
