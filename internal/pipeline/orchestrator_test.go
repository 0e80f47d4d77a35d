package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/passagehq/passage/internal/content/memory"
	"github.com/passagehq/passage/internal/diag"
	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/transform"
)

type fakeExecutor struct {
	fn    func(ctx context.Context, req *domain.RequestDetails) (*domain.ResponseDetails, error)
	calls int
	last  *domain.RequestDetails
}

func (f *fakeExecutor) Execute(ctx context.Context, req *domain.RequestDetails) (*domain.ResponseDetails, error) {
	f.calls++
	f.last = req
	if f.fn == nil {
		return domain.NewResponseDetails(200, []byte("default"), domain.SourceInternalTarget), nil
	}
	return f.fn(ctx, req)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestOrchestrator(t *testing.T, store *memory.Store, exec *fakeExecutor) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Loader:   transform.NewLoader(store, testLogger()),
		Executor: exec,
		Resolver: store,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func mustPut(t *testing.T, store *memory.Store, src string) string {
	t.Helper()
	cid, err := store.Put(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return cid
}

func TestExecute_DirectResponse(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) {
  return {output: "<p>done</p>", status_code: 201};
}`)
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: cid}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if exec.calls != 0 {
		t.Errorf("executor calls = %d; direct response must bypass dispatch", exec.calls)
	}
	if resp.StatusCode != 201 {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	if !resp.IsDirectResponse || resp.Source != domain.SourceDirectResponse {
		t.Errorf("resp = %+v, want direct response markers", resp)
	}
	if ct, _ := resp.Header("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type = %q, want text/html default", ct)
	}
}

func TestExecute_TargetDispatch(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) {
  req.headers["X-Gateway"] = ctx.gateway;
  return {mode: "internal", url: "/orders/lookup?id=7"};
}`)
	exec := &fakeExecutor{fn: func(_ context.Context, req *domain.RequestDetails) (*domain.ResponseDetails, error) {
		return domain.NewResponseDetails(200, []byte("order 7"), domain.SourceInternalTarget), nil
	}}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "orders", RequestTransformCID: cid}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/lookup"))

	if exec.calls != 1 {
		t.Fatalf("executor calls = %d, want 1", exec.calls)
	}
	if exec.last.Path != "/orders/lookup" || exec.last.QueryString != "id=7" {
		t.Errorf("dispatched to %q?%q", exec.last.Path, exec.last.QueryString)
	}
	if v, _ := exec.last.Header("X-Gateway"); v != "orders" {
		t.Errorf("transform header mutation lost: %v", exec.last.Headers)
	}
	if string(resp.Content) != "order 7" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.RequestPath != "/orders/lookup" {
		t.Errorf("RequestPath = %q", resp.RequestPath)
	}
}

func TestExecute_NoRequestTransformPassesThrough(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "plain"}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/anything"))

	if exec.calls != 1 {
		t.Fatalf("executor calls = %d, want 1", exec.calls)
	}
	if exec.last.Path != "/plain" {
		t.Errorf("dispatched to %q, want default target /plain", exec.last.Path)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestExecute_InvalidTarget(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) {
  return {mode: "external", url: "http://evil.example"};
}`)
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: cid}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if exec.calls != 0 {
		t.Error("invalid target must never reach the executor")
	}
	if resp.StatusCode < 400 {
		t.Errorf("StatusCode = %d, want error status", resp.StatusCode)
	}
	summary, _, ok := diag.ExtractErrorPage(string(resp.Content))
	if !ok {
		t.Fatalf("error response should carry the error page, got %q", resp.Content)
	}
	if !strings.Contains(summary, "ConfigurationError") {
		t.Errorf("summary = %q, want configuration error", summary)
	}
}

func TestExecute_TransformThrowSurvives(t *testing.T) {
	store := memory.New()
	cid := mustPut(t, store, `function transform_request(req, ctx) { throw new Error("kaboom"); }`)
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: cid}
	req := domain.NewRequestDetails("/")
	req.SetHeader("Authorization", "Bearer sekrit-token")

	resp := o.Execute(context.Background(), gw, req)

	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Content), "kaboom") {
		t.Errorf("body should mention the failure, got %q", resp.Content)
	}
	if strings.Contains(string(resp.Content), "sekrit-token") {
		t.Error("error page leaked the Authorization header")
	}
}

func TestExecute_MissingTransformSource(t *testing.T) {
	store := memory.New()
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: "deadbeef"}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Content), "ConfigurationError") {
		t.Errorf("body = %q, want configuration error", resp.Content)
	}
}

func TestExecute_RedirectResolved(t *testing.T) {
	store := memory.New()
	blobCID := mustPut(t, store, `{"a":1}`)
	exec := &fakeExecutor{fn: func(_ context.Context, _ *domain.RequestDetails) (*domain.ResponseDetails, error) {
		resp := domain.NewResponseDetails(302, nil, domain.SourceInternalTarget)
		resp.SetHeader("Location", "/"+blobCID+".json")
		return resp, nil
	}}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "g"}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if ct, _ := resp.Header("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if string(resp.Content) != `{"a":1}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Source != domain.SourceSynthesizedRedirect {
		t.Errorf("Source = %v", resp.Source)
	}
}

func TestExecute_UnresolvedRedirectPassedThrough(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{fn: func(_ context.Context, _ *domain.RequestDetails) (*domain.ResponseDetails, error) {
		resp := domain.NewResponseDetails(302, nil, domain.SourceInternalTarget)
		resp.SetHeader("Location", "/nested/path")
		return resp, nil
	}}
	o := newTestOrchestrator(t, store, exec)

	resp := o.Execute(context.Background(), &domain.GatewayConfig{Name: "g"}, domain.NewRequestDetails("/"))

	if resp.StatusCode != 302 {
		t.Errorf("StatusCode = %d, want the redirect intact", resp.StatusCode)
	}
	if loc, _ := resp.Header("Location"); loc != "/nested/path" {
		t.Errorf("Location = %q, want intact", loc)
	}
}

func TestExecute_ResponseTransform(t *testing.T) {
	store := memory.New()
	respCID := mustPut(t, store, `function transform_response(resp, ctx) {
  return {output: "wrapped:" + resp.text, content_type: "application/json", status_code: resp.status_code};
}`)
	exec := &fakeExecutor{fn: func(_ context.Context, _ *domain.RequestDetails) (*domain.ResponseDetails, error) {
		return domain.NewResponseDetails(200, []byte("inner"), domain.SourceInternalTarget), nil
	}}
	o := newTestOrchestrator(t, store, exec)

	gw := &domain.GatewayConfig{Name: "g", ResponseTransformCID: respCID}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if string(resp.Content) != "wrapped:inner" {
		t.Errorf("Content = %q", resp.Content)
	}
	if ct, _ := resp.Header("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestExecute_DirectSkipsResponseTransformByDefault(t *testing.T) {
	store := memory.New()
	reqCID := mustPut(t, store, `function transform_request(req, ctx) { return {output: "final"}; }`)
	respCID := mustPut(t, store, `function transform_response(resp, ctx) { return {output: "should not run"}; }`)
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: reqCID, ResponseTransformCID: respCID}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if string(resp.Content) != "final" {
		t.Errorf("Content = %q; direct responses skip the response transform by default", resp.Content)
	}
}

func TestExecute_DirectRunsResponseTransformWhenOptedIn(t *testing.T) {
	store := memory.New()
	reqCID := mustPut(t, store, `function transform_request(req, ctx) { return {output: "final"}; }`)
	respCID := mustPut(t, store, `function transform_response(resp, ctx) { return {output: "post:" + resp.text}; }`)
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{
		Name:                     "g",
		RequestTransformCID:      reqCID,
		ResponseTransformCID:     respCID,
		TransformDirectResponses: true,
	}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if string(resp.Content) != "post:final" {
		t.Errorf("Content = %q", resp.Content)
	}
	if !resp.IsDirectResponse {
		t.Error("direct-response flag should survive the response transform")
	}
}

func TestExecute_CookieNeverDispatched(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, store, exec)

	req := domain.NewRequestDetails("/")
	req.Headers["Cookie"] = "session=1"
	o.Execute(context.Background(), &domain.GatewayConfig{Name: "g"}, req)

	if _, ok := exec.last.Header("Cookie"); ok {
		t.Error("cookie header must never reach the executor")
	}
}

func TestExecute_ExecutorFailureBecomesErrorResponse(t *testing.T) {
	store := memory.New()
	exec := &fakeExecutor{fn: func(_ context.Context, _ *domain.RequestDetails) (*domain.ResponseDetails, error) {
		return nil, errors.New("target unavailable")
	}}
	o := newTestOrchestrator(t, store, exec)

	resp := o.Execute(context.Background(), &domain.GatewayConfig{Name: "g"}, domain.NewRequestDetails("/"))

	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(string(resp.Content), "ExecutionError") {
		t.Errorf("body = %q", resp.Content)
	}
}

func TestExecute_CustomErrorTemplate(t *testing.T) {
	store := memory.New()
	tmplCID := mustPut(t, store, `<html><body>oops: {{error}}</body></html>`)
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{Name: "g", RequestTransformCID: "deadbeef", ErrorTemplateCID: tmplCID}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	body := string(resp.Content)
	if !strings.HasPrefix(body, "<html><body>oops: ConfigurationError") {
		t.Errorf("body = %q, want the custom template with the summary substituted", body)
	}
}

func TestExecute_TemplateResolution(t *testing.T) {
	store := memory.New()
	tmplCID := mustPut(t, store, "Hello, {name}!")
	reqCID := mustPut(t, store, `function transform_request(req, ctx) {
  return {output: ctx.resolve_template("greeting")};
}`)
	o := newTestOrchestrator(t, store, &fakeExecutor{})

	gw := &domain.GatewayConfig{
		Name:                "g",
		RequestTransformCID: reqCID,
		Templates:           map[string]string{"greeting": tmplCID},
	}
	resp := o.Execute(context.Background(), gw, domain.NewRequestDetails("/"))

	if string(resp.Content) != "Hello, {name}!" {
		t.Errorf("Content = %q, want resolved template body", resp.Content)
	}
}
