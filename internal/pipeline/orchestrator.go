// Package pipeline wires transform loading, execution, target dispatch
// and redirect following into the end-to-end gateway flow.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/passagehq/passage/internal/diag"
	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/metrics"
	"github.com/passagehq/passage/internal/ports"
	"github.com/passagehq/passage/internal/redirect"
	"github.com/passagehq/passage/internal/transform"
)

// Config assembles an orchestrator's dependencies. Loader, Executor and
// Resolver are required.
type Config struct {
	Loader   ports.TransformLoader
	Executor ports.TargetExecutor
	Resolver ports.ContentResolver

	// MaxHops bounds redirect following; below 1 uses the default.
	MaxHops int

	Logger  *slog.Logger
	Metrics *metrics.PipelineMetrics

	// RequestID extracts a request identifier from the context for the
	// transform context, when the serving layer provides one.
	RequestID func(ctx context.Context) string
}

// Orchestrator runs the gateway pipeline. It is stateless per request:
// every execution loads its own transforms and builds its own request
// and response values, so concurrent executions share nothing mutable.
type Orchestrator struct {
	loader   ports.TransformLoader
	executor ports.TargetExecutor
	resolver ports.ContentResolver
	follower *redirect.Follower
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
	tracer   trace.Tracer
	reqID    func(ctx context.Context) string
}

// New creates an orchestrator, validating required dependencies.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Loader == nil {
		return nil, domain.NewConfigurationError("pipeline requires a transform loader")
	}
	if cfg.Executor == nil {
		return nil, domain.NewConfigurationError("pipeline requires a target executor")
	}
	if cfg.Resolver == nil {
		return nil, domain.NewConfigurationError("pipeline requires a content resolver")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reqID := cfg.RequestID
	if reqID == nil {
		reqID = func(context.Context) string { return "" }
	}
	return &Orchestrator{
		loader:   cfg.Loader,
		executor: cfg.Executor,
		resolver: cfg.Resolver,
		follower: redirect.NewFollower(cfg.Resolver, cfg.MaxHops, logger),
		logger:   logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("passage/pipeline"),
		reqID:    reqID,
	}, nil
}

// Execute runs the full pipeline for one request. It never returns an
// error: every failure is caught at this boundary, formatted through the
// diagnostic formatter and surfaced as a non-2xx response.
func (o *Orchestrator) Execute(ctx context.Context, gw *domain.GatewayConfig, req *domain.RequestDetails) *domain.ResponseDetails {
	ctx, span := o.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("gateway", gw.Name)))
	defer span.End()

	// The cookie header never crosses into the pipeline.
	req.DeleteHeader("Cookie")

	input := req.Map()
	tctx := o.transformContext(ctx, gw)

	outcome, errResp := o.requestStage(ctx, gw, req, input, tctx)
	if errResp != nil {
		return errResp
	}

	if outcome != nil && outcome.Direct != nil {
		resp := outcome.Direct.Response()
		resp.RequestPath = req.Path
		if gw.TransformDirectResponses && gw.ResponseTransformCID != "" {
			return o.responseStage(ctx, gw, req, resp, tctx)
		}
		o.metrics.Execution(gw.Name, "direct")
		return resp
	}

	targetURL := gw.TargetURL()
	if outcome != nil && outcome.Target != nil {
		targetURL = outcome.Target.URL
	}

	dispatched, errResp := o.dispatch(ctx, gw, input, targetURL, req)
	if errResp != nil {
		return errResp
	}

	followed := o.followRedirects(ctx, dispatched)

	if gw.ResponseTransformCID == "" {
		o.metrics.Execution(gw.Name, "ok")
		return followed
	}
	return o.responseStage(ctx, gw, req, followed, tctx)
}

// requestStage loads and runs the request transform, classifying its
// result. A nil outcome with nil error means the gateway has no request
// transform and the request passes through to the default target.
func (o *Orchestrator) requestStage(ctx context.Context, gw *domain.GatewayConfig, req *domain.RequestDetails, input, tctx map[string]any) (*transform.Outcome, *domain.ResponseDetails) {
	if gw.RequestTransformCID == "" {
		return nil, nil
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.request_transform")
	defer span.End()
	start := time.Now()
	defer func() { o.metrics.StageDuration("request_transform", time.Since(start).Seconds()) }()

	tr, err := o.loader.Load(ctx, gw.RequestTransformCID, ports.RoleRequest)
	if err != nil {
		o.metrics.LoadFailure(string(ports.RoleRequest), string(domain.AsPipelineError(err).Kind))
		return nil, o.errorResponse(ctx, gw, req, err)
	}

	raw, err := tr.Invoke(ctx, input, tctx)
	if err != nil {
		return nil, o.errorResponse(ctx, gw, req, err)
	}

	outcome, err := transform.ParseOutcome(raw)
	if err != nil {
		return nil, o.errorResponse(ctx, gw, req, err)
	}
	return outcome, nil
}

// dispatch sends the (possibly transform-mutated) request to the
// internal target executor.
func (o *Orchestrator) dispatch(ctx context.Context, gw *domain.GatewayConfig, input map[string]any, targetURL string, orig *domain.RequestDetails) (*domain.ResponseDetails, *domain.ResponseDetails) {
	ctx, span := o.tracer.Start(ctx, "pipeline.dispatch",
		trace.WithAttributes(attribute.String("target", targetURL)))
	defer span.End()
	start := time.Now()
	defer func() { o.metrics.StageDuration("dispatch", time.Since(start).Seconds()) }()

	// Re-read the transform-visible mapping so mutations made by the
	// request transform travel with the dispatch.
	dispatchReq := domain.RequestFromMap(input)
	dispatchReq.Path = targetURL
	if i := strings.IndexByte(targetURL, '?'); i >= 0 {
		dispatchReq.Path = targetURL[:i]
		dispatchReq.QueryString = targetURL[i+1:]
	}
	dispatchReq.DeleteHeader("Cookie")

	resp, err := o.executor.Execute(ctx, dispatchReq)
	if err != nil {
		return nil, o.errorResponse(ctx, gw, orig, domain.NewExecutionError("dispatch to "+dispatchReq.Path, err))
	}
	resp.RequestPath = dispatchReq.Path
	if resp.Source == "" {
		resp.Source = domain.SourceInternalTarget
	}
	return resp, nil
}

func (o *Orchestrator) followRedirects(ctx context.Context, resp *domain.ResponseDetails) *domain.ResponseDetails {
	if !resp.IsRedirect() {
		o.metrics.Redirect("passthrough")
		return resp
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.follow_redirects")
	defer span.End()

	followed := o.follower.Follow(ctx, resp)
	switch {
	case followed.Source == domain.SourceSynthesizedRedirect:
		o.metrics.Redirect("resolved")
	case followed.IsRedirect():
		// Soft give-up: the caller decides what a still-3xx response
		// means.
		o.metrics.Redirect("unresolved")
	default:
		o.metrics.Redirect("passthrough")
	}
	return followed
}

// responseStage runs the response transform over the (possibly
// redirect-resolved) response.
func (o *Orchestrator) responseStage(ctx context.Context, gw *domain.GatewayConfig, req *domain.RequestDetails, resp *domain.ResponseDetails, tctx map[string]any) *domain.ResponseDetails {
	ctx, span := o.tracer.Start(ctx, "pipeline.response_transform")
	defer span.End()
	start := time.Now()
	defer func() { o.metrics.StageDuration("response_transform", time.Since(start).Seconds()) }()

	tr, err := o.loader.Load(ctx, gw.ResponseTransformCID, ports.RoleResponse)
	if err != nil {
		o.metrics.LoadFailure(string(ports.RoleResponse), string(domain.AsPipelineError(err).Kind))
		return o.errorResponse(ctx, gw, req, err)
	}

	raw, err := tr.Invoke(ctx, resp.Map(), tctx)
	if err != nil {
		return o.errorResponse(ctx, gw, req, err)
	}

	result, err := transform.ParseTransformResult(raw)
	if err != nil {
		return o.errorResponse(ctx, gw, req, err)
	}

	final := domain.NewResponseDetails(result.StatusCode, result.Output, resp.Source)
	final.RequestPath = resp.RequestPath
	final.IsDirectResponse = resp.IsDirectResponse
	final.SetHeader("Content-Type", result.ContentType)
	for k, v := range result.Headers {
		final.SetHeader(k, v)
	}
	o.metrics.Execution(gw.Name, "ok")
	return final
}

// transformContext builds the second argument handed to transform code.
// Template bytes are only fetched when the transform asks.
func (o *Orchestrator) transformContext(ctx context.Context, gw *domain.GatewayConfig) map[string]any {
	templates := make(map[string]any, len(gw.Templates))
	for name, cid := range gw.Templates {
		templates[name] = cid
	}
	return map[string]any{
		"gateway":    gw.Name,
		"request_id": o.reqID(ctx),
		"templates":  templates,
		"resolve_template": func(name string) string {
			cid, ok := gw.Templates[name]
			if !ok {
				return ""
			}
			blob, found, err := o.resolver.Resolve(ctx, cid)
			if err != nil || !found {
				return ""
			}
			return string(blob)
		},
	}
}

// errorResponse converts a pipeline failure into the error-state
// response: logged, counted, formatted, never propagated.
func (o *Orchestrator) errorResponse(ctx context.Context, gw *domain.GatewayConfig, req *domain.RequestDetails, err error) *domain.ResponseDetails {
	pe := domain.AsPipelineError(err)

	o.logger.Error("pipeline failed",
		slog.String("gateway", gw.Name),
		slog.String("kind", string(pe.Kind)),
		slog.String("error", diag.Summary(pe)),
		slog.Any("request", diag.RedactPreview(req.Map())),
	)
	o.metrics.Execution(gw.Name, "error")

	body := o.renderError(ctx, gw, pe, req)
	resp := domain.NewResponseDetails(pe.HTTPStatus(), body, domain.SourceDirectResponse)
	resp.RequestPath = req.Path
	resp.SetHeader("Content-Type", "text/html")
	return resp
}

// renderError prefers the gateway's custom error template when one is
// configured and resolvable, falling back to the built-in error page.
func (o *Orchestrator) renderError(ctx context.Context, gw *domain.GatewayConfig, pe *domain.PipelineError, req *domain.RequestDetails) []byte {
	if gw.ErrorTemplateCID != "" {
		blob, ok, err := o.resolver.Resolve(ctx, gw.ErrorTemplateCID)
		if err == nil && ok {
			page := strings.ReplaceAll(string(blob), "{{error}}", diag.Summary(pe))
			return []byte(page)
		}
	}
	return diag.RenderErrorPage(pe, map[string]any{"request": req.Map()})
}
