package domain

// GatewayConfig is a long-lived gateway record. It is owned by external
// configuration storage and only read by the pipeline.
type GatewayConfig struct {
	// Name identifies the gateway and is used for routing.
	Name string

	// RequestTransformCID addresses the request transform source in the
	// content store. Empty means the gateway has no request transform.
	RequestTransformCID string

	// ResponseTransformCID addresses the response transform source.
	// Empty means responses pass through unchanged.
	ResponseTransformCID string

	// Templates maps template names to content identifiers. Transforms
	// resolve them on demand through their context argument.
	Templates map[string]string

	// TargetURLOverride replaces the default internal target path.
	TargetURLOverride string

	// ErrorTemplateCID optionally addresses a custom error page template.
	ErrorTemplateCID string

	// TransformDirectResponses runs the response transform even for
	// direct responses. Default is to skip it for already-final output.
	TransformDirectResponses bool
}

// TargetURL returns the configured target path, defaulting to /{name}.
func (g *GatewayConfig) TargetURL() string {
	if g.TargetURLOverride != "" {
		return g.TargetURLOverride
	}
	return "/" + g.Name
}
