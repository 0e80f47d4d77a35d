package transform

import (
	"fmt"

	"github.com/passagehq/passage/internal/domain"
)

// Outcome is the classified result of a request transform. Exactly one
// of Direct and Target is set. Classification happens once, here, at the
// boundary where the transform's raw output is parsed.
type Outcome struct {
	Direct *domain.DirectResponse
	Target *domain.Target
}

// ParseOutcome classifies a request transform's raw result. A mapping
// with an "output" key is a direct response; a mapping with "mode" or
// "url" describes a target and must pass target validation. Anything
// else is a validation error.
func ParseOutcome(raw any) (*Outcome, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("transform result must be a mapping, got %T", raw))
	}

	if _, hasOutput := m["output"]; hasOutput {
		direct, err := parseDirectResponse(m)
		if err != nil {
			return nil, err
		}
		return &Outcome{Direct: direct}, nil
	}

	_, hasMode := m["mode"]
	_, hasURL := m["url"]
	if hasMode || hasURL {
		target := &domain.Target{}
		if v, ok := m["mode"].(string); ok {
			target.Mode = v
		}
		if v, ok := m["url"].(string); ok {
			target.URL = v
		}
		if err := target.Validate(); err != nil {
			return nil, err
		}
		return &Outcome{Target: target}, nil
	}

	return nil, domain.NewValidationError("transform result is neither a direct response nor a target")
}

func parseDirectResponse(m map[string]any) (*domain.DirectResponse, error) {
	if err := ValidateDirectResponse(m); err != nil {
		return nil, err
	}

	direct := domain.NewDirectResponse(outputBytes(m["output"]))
	if ct, ok := m["content_type"].(string); ok {
		direct.ContentType = ct
	}
	if sc, ok := m["status_code"]; ok {
		if n, ok := toInt(sc); ok {
			direct.StatusCode = n
		}
	}
	direct.Headers = headerMap(m["headers"])
	return direct, nil
}

// ParseTransformResult interprets a response transform's raw result,
// applying the TransformResult defaults (text/plain, 200).
func ParseTransformResult(raw any) (*domain.TransformResult, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("transform result must be a mapping, got %T", raw))
	}

	out, ok := m["output"]
	if !ok {
		return nil, &domain.PipelineError{
			Kind:    domain.KindValidation,
			Message: `transform result is missing required key "output"`,
			Field:   "output",
		}
	}
	switch out.(type) {
	case string, []byte:
	default:
		return nil, &domain.PipelineError{
			Kind:    domain.KindValidation,
			Message: fmt.Sprintf(`transform result "output" must be a string or bytes, got %T`, out),
			Field:   "output",
		}
	}

	result := domain.NewTransformResult(outputBytes(out))
	if ct, ok := m["content_type"]; ok {
		s, isStr := ct.(string)
		if !isStr {
			return nil, &domain.PipelineError{
				Kind:    domain.KindValidation,
				Message: fmt.Sprintf(`transform result "content_type" must be a string, got %T`, ct),
				Field:   "content_type",
			}
		}
		result.ContentType = s
	}
	if sc, ok := m["status_code"]; ok {
		n, isInt := toInt(sc)
		if !isInt {
			return nil, &domain.PipelineError{
				Kind:    domain.KindValidation,
				Message: fmt.Sprintf(`transform result "status_code" must be an integer, got %T`, sc),
				Field:   "status_code",
			}
		}
		result.StatusCode = n
	}
	result.Headers = headerMap(m["headers"])
	return result, nil
}

func outputBytes(v any) []byte {
	switch out := v.(type) {
	case string:
		return []byte(out)
	case []byte:
		return out
	}
	return nil
}

func headerMap(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	headers := make(map[string]string, len(raw))
	for k, hv := range raw {
		if s, ok := hv.(string); ok {
			headers[k] = s
		}
	}
	return headers
}
