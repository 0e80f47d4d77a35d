// Package transform loads, validates and executes user-supplied
// transform code. Transforms are JavaScript sources defining
// transform_request and/or transform_response entry functions; each
// invocation compiles and runs in a fresh interpreter, so there is no
// state shared between calls and edits take effect immediately.
package transform

import (
	"errors"
	"fmt"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/ports"
)

// ValidateSource statically checks transform source for the given role
// without executing it. Syntax errors come back as validation errors
// carrying line/column; a missing entry function is an error too. The
// returned warnings (for example, a suspicious parameter count) never
// block validation.
func ValidateSource(name, src string, role ports.TransformRole) (warnings []string, err error) {
	prog, perr := parser.ParseFile(nil, name, src, 0)
	if perr != nil {
		return nil, syntaxError(perr)
	}

	entry := role.EntryName()
	fn := findFunction(prog, entry)
	if fn == nil {
		return nil, domain.NewValidationError(fmt.Sprintf("missing required function: %s", entry))
	}

	if params := len(fn.ParameterList.List); params < 2 {
		warnings = append(warnings, fmt.Sprintf(
			"%s declares %d parameter(s); expected at least 2 (details, context)", entry, params))
	}

	return warnings, nil
}

func syntaxError(perr error) *domain.PipelineError {
	var list parser.ErrorList
	if errors.As(perr, &list) && len(list) > 0 {
		first := list[0]
		return &domain.PipelineError{
			Kind:    domain.KindValidation,
			Message: fmt.Sprintf("syntax error: %s", first.Message),
			Line:    first.Position.Line,
			Column:  first.Position.Column,
		}
	}
	return domain.NewValidationError(fmt.Sprintf("syntax error: %v", perr))
}

func findFunction(prog *ast.Program, name string) *ast.FunctionLiteral {
	for _, stmt := range prog.Body {
		decl, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || decl.Function == nil || decl.Function.Name == nil {
			continue
		}
		if decl.Function.Name.Name.String() == name {
			return decl.Function
		}
	}
	return nil
}

// ValidateDirectResponse checks a candidate direct-response payload.
// Fields that are present are type-checked before the output requirement
// is enforced, so a payload carrying a mistyped optional field reports
// that field rather than a missing key. The first violated rule wins and
// the returned error names the offending field.
func ValidateDirectResponse(raw any) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return domain.NewValidationError(fmt.Sprintf("direct response must be a mapping, got %T", raw))
	}

	if ct, ok := m["content_type"]; ok {
		if _, isStr := ct.(string); !isStr {
			return &domain.PipelineError{
				Kind:    domain.KindValidation,
				Message: fmt.Sprintf(`direct response "content_type" must be a string, got %T`, ct),
				Field:   "content_type",
			}
		}
	}

	if sc, ok := m["status_code"]; ok {
		if _, isInt := toInt(sc); !isInt {
			return &domain.PipelineError{
				Kind:    domain.KindValidation,
				Message: fmt.Sprintf(`direct response "status_code" must be an integer, got %T`, sc),
				Field:   "status_code",
			}
		}
	}

	out, ok := m["output"]
	if !ok {
		return &domain.PipelineError{
			Kind:    domain.KindValidation,
			Message: `direct response is missing required key "output"`,
			Field:   "output",
		}
	}
	switch out.(type) {
	case string, []byte:
	default:
		return &domain.PipelineError{
			Kind:    domain.KindValidation,
			Message: fmt.Sprintf(`direct response "output" must be a string or bytes, got %T`, out),
			Field:   "output",
		}
	}

	return nil
}

// toInt accepts the integer shapes the interpreter exports for JS
// numbers.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
