// Package diag formats pipeline failures for display and logging, and
// redacts sensitive material from request previews.
package diag

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/dop251/goja"

	"github.com/passagehq/passage/internal/domain"
)

// Markers delimiting the machine-readable block inside an error page.
// ExtractErrorPage depends on these exact strings.
const (
	markerException = "== exception =="
	markerTraceback = "== traceback =="
	markerEnd       = "== end =="
)

// redactedHeaders are stripped from every preview and diagnostic,
// matched case-insensitively. This redaction is mandatory, not optional.
var redactedHeaders = []string{"Authorization", "Cookie"}

// Summary produces the one-line form "<ErrorKind>: <message>", or just
// the kind when the message is empty.
func Summary(err error) string {
	return domain.AsPipelineError(err).Error()
}

// Detail produces the full multi-line block: summary, traceback and any
// structured debug context, in a fixed order.
func Detail(err error, debugCtx map[string]any) string {
	var b strings.Builder
	b.WriteString(Summary(err))
	b.WriteString("\n")
	b.WriteString(markerTraceback)
	b.WriteString("\n")
	for _, frame := range Frames(err) {
		b.WriteString(frame)
		b.WriteString("\n")
	}
	if len(debugCtx) > 0 {
		keys := make([]string, 0, len(debugCtx))
		for k := range debugCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, debugCtx[k])
		}
	}
	return b.String()
}

// Frames extracts an ordered list of stack frames from a failure. For
// interpreter exceptions the JS stack is used; otherwise each wrapped
// cause contributes one frame.
func Frames(err error) []string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return jsFrames(ex)
	}

	var frames []string
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		frames = append(frames, "at "+cause.Error())
	}
	return frames
}

func jsFrames(ex *goja.Exception) []string {
	var frames []string
	for _, line := range strings.Split(ex.String(), "\n")[1:] {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "at ") {
			frames = append(frames, line)
		}
	}
	return frames
}

// RenderErrorPage produces the internal failure page. The summary and
// frames sit between fixed markers so ExtractErrorPage (and the
// debugging UI behind it) can recover them.
func RenderErrorPage(err error, debugCtx map[string]any) []byte {
	var b strings.Builder
	b.WriteString("<!doctype html>\n<html>\n<head><title>gateway error</title></head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(Summary(err)))
	b.WriteString(`<pre class="passage-error">` + "\n")
	b.WriteString(markerException + "\n")
	b.WriteString(html.EscapeString(Summary(err)) + "\n")
	b.WriteString(markerTraceback + "\n")
	for _, frame := range Frames(err) {
		b.WriteString(html.EscapeString(frame) + "\n")
	}
	b.WriteString(markerEnd + "\n")
	b.WriteString("</pre>\n")
	if len(debugCtx) > 0 {
		redacted := RedactPreview(debugCtx)
		keys := make([]string, 0, len(redacted))
		for k := range redacted {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("<dl>\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "<dt>%s</dt><dd>%s</dd>\n",
				html.EscapeString(k), html.EscapeString(fmt.Sprintf("%v", redacted[k])))
		}
		b.WriteString("</dl>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

// ExtractErrorPage recovers the embedded exception summary and ordered
// stack frames from an internal failure page. ok is false when the page
// does not carry the expected markers.
func ExtractErrorPage(page string) (summary string, frames []string, ok bool) {
	excIdx := strings.Index(page, markerException)
	tbIdx := strings.Index(page, markerTraceback)
	endIdx := strings.Index(page, markerEnd)
	if excIdx < 0 || tbIdx < excIdx || endIdx < tbIdx {
		return "", nil, false
	}

	summary = strings.TrimSpace(html.UnescapeString(page[excIdx+len(markerException) : tbIdx]))
	for _, line := range strings.Split(page[tbIdx+len(markerTraceback):endIdx], "\n") {
		line = strings.TrimSpace(html.UnescapeString(line))
		if line != "" {
			frames = append(frames, line)
		}
	}
	return summary, frames, true
}

// RedactPreview deep-copies a request-details mapping with sensitive
// headers removed. Every diagnostic and preview path must route through
// this before exposing request data.
func RedactPreview(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.EqualFold(k, "headers") {
			out[k] = redactValue(v)
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = RedactPreview(nested)
		default:
			out[k] = v
		}
	}
	return out
}

func redactValue(v any) any {
	switch headers := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(headers))
		for k, hv := range headers {
			if isRedacted(k) {
				continue
			}
			out[k] = hv
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(headers))
		for k, hv := range headers {
			if isRedacted(k) {
				continue
			}
			out[k] = hv
		}
		return out
	}
	return v
}

func isRedacted(name string) bool {
	for _, h := range redactedHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
