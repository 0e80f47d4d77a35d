// Package redirect resolves bounded chains of internal redirects into
// content-addressed bytes.
package redirect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/ports"
)

// DefaultMaxHops bounds redirect resolution. It is the only
// cancellation-like safeguard in the pipeline core.
const DefaultMaxHops = 3

// contentTypes maps a redirect target's extension to the synthesized
// response's content type.
var contentTypes = map[string]string{
	"html": "text/html",
	"txt":  "text/plain",
	"json": "application/json",
	"md":   "text/markdown",
}

const defaultContentType = "text/html"

// Follower resolves redirect responses whose Location points at a single
// content-addressed path segment.
type Follower struct {
	resolver ports.ContentResolver
	maxHops  int
	logger   *slog.Logger
}

// NewFollower creates a follower with the given hop budget; budgets
// below 1 fall back to DefaultMaxHops.
func NewFollower(resolver ports.ContentResolver, maxHops int, logger *slog.Logger) *Follower {
	if maxHops < 1 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Follower{resolver: resolver, maxHops: maxHops, logger: logger}
}

// Follow iterates up to the hop budget, replacing redirect responses
// with synthesized 200s holding resolved content. A response that is not
// a redirect is returned unchanged without touching the resolver. An
// unresolvable redirect — missing Location, a multi-segment path, or an
// unknown identifier — is returned as-is: a still-redirecting response
// is a soft give-up for the caller to interpret, never an error.
func (f *Follower) Follow(ctx context.Context, resp *domain.ResponseDetails) *domain.ResponseDetails {
	current := resp
	for hop := 0; hop < f.maxHops; hop++ {
		if !current.IsRedirect() {
			return current
		}

		location, ok := current.Header("Location")
		if !ok || location == "" {
			return current
		}

		id, ext, ok := splitContentRef(location)
		if !ok {
			return current
		}

		blob, found, err := f.resolver.Resolve(ctx, id)
		if err != nil || !found {
			if err != nil {
				f.logger.Warn("redirect content resolution failed",
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
			}
			return current
		}

		synthesized := domain.NewResponseDetails(200, blob, domain.SourceSynthesizedRedirect)
		synthesized.RequestPath = current.RequestPath
		synthesized.SetHeader("Content-Type", contentTypeFor(ext))
		current = synthesized
	}
	return current
}

// splitContentRef extracts a content identifier and optional extension
// from a Location value. Only a single path segment is a resolvable
// content reference; chained internal redirects through sub-paths are
// left alone.
func splitContentRef(location string) (id, ext string, ok bool) {
	path := location
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "/")

	if path == "" || strings.Contains(path, "/") {
		return "", "", false
	}

	id = path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		id, ext = path[:i], path[i+1:]
	}
	return id, ext, true
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return defaultContentType
}
