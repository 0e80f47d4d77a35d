// Package ports defines the narrow interfaces the pipeline consumes.
// Implementations live in adapters; the pipeline depends only on these.
package ports

import (
	"context"

	"github.com/passagehq/passage/internal/domain"
)

// ContentResolver maps a content identifier to its bytes.
//
// Resolve must be deterministic: the same identifier always yields the
// same bytes. Unknown identifiers return ok=false rather than an error;
// err is reserved for malformed identifiers and resolver faults. The
// pipeline never mutates content through this interface.
type ContentResolver interface {
	Resolve(ctx context.Context, id string) (content []byte, ok bool, err error)
}

// TargetExecutor dispatches a transformed request to an internal target.
// Implementations only accept paths beginning with "/"; timeout and
// cancellation policy is theirs to own.
type TargetExecutor interface {
	Execute(ctx context.Context, req *domain.RequestDetails) (*domain.ResponseDetails, error)
}

// TransformRole selects which entry function a loaded transform exposes.
type TransformRole string

const (
	RoleRequest  TransformRole = "request"
	RoleResponse TransformRole = "response"
)

// EntryName returns the function name a transform source must define for
// this role.
func (r TransformRole) EntryName() string {
	if r == RoleResponse {
		return "transform_response"
	}
	return "transform_request"
}

// Transform is a single invocable unit of user-supplied logic. The
// narrow surface lets a future implementation insert sandboxing or a
// restricted interpreter without touching the pipeline.
type Transform interface {
	// Invoke runs the transform with the request-or-response mapping and
	// the transform context, returning the raw result for the caller to
	// classify. A failure inside user code is returned as an error, not
	// panicked.
	Invoke(ctx context.Context, input map[string]any, tctx map[string]any) (any, error)
}

// TransformLoader produces a callable transform for an identifier and
// role. Every call re-reads and recompiles; there is no cache, so edits
// to transform source take effect on the very next request.
type TransformLoader interface {
	Load(ctx context.Context, id string, role TransformRole) (Transform, error)
}
