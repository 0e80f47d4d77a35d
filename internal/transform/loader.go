package transform

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dop251/goja"

	"github.com/passagehq/passage/internal/content"
	"github.com/passagehq/passage/internal/domain"
	"github.com/passagehq/passage/internal/ports"
)

// Loader resolves transform source and compiles it into an invocable
// unit. Resolution order: a local file path that exists wins (the
// development override), otherwise the content store. There is
// deliberately no cache — transforms are user-editable and must reflect
// the latest edit on the very next call.
type Loader struct {
	resolver ports.ContentResolver
	logger   *slog.Logger
}

var _ ports.TransformLoader = (*Loader)(nil)

// NewLoader creates a loader over the given content resolver.
func NewLoader(resolver ports.ContentResolver, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{resolver: resolver, logger: logger}
}

// Load resolves, validates and compiles the transform addressed by id
// for the given role. All failures come back as typed pipeline errors
// with a logged diagnostic; Load never panics into the caller.
func (l *Loader) Load(ctx context.Context, id string, role ports.TransformRole) (ports.Transform, error) {
	src, origin, err := l.source(ctx, id)
	if err != nil {
		l.logger.Warn("transform source unavailable",
			slog.String("id", id),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	warnings, err := ValidateSource(origin, src, role)
	if err != nil {
		l.logger.Warn("transform validation failed",
			slog.String("id", id),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	for _, w := range warnings {
		l.logger.Warn("transform validation warning",
			slog.String("id", id),
			slog.String("warning", w),
		)
	}

	prog, cerr := goja.Compile(origin, src, false)
	if cerr != nil {
		err := domain.NewValidationError(fmt.Sprintf("compile %s: %v", origin, cerr))
		l.logger.Warn("transform compile failed", slog.String("id", id), slog.String("error", err.Error()))
		return nil, err
	}

	return &jsTransform{prog: prog, entry: role.EntryName()}, nil
}

// source returns the transform source text and a display name for it.
func (l *Loader) source(ctx context.Context, id string) (src, origin string, err error) {
	if info, serr := os.Stat(id); serr == nil && !info.IsDir() {
		data, rerr := os.ReadFile(id)
		if rerr != nil {
			return "", "", domain.NewConfigurationError(fmt.Sprintf("read transform file %s: %v", id, rerr))
		}
		return string(data), id, nil
	}

	if verr := content.ValidateID(id); verr != nil {
		return "", "", domain.NewConfigurationError(verr.Error())
	}
	data, ok, rerr := l.resolver.Resolve(ctx, id)
	if rerr != nil {
		return "", "", domain.NewConfigurationError(fmt.Sprintf("resolve transform %s: %v", id, rerr))
	}
	if !ok {
		return "", "", domain.NewConfigurationError(fmt.Sprintf("transform source not found: %s", id))
	}
	return string(data), id, nil
}

// jsTransform runs a compiled program in a fresh interpreter per
// invocation. Nothing leaks between calls or across concurrent calls:
// every Invoke gets its own runtime and global namespace.
//
// There is no sandboxing. Compiled code runs with the host's standard
// capabilities; the operator controls who may register transforms.
type jsTransform struct {
	prog  *goja.Program
	entry string
}

func (t *jsTransform) Invoke(ctx context.Context, input map[string]any, tctx map[string]any) (any, error) {
	rt := goja.New()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := rt.RunProgram(t.prog); err != nil {
		return nil, domain.NewExecutionError(fmt.Sprintf("evaluate transform source: %v", err), err)
	}

	fn, ok := goja.AssertFunction(rt.Get(t.entry))
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("missing required function: %s", t.entry))
	}

	res, err := fn(goja.Undefined(), rt.ToValue(input), rt.ToValue(tctx))
	if err != nil {
		return nil, domain.NewExecutionError(fmt.Sprintf("%s: %v", t.entry, err), err)
	}
	return res.Export(), nil
}

var _ ports.Transform = (*jsTransform)(nil)
