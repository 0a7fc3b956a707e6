// Package instrument times engine operations and counts their outcomes.
package instrument

import "context"

// Instrumenter opens spans around engine operations and records outcome counts.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
	CountMutation(entity, kind string, records int)
	CountImport(entity, outcome string, items int, dryRun bool)
}

// Span measures one operation. End must be called exactly once.
type Span interface {
	End()
	SetStatus(status string)
	SetEntity(entity string)
}

type ctxKey struct{}

// WithInstrumenter stores inst in ctx.
func WithInstrumenter(ctx context.Context, inst Instrumenter) context.Context {
	return context.WithValue(ctx, ctxKey{}, inst)
}

// GetInstrumenter returns the instrumenter stored in ctx, or a no-op one.
func GetInstrumenter(ctx context.Context) Instrumenter {
	if inst, ok := ctx.Value(ctxKey{}).(Instrumenter); ok && inst != nil {
		return inst
	}
	return noop
}
