package instrument

import "context"

var noop = &NoopInstrumenter{}

// NoopInstrumenter discards everything. Used when metrics are disabled.
type NoopInstrumenter struct{}

func (n *NoopInstrumenter) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}

func (n *NoopInstrumenter) CountMutation(entity, kind string, records int)          {}
func (n *NoopInstrumenter) CountImport(entity, outcome string, items int, dryRun bool) {}

// NoopSpan discards all data.
type NoopSpan struct{}

func (n *NoopSpan) End()                    {}
func (n *NoopSpan) SetStatus(status string) {}
func (n *NoopSpan) SetEntity(entity string) {}
