package engine

import (
	"context"
	"time"

	"racecal-backend/internal/filter"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/metadata"
)

// Export returns the records matching expr as an import batch. Items carry
// the id and every importable field, including many-relation id lists, so
// feeding the batch back to Reconcile reproduces the records.
func (e *Engine) Export(ctx context.Context, entityType string, expr filter.Expression) (*ImportBatch, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "export")
	defer span.End()
	span.SetEntity(entityType)

	pred, err := filter.Compile(e.reg, entityType, expr)
	if err != nil {
		span.SetStatus("rejected")
		return nil, err
	}
	rows, err := e.fetch(ctx, e.store.DB, pred, e.limits.ExportLimit)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	entity := pred.Entity()
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		item := map[string]any{metadata.PrimaryKey: row[metadata.PrimaryKey]}
		for _, f := range entity.ImportableFields() {
			item[f.Name] = row[f.Name]
		}
		items = append(items, item)
	}

	if len(rows) == e.limits.ExportLimit {
		e.log.Warn().
			Str("entity", string(entity.Type)).
			Int("limit", e.limits.ExportLimit).
			Msg("export truncated at limit")
	}

	return &ImportBatch{
		ExportedAt:    time.Now().UTC(),
		EntityType:    string(entity.Type),
		SchemaVersion: SchemaVersion,
		ItemCount:     len(items),
		Items:         items,
	}, nil
}
