package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/filter"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// Operation sets one field on every matched record. For a many-valued
// relation the value is a related id (or a list of ids) to attach.
type Operation struct {
	Field string       `json:"field"`
	Value filter.Value `json:"value"`
}

type MutationResult struct {
	Success      bool     `json:"success"`
	EntityType   string   `json:"entityType"`
	UpdatedCount int      `json:"updatedCount"`
	UpdatedIDs   []string `json:"updatedIds"`
	Errors       []string `json:"errors,omitempty"`
}

type MutationPreview struct {
	EntityType      string          `json:"entityType"`
	Field           string          `json:"field"`
	MatchingCount   int             `json:"matchingCount"`
	MatchingRecords []PreviewRecord `json:"matchingRecords"`
}

type PreviewRecord struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	CurrentValue any    `json:"currentValue"`
	NewValue     any    `json:"newValue"`
}

// mutation is a validated Operation bound to its entity and predicate.
type mutation struct {
	entity *metadata.Entity
	field  *metadata.Field
	pred   *filter.Predicate
	value  any      // scalar fields
	links  []string // many-valued relations
}

// prepare validates everything that can be checked without touching
// storage: the entity type, the filter guard, field editability, the
// filter itself and the operand type.
func (e *Engine) prepare(entityType string, expr filter.Expression, op Operation, requireFilter bool) (*mutation, error) {
	entity, err := e.reg.Describe(entityType)
	if err != nil {
		return nil, err
	}
	if requireFilter && expr.IsEmpty() {
		return nil, apperr.EmptyFilterRejected(string(entity.Type))
	}
	field := entity.GetField(op.Field)
	if field == nil || !field.Editable {
		return nil, apperr.NonEditableField(string(entity.Type), op.Field)
	}
	pred, err := filter.Compile(e.reg, string(entity.Type), expr)
	if err != nil {
		return nil, err
	}

	m := &mutation{entity: entity, field: field, pred: pred}
	if field.IsMany() {
		values, err := filter.CoerceAll(field, op.Value)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, apperr.TypeMismatch(field.Name, "expected at least one related id")
		}
		for _, v := range values {
			m.links = append(m.links, v.(string))
		}
		return m, nil
	}

	v, err := filter.Coerce(field, op.Value)
	if err != nil {
		return nil, err
	}
	if v == nil && (field.Required || field.Kind == metadata.KindBoolean) {
		return nil, apperr.TypeMismatch(field.Name, "value is required")
	}
	m.value = v
	return m, nil
}

// checkReferences verifies that every related id the mutation points at exists.
func (e *Engine) checkReferences(ctx context.Context, q store.Querier, m *mutation) error {
	if m.field.Kind != metadata.KindRelation {
		return nil
	}
	ids := m.links
	if !m.field.IsMany() {
		if m.value == nil {
			return nil
		}
		ids = []string{m.value.(string)}
	}
	target := e.reg.Target(m.field)
	missing, err := e.missingIDs(ctx, q, target, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperr.ReferencedEntityMissing(string(target.Type), missing[0])
	}
	return nil
}

// Preview reports, for the first matching records, the current value of the
// field and the value execute would leave behind. Nothing is written.
func (e *Engine) Preview(ctx context.Context, entityType string, expr filter.Expression, op Operation) (*MutationPreview, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "bulk.preview")
	defer span.End()
	span.SetEntity(entityType)

	m, err := e.prepare(entityType, expr, op, false)
	if err != nil {
		span.SetStatus("rejected")
		return nil, err
	}

	total, err := e.count(ctx, e.store.DB, m.pred)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	rows, err := e.fetch(ctx, e.store.DB, m.pred, e.limits.PreviewLimit)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	preview := &MutationPreview{
		EntityType:      string(m.entity.Type),
		Field:           m.field.Name,
		MatchingCount:   total,
		MatchingRecords: make([]PreviewRecord, 0, len(rows)),
	}
	for _, row := range rows {
		rec := PreviewRecord{
			ID:           fmt.Sprintf("%v", row[metadata.PrimaryKey]),
			DisplayName:  displayName(m.entity, row),
			CurrentValue: row[m.field.Name],
		}
		if m.field.IsMany() {
			current, _ := row[m.field.Name].([]string)
			rec.NewValue = union(current, m.links)
		} else {
			rec.NewValue = filter.Display(m.value)
		}
		preview.MatchingRecords = append(preview.MatchingRecords, rec)
	}
	return preview, nil
}

// Execute applies op to every record matched by expr inside one
// transaction. An empty expression is rejected before storage is touched.
// On a storage failure nothing is changed: the returned result reports
// success=false with the cause, alongside a TRANSACTION_FAILED error.
func (e *Engine) Execute(ctx context.Context, entityType string, expr filter.Expression, op Operation) (*MutationResult, error) {
	inst := instrument.GetInstrumenter(ctx)
	ctx, span := inst.StartSpan(ctx, "engine", "bulk.execute")
	defer span.End()
	span.SetEntity(entityType)

	m, err := e.prepare(entityType, expr, op, true)
	if err != nil {
		span.SetStatus("rejected")
		return nil, err
	}
	if err := e.checkReferences(ctx, e.store.DB, m); err != nil {
		span.SetStatus("rejected")
		return nil, err
	}

	kind := "scalar"
	if m.field.IsMany() {
		kind = "attach"
	}

	var ids []string
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = e.resolveIDs(ctx, tx, m.pred)
		if err != nil || len(ids) == 0 {
			return err
		}
		if m.field.IsMany() {
			return e.attachLinks(ctx, tx, m.field, ids, m.links)
		}
		return e.updateScalar(ctx, tx, m)
	})
	if err != nil {
		span.SetStatus("error")
		return e.failed(m, kind, err)
	}

	inst.CountMutation(string(m.entity.Type), kind, len(ids))
	e.log.Info().
		Str("entity", string(m.entity.Type)).
		Str("field", m.field.Name).
		Str("kind", kind).
		Int("updated", len(ids)).
		Msg("bulk mutation executed")

	return &MutationResult{
		Success:      true,
		EntityType:   string(m.entity.Type),
		UpdatedCount: len(ids),
		UpdatedIDs:   ids,
	}, nil
}

// DisconnectRelation detaches the related id(s) in rel.Value from every
// record matched by expr, with the same guard and transaction discipline
// as Execute. rel.Field must name a many-valued relation.
func (e *Engine) DisconnectRelation(ctx context.Context, entityType string, expr filter.Expression, rel Operation) (*MutationResult, error) {
	inst := instrument.GetInstrumenter(ctx)
	ctx, span := inst.StartSpan(ctx, "engine", "bulk.disconnect")
	defer span.End()
	span.SetEntity(entityType)

	m, err := e.prepare(entityType, expr, rel, true)
	if err != nil {
		span.SetStatus("rejected")
		return nil, err
	}
	if !m.field.IsMany() {
		span.SetStatus("rejected")
		return nil, apperr.TypeMismatch(m.field.Name, "disconnect requires a many-valued relation")
	}

	var ids []string
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		ids, err = e.resolveIDs(ctx, tx, m.pred)
		if err != nil || len(ids) == 0 {
			return err
		}
		return e.detachLinks(ctx, tx, m.field, ids, m.links)
	})
	if err != nil {
		span.SetStatus("error")
		return e.failed(m, "detach", err)
	}

	inst.CountMutation(string(m.entity.Type), "detach", len(ids))
	e.log.Info().
		Str("entity", string(m.entity.Type)).
		Str("field", m.field.Name).
		Int("updated", len(ids)).
		Msg("relation disconnected")

	return &MutationResult{
		Success:      true,
		EntityType:   string(m.entity.Type),
		UpdatedCount: len(ids),
		UpdatedIDs:   ids,
	}, nil
}

func (e *Engine) failed(m *mutation, kind string, cause error) (*MutationResult, error) {
	cause = store.MapError(e.store.Dialect, cause)
	e.log.Error().
		Err(cause).
		Str("entity", string(m.entity.Type)).
		Str("field", m.field.Name).
		Str("kind", kind).
		Msg("bulk mutation rolled back")
	return &MutationResult{
		Success:    false,
		EntityType: string(m.entity.Type),
		UpdatedIDs: []string{},
		Errors:     []string{cause.Error()},
	}, apperr.TransactionFailed(cause)
}

// updateScalar issues one UPDATE scoped to the filter.
func (e *Engine) updateScalar(ctx context.Context, tx *sql.Tx, m *mutation) error {
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	set := pb.Add(bindValue(d, m.value))
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s, %s = %s WHERE %s IN (SELECT t.%s FROM %s t%s)",
		m.entity.Table, m.field.Name, set, metadata.UpdatedAtColumn, d.NowExpr(),
		metadata.PrimaryKey, metadata.PrimaryKey, m.entity.Table, m.pred.Where(d, pb, "t"))
	if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("update %s.%s: %w", m.entity.Table, m.field.Name, err)
	}
	return nil
}

// attachLinks inserts one link row per record and related id. Existing
// links are left as they are.
func (e *Engine) attachLinks(ctx context.Context, q store.Querier, f *metadata.Field, ids, related []string) error {
	j := f.Join
	d := e.store.Dialect
	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s) ON CONFLICT DO NOTHING",
		j.Table, j.SourceKey, j.TargetKey, d.Placeholder(1), d.Placeholder(2))
	for _, id := range ids {
		for _, rid := range related {
			if _, err := store.Exec(ctx, q, stmt, id, rid); err != nil {
				return fmt.Errorf("link %s %s -> %s: %w", j.Table, id, rid, err)
			}
		}
	}
	return nil
}

// detachLinks deletes the links between each record and the related ids.
func (e *Engine) detachLinks(ctx context.Context, q store.Querier, f *metadata.Field, ids, related []string) error {
	j := f.Join
	d := e.store.Dialect
	args := make([]any, len(related))
	for i, rid := range related {
		args[i] = rid
	}
	for _, id := range ids {
		pb := d.NewParamBuilder()
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s",
			j.Table, j.SourceKey, pb.Add(id), d.InExpr(j.TargetKey, pb, args))
		if _, err := store.Exec(ctx, q, stmt, pb.Params()...); err != nil {
			return fmt.Errorf("unlink %s %s: %w", j.Table, id, err)
		}
	}
	return nil
}

// bindValue encodes a coerced field value as a statement parameter.
func bindValue(d store.Dialect, v any) any {
	if t, ok := v.(time.Time); ok {
		return d.DateParam(t)
	}
	return v
}

// union appends the ids of add missing from current, keeping order.
func union(current, add []string) []string {
	out := make([]string, 0, len(current)+len(add))
	seen := make(map[string]bool, len(current)+len(add))
	for _, list := range [][]string{current, add} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
