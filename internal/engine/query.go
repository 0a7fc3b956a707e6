package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"racecal-backend/internal/filter"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// Query returns up to limit records of entityType matching expr, in the
// entity's default order. A non-positive limit selects the default; limits
// above the configured maximum are capped. An empty expression matches all.
func (e *Engine) Query(ctx context.Context, entityType string, expr filter.Expression, limit int) ([]Record, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "query")
	defer span.End()
	span.SetEntity(entityType)

	pred, err := filter.Compile(e.reg, entityType, expr)
	if err != nil {
		span.SetStatus("rejected")
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = e.limits.DefaultQueryLimit
	case limit > e.limits.MaxQueryLimit:
		limit = e.limits.MaxQueryLimit
	}

	rows, err := e.fetch(ctx, e.store.DB, pred, limit)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	return rows, nil
}

// fetch loads matching records with their display columns and relation ids.
// limit <= 0 means unbounded.
func (e *Engine) fetch(ctx context.Context, q store.Querier, pred *filter.Predicate, limit int) ([]Record, error) {
	entity := pred.Entity()
	d := e.store.Dialect
	pb := d.NewParamBuilder()

	sql := selectSQL(e.reg, entity) + pred.Where(d, pb, "t") + " ORDER BY " + entity.OrderSQL("t")
	if limit > 0 {
		sql += " LIMIT " + pb.Add(limit)
	}

	rows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", entity.Table, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	e.normalize(entity, rows)

	if err := e.loadLinks(ctx, q, entity, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// selectSQL selects every column of the entity table aliased "t" plus the
// display value of each referenced parent.
func selectSQL(reg *metadata.Registry, entity *metadata.Entity) string {
	cols := entity.Columns()
	selects := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		selects = append(selects, "t."+c)
	}

	var joins []string
	for i, f := range entity.References() {
		if f.DisplayAs == "" {
			continue
		}
		target := reg.Target(f)
		pa := fmt.Sprintf("p%d", i)
		selects = append(selects, fmt.Sprintf("%s.%s AS %s", pa, target.DisplayField, f.DisplayAs))
		joins = append(joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = t.%s",
			target.Table, pa, pa, metadata.PrimaryKey, f.Name))
	}

	sql := fmt.Sprintf("SELECT %s FROM %s t", strings.Join(selects, ", "), entity.Table)
	if len(joins) > 0 {
		sql += " " + strings.Join(joins, " ")
	}
	return sql
}

func (e *Engine) normalize(entity *metadata.Entity, rows []map[string]any) {
	var bools, dates []string
	for _, f := range entity.Fields {
		switch f.Kind {
		case metadata.KindBoolean:
			bools = append(bools, f.Name)
		case metadata.KindDate:
			dates = append(dates, f.Name)
		}
	}
	if e.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, bools)
	}
	store.NormalizeDates(rows, dates)
	store.NormalizeTimestamps(rows, []string{metadata.CreatedAtColumn, metadata.UpdatedAtColumn})
}

// loadLinks attaches the related ids of every many-valued relation,
// batching one join-table query per relation.
func (e *Engine) loadLinks(ctx context.Context, q store.Querier, entity *metadata.Entity, rows []map[string]any) error {
	many := entity.ManyRelations()
	if len(many) == 0 || len(rows) == 0 {
		return nil
	}

	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[metadata.PrimaryKey]
	}

	for _, f := range many {
		j := f.Join
		pb := e.store.Dialect.NewParamBuilder()
		sql := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s ORDER BY %s",
			j.SourceKey, j.TargetKey, j.Table,
			e.store.Dialect.InExpr(j.SourceKey, pb, ids), j.TargetKey)
		linkRows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
		if err != nil {
			return fmt.Errorf("load %s links: %w", f.Name, err)
		}

		bySource := make(map[string][]string)
		for _, lr := range linkRows {
			sid := fmt.Sprintf("%v", lr[j.SourceKey])
			bySource[sid] = append(bySource[sid], fmt.Sprintf("%v", lr[j.TargetKey]))
		}
		for _, row := range rows {
			linked := bySource[fmt.Sprintf("%v", row[metadata.PrimaryKey])]
			if linked == nil {
				linked = []string{}
			}
			row[f.Name] = linked
		}
	}
	return nil
}

// resolveIDs returns the ids of every record the predicate matches.
func (e *Engine) resolveIDs(ctx context.Context, q store.Querier, pred *filter.Predicate) ([]string, error) {
	entity := pred.Entity()
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT t.%s FROM %s t", metadata.PrimaryKey, entity.Table) +
		pred.Where(d, pb, "t") + " ORDER BY " + entity.OrderSQL("t")
	ids, err := store.QueryStrings(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s ids: %w", entity.Table, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (e *Engine) count(ctx context.Context, q store.Querier, pred *filter.Predicate) (int, error) {
	entity := pred.Entity()
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s t", entity.Table) + pred.Where(d, pb, "t")
	return store.Count(ctx, q, sql, pb.Params()...)
}

// missingIDs returns the ids (deduplicated, sorted) that have no record in
// the entity's table.
func (e *Engine) missingIDs(ctx context.Context, q store.Querier, entity *metadata.Entity, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		if !want[id] {
			want[id] = true
			args = append(args, id)
		}
	}

	pb := e.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", metadata.PrimaryKey, entity.Table,
		e.store.Dialect.InExpr(metadata.PrimaryKey, pb, args))
	found, err := store.QueryStrings(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("check %s ids: %w", entity.Table, err)
	}
	for _, id := range found {
		delete(want, id)
	}

	missing := make([]string, 0, len(want))
	for id := range want {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return missing, nil
}

// displayName renders the entity's display field of a record.
func displayName(entity *metadata.Entity, rec Record) string {
	v := rec[entity.DisplayField]
	switch x := v.(type) {
	case nil:
		return fmt.Sprintf("%v", rec[metadata.PrimaryKey])
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
