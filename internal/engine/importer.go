package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// match is an existing record colliding with an import item on id or
// natural key. Both kinds of collision form one conflict; divergent marks
// the case where the id and the natural key belong to two different records.
type match struct {
	existingID string
	otherID    string
	reason     string
	divergent  bool
}

// Validate reports structural errors and conflicts for every item of the
// batch without writing anything.
func (e *Engine) Validate(ctx context.Context, batch *ImportBatch, entityType string) (*ValidationReport, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "import.validate")
	defer span.End()
	span.SetEntity(entityType)

	entity, err := e.reg.Describe(entityType)
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(batch, entity); err != nil {
		span.SetStatus("rejected")
		return nil, err
	}

	report := &ValidationReport{Conflicts: []Conflict{}, Errors: []ItemError{}}
	seen := newClaims()
	for i, raw := range batch.Items {
		it, m, err := e.inspect(ctx, entity, i, raw, seen)
		if err != nil {
			report.Errors = append(report.Errors, itemError(entity, i, raw, err))
			continue
		}
		seen.claim(i, it.id, it.key)
		report.ValidItemCount++
		if m != nil {
			report.Conflicts = append(report.Conflicts, Conflict{
				Item:       i,
				Identifier: it.identifier,
				ExistingID: m.existingID,
				Reason:     m.reason,
			})
		}
	}
	report.IsValid = len(report.Errors) == 0
	return report, nil
}

// Reconcile applies (or, with dryRun, simulates) every item of the batch
// under the conflict policy. Each item is written in its own transaction
// and a failing item never stops the rest. A dry run computes the same
// summary a real run would, against the same starting state.
func (e *Engine) Reconcile(ctx context.Context, batch *ImportBatch, entityType string, policy ConflictResolution, dryRun bool, opts ImportOptions) (*ExecutionResult, error) {
	inst := instrument.GetInstrumenter(ctx)
	ctx, span := inst.StartSpan(ctx, "engine", "import.reconcile")
	defer span.End()
	span.SetEntity(entityType)

	entity, err := e.reg.Describe(entityType)
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(batch, entity); err != nil {
		span.SetStatus("rejected")
		return nil, err
	}
	if policy, err = ParseConflictResolution(string(policy)); err != nil {
		span.SetStatus("rejected")
		return nil, err
	}
	owner := strings.TrimSpace(opts.ActingIdentity)
	if entity.OwnerColumn != "" && owner == "" {
		span.SetStatus("rejected")
		return nil, apperr.InvalidBatch(fmt.Sprintf("an acting identity is required to import %s records", entity.Type))
	}
	if opts.Condition != "" {
		if _, err := e.conds.Compile(opts.Condition); err != nil {
			span.SetStatus("rejected")
			return nil, apperr.InvalidBatch(err.Error())
		}
	}

	log := e.log.Entity(string(entity.Type))
	result := &ExecutionResult{
		DryRun:     dryRun,
		EntityType: string(entity.Type),
		PerItem:    make([]ItemResult, 0, len(batch.Items)),
	}
	seen := newClaims()

	for i, raw := range batch.Items {
		res := e.reconcileItem(ctx, entity, i, raw, policy, dryRun, owner, opts.Condition, seen)
		if res.Outcome == OutcomeFailed {
			log.Warn().
				Int("item", i).
				Str("identifier", res.Identifier).
				Str("code", res.Code).
				Str("error", res.Error).
				Bool("dry_run", dryRun).
				Msg("import item failed")
		}
		result.record(res)
	}
	result.Success = result.Summary.Errors == 0

	for outcome, n := range map[Outcome]int{
		OutcomeCreated: result.Summary.Created,
		OutcomeUpdated: result.Summary.Updated,
		OutcomeSkipped: result.Summary.Skipped,
		OutcomeFailed:  result.Summary.Errors,
	} {
		inst.CountImport(string(entity.Type), string(outcome), n, dryRun)
	}
	if !result.Success {
		span.SetStatus("partial")
	}
	log.Info().
		Str("policy", string(policy)).
		Bool("dry_run", dryRun).
		Int("created", result.Summary.Created).
		Int("updated", result.Summary.Updated).
		Int("skipped", result.Summary.Skipped).
		Int("errors", result.Summary.Errors).
		Msg("import reconciled")
	return result, nil
}

func (e *Engine) reconcileItem(ctx context.Context, entity *metadata.Entity, index int, raw map[string]any,
	policy ConflictResolution, dryRun bool, owner, condition string, seen *claims) ItemResult {

	if condition != "" {
		ok, err := e.conds.EvaluateBool(condition, map[string]any{"item": raw})
		if err != nil {
			return failedItem(entity, index, raw, apperr.ItemValidationFailed(err.Error()))
		}
		if !ok {
			return ItemResult{
				Item:       index,
				Identifier: identifierOf(entity, raw, index),
				Outcome:    OutcomeSkipped,
				Reason:     "condition not met",
			}
		}
	}

	it, m, err := e.inspect(ctx, entity, index, raw, seen)
	if err != nil {
		return failedItem(entity, index, raw, err)
	}

	res := ItemResult{Item: index, Identifier: it.identifier}
	id, key := it.id, it.key
	switch {
	case m == nil:
		res.Outcome = OutcomeCreated
	case policy == ResolveSkip:
		res.Outcome = OutcomeSkipped
		res.RecordID = m.existingID
		res.Reason = m.reason
	case policy == ResolveUpdate:
		if m.divergent {
			return failedItem(entity, index, raw, apperr.ItemValidationFailed(m.reason+"; refusing to update"))
		}
		res.Outcome = OutcomeUpdated
		res.Reason = m.reason
		id = m.existingID
	default: // create_new
		res.Outcome = OutcomeCreated
		res.Reason = m.reason
		id = uuid.NewString()
		if entity.NaturalKey != "" {
			key, err = e.deriveKey(ctx, entity, it.key, seen)
			if err != nil {
				return failedItem(entity, index, raw, err)
			}
		}
	}
	res.RecordID = firstNonEmpty(res.RecordID, id)

	seen.claim(index, it.id, it.key)
	seen.claim(index, id, key)

	if dryRun || res.Outcome == OutcomeSkipped {
		return res
	}

	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if res.Outcome == OutcomeUpdated {
			return e.updateRecord(ctx, tx, entity, id, it)
		}
		return e.insertRecord(ctx, tx, entity, id, key, owner, it)
	})
	if err != nil {
		err = store.MapError(e.store.Dialect, err)
		if errors.Is(err, store.ErrUniqueViolation) {
			return failedItem(entity, index, raw, apperr.ItemValidationFailed(err.Error()))
		}
		return failedItem(entity, index, raw, apperr.TransactionFailed(err))
	}
	return res
}

// inspect runs every read-only check on one item: shape, in-batch
// duplicates, referenced records and collisions with existing records.
func (e *Engine) inspect(ctx context.Context, entity *metadata.Entity, index int, raw map[string]any, seen *claims) (*importItem, *match, error) {
	it, err := parseItem(entity, index, raw)
	if err != nil {
		return nil, nil, err
	}
	if err := seen.check(entity, it); err != nil {
		return nil, nil, err
	}
	if err := e.checkItemReferences(ctx, entity, it); err != nil {
		return nil, nil, err
	}
	m, err := e.findMatch(ctx, entity, it)
	if err != nil {
		return nil, nil, err
	}
	return it, m, nil
}

func (e *Engine) checkItemReferences(ctx context.Context, entity *metadata.Entity, it *importItem) error {
	for _, f := range entity.References() {
		v, ok := it.values[f.Name].(string)
		if !ok {
			continue
		}
		target := e.reg.Target(f)
		missing, err := e.missingIDs(ctx, e.store.DB, target, []string{v})
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return apperr.ReferencedEntityMissing(string(target.Type), missing[0])
		}
	}
	for _, f := range entity.ManyRelations() {
		ids := it.links[f.Name]
		if len(ids) == 0 {
			continue
		}
		target := e.reg.Target(f)
		missing, err := e.missingIDs(ctx, e.store.DB, target, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return apperr.ReferencedEntityMissing(string(target.Type), missing[0])
		}
	}
	return nil
}

// findMatch looks for existing records sharing the item's id or natural key.
func (e *Engine) findMatch(ctx context.Context, entity *metadata.Entity, it *importItem) (*match, error) {
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	cols := metadata.PrimaryKey
	where := fmt.Sprintf("%s = %s", metadata.PrimaryKey, pb.Add(it.id))
	if entity.NaturalKey != "" {
		cols += ", " + entity.NaturalKey
		where += fmt.Sprintf(" OR %s = %s", entity.NaturalKey, pb.Add(it.key))
	}
	rows, err := store.QueryRows(ctx, e.store.DB,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s", cols, entity.Table, where), pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("find existing %s: %w", entity.Table, err)
	}

	var byID, byKey string
	for _, row := range rows {
		rid := fmt.Sprintf("%v", row[metadata.PrimaryKey])
		if rid == it.id {
			byID = rid
		}
		if entity.NaturalKey != "" && fmt.Sprintf("%v", row[entity.NaturalKey]) == it.key {
			byKey = rid
		}
	}

	nk := entity.NaturalKey
	switch {
	case byID == "" && byKey == "":
		return nil, nil
	case byKey == "":
		return &match{existingID: byID, reason: fmt.Sprintf("id %s already exists", it.id)}, nil
	case byID == "":
		return &match{existingID: byKey, reason: fmt.Sprintf("%s %q already belongs to record %s", nk, it.key, byKey)}, nil
	case byID == byKey:
		return &match{existingID: byID, reason: fmt.Sprintf("id %s and %s %q already exist", it.id, nk, it.key)}, nil
	default:
		return &match{
			existingID: byID,
			otherID:    byKey,
			divergent:  true,
			reason:     fmt.Sprintf("id %s already exists but %s %q belongs to a different record %s", it.id, nk, it.key, byKey),
		}, nil
	}
}

// deriveKey suffixes base ("-2", "-3", ...) until the result is unused in
// storage and in the batch so far.
func (e *Engine) deriveKey(ctx context.Context, entity *metadata.Entity, base string, seen *claims) (string, error) {
	d := e.store.Dialect
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s", entity.Table, entity.NaturalKey, d.Placeholder(1))
	for n := 2; n < 1000; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if seen.hasKey(candidate) {
			continue
		}
		taken, err := store.Count(ctx, e.store.DB, stmt, candidate)
		if err != nil {
			return "", err
		}
		if taken == 0 {
			return candidate, nil
		}
	}
	return "", apperr.ItemValidationFailed(fmt.Sprintf("no free %s derived from %q", entity.NaturalKey, base))
}

func (e *Engine) insertRecord(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id, key, owner string, it *importItem) error {
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	cols := []string{metadata.PrimaryKey}
	phs := []string{pb.Add(id)}
	for _, f := range it.present {
		v := it.values[f.Name]
		if f.Name == entity.NaturalKey {
			v = key
		}
		cols = append(cols, f.Name)
		phs = append(phs, pb.Add(bindValue(d, v)))
	}
	if entity.OwnerColumn != "" {
		cols = append(cols, entity.OwnerColumn)
		phs = append(phs, pb.Add(owner))
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		entity.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("insert %s: %w", entity.Table, err)
	}
	for _, f := range entity.ManyRelations() {
		ids, ok := it.links[f.Name]
		if !ok || len(ids) == 0 {
			continue
		}
		if err := e.attachLinks(ctx, tx, f, []string{id}, ids); err != nil {
			return err
		}
	}
	return nil
}

// updateRecord overwrites the editable fields the item carries. The id and
// natural key of the existing record are kept.
func (e *Engine) updateRecord(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id string, it *importItem) error {
	d := e.store.Dialect
	pb := d.NewParamBuilder()
	var sets []string
	for _, f := range it.present {
		if !f.Editable {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Name, pb.Add(bindValue(d, it.values[f.Name]))))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", metadata.UpdatedAtColumn, d.NowExpr()))

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		entity.Table, strings.Join(sets, ", "), metadata.PrimaryKey, pb.Add(id))
	if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
		return fmt.Errorf("update %s: %w", entity.Table, err)
	}

	for _, f := range entity.ManyRelations() {
		ids, ok := it.links[f.Name]
		if !ok || !f.Editable {
			continue
		}
		j := f.Join
		unlink := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", j.Table, j.SourceKey, d.Placeholder(1))
		if _, err := store.Exec(ctx, tx, unlink, id); err != nil {
			return fmt.Errorf("clear %s links: %w", j.Table, err)
		}
		if err := e.attachLinks(ctx, tx, f, []string{id}, ids); err != nil {
			return err
		}
	}
	return nil
}

func itemError(entity *metadata.Entity, index int, raw map[string]any, err error) ItemError {
	ie := ItemError{Item: index, Identifier: identifierOf(entity, raw, index), Reason: err.Error()}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		ie.Code = appErr.Code
	}
	return ie
}

func failedItem(entity *metadata.Entity, index int, raw map[string]any, err error) ItemResult {
	ie := itemError(entity, index, raw, err)
	return ItemResult{
		Item:       index,
		Identifier: ie.Identifier,
		Outcome:    OutcomeFailed,
		Code:       ie.Code,
		Error:      ie.Reason,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
