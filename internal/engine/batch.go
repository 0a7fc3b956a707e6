package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"racecal-backend/internal/apperr"
	"racecal-backend/internal/filter"
	"racecal-backend/internal/metadata"
)

// SchemaVersion is the import/export envelope version this engine reads and writes.
const SchemaVersion = 1

// ImportBatch is a previous export of one entity type.
type ImportBatch struct {
	ExportedAt    time.Time        `json:"exportedAt"`
	EntityType    string           `json:"entityType"`
	SchemaVersion int              `json:"schemaVersion"`
	ItemCount     int              `json:"itemCount"`
	Items         []map[string]any `json:"items"`
}

type ConflictResolution string

const (
	ResolveSkip      ConflictResolution = "skip"
	ResolveUpdate    ConflictResolution = "update"
	ResolveCreateNew ConflictResolution = "create_new"
)

func ParseConflictResolution(s string) (ConflictResolution, error) {
	switch r := ConflictResolution(strings.ToLower(strings.TrimSpace(s))); r {
	case ResolveSkip, ResolveUpdate, ResolveCreateNew:
		return r, nil
	case "":
		return ResolveSkip, nil
	}
	return "", apperr.InvalidBatch(fmt.Sprintf("unknown conflict resolution %q, expected skip, update or create_new", s))
}

type ImportOptions struct {
	// ActingIdentity owns records created by the import. Required for
	// entity types that record an owner.
	ActingIdentity string `json:"actingIdentity,omitempty"`
	// Condition optionally selects items, e.g. `item.featured == true`.
	// Items it rejects are skipped.
	Condition string `json:"condition,omitempty"`
}

type Conflict struct {
	Item       int    `json:"item"`
	Identifier string `json:"identifier"`
	ExistingID string `json:"existingId"`
	Reason     string `json:"reason"`
}

type ItemError struct {
	Item       int    `json:"item"`
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
	Reason     string `json:"reason"`
}

type ValidationReport struct {
	IsValid        bool        `json:"isValid"`
	ValidItemCount int         `json:"validItemCount"`
	Conflicts      []Conflict  `json:"conflicts"`
	Errors         []ItemError `json:"errors"`
}

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type ItemResult struct {
	Item       int     `json:"item"`
	Identifier string  `json:"identifier"`
	Outcome    Outcome `json:"outcome"`
	RecordID   string  `json:"recordId,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Code       string  `json:"code,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type ExecutionResult struct {
	Success    bool         `json:"success"`
	DryRun     bool         `json:"dryRun"`
	EntityType string       `json:"entityType"`
	Summary    Summary      `json:"summary"`
	PerItem    []ItemResult `json:"perItem"`
}

func (r *ExecutionResult) record(res ItemResult) {
	switch res.Outcome {
	case OutcomeCreated:
		r.Summary.Created++
	case OutcomeUpdated:
		r.Summary.Updated++
	case OutcomeSkipped:
		r.Summary.Skipped++
	case OutcomeFailed:
		r.Summary.Errors++
	}
	r.PerItem = append(r.PerItem, res)
}

// importItem is a structurally valid batch item with coerced values.
type importItem struct {
	index      int
	identifier string
	id         string
	key        string              // natural key value, "" when the entity has none
	present    []*metadata.Field   // scalar fields the item carries, in field order
	values     map[string]any      // column -> coerced value
	links      map[string][]string // many relation -> related ids
	raw        map[string]any
}

func identifierOf(entity *metadata.Entity, raw map[string]any, index int) string {
	if id, ok := raw[metadata.PrimaryKey].(string); ok && strings.TrimSpace(id) != "" {
		return id
	}
	if entity.NaturalKey != "" {
		if key, ok := raw[entity.NaturalKey].(string); ok && strings.TrimSpace(key) != "" {
			return key
		}
	}
	return fmt.Sprintf("#%d", index+1)
}

// derivedKeys are keys an export carries that an import ignores.
func derivedKeys(entity *metadata.Entity) map[string]bool {
	keys := map[string]bool{
		metadata.CreatedAtColumn: true,
		metadata.UpdatedAtColumn: true,
	}
	if entity.OwnerColumn != "" {
		keys[entity.OwnerColumn] = true
	}
	for _, f := range entity.References() {
		if f.DisplayAs != "" {
			keys[f.DisplayAs] = true
		}
	}
	return keys
}

// parseItem checks an item's shape and coerces its values. It never
// touches storage.
func parseItem(entity *metadata.Entity, index int, raw map[string]any) (*importItem, error) {
	it := &importItem{
		index:      index,
		identifier: identifierOf(entity, raw, index),
		values:     make(map[string]any),
		links:      make(map[string][]string),
		raw:        raw,
	}

	id, _ := raw[metadata.PrimaryKey].(string)
	it.id = strings.TrimSpace(id)
	if it.id == "" {
		return nil, apperr.ItemValidationFailed("item has no id")
	}
	if entity.NaturalKey != "" {
		key, _ := raw[entity.NaturalKey].(string)
		it.key = strings.TrimSpace(key)
		if it.key == "" {
			return nil, apperr.ItemValidationFailed(fmt.Sprintf("item has no %s", entity.NaturalKey))
		}
	}

	derived := derivedKeys(entity)
	var unknown []string
	for k := range raw {
		if k != metadata.PrimaryKey && !entity.HasField(k) && !derived[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperr.ItemValidationFailed(fmt.Sprintf("unknown field %s", strings.Join(unknown, ", ")))
	}

	for _, f := range entity.ImportableFields() {
		rawValue, ok := raw[f.Name]
		if !ok {
			if f.Required {
				return nil, apperr.ItemValidationFailed(fmt.Sprintf("missing required field %s", f.Name))
			}
			continue
		}
		v, err := filter.FromAny(rawValue)
		if err != nil {
			return nil, apperr.ItemValidationFailed(fmt.Sprintf("%s: %v", f.Name, err))
		}

		if f.IsMany() {
			values, err := filter.CoerceAll(f, v)
			if err != nil {
				return nil, itemFieldError(err)
			}
			ids := make([]string, 0, len(values))
			for _, rv := range values {
				ids = append(ids, rv.(string))
			}
			it.links[f.Name] = union(nil, ids)
			continue
		}

		coerced, err := filter.Coerce(f, v)
		if err != nil {
			return nil, itemFieldError(err)
		}
		if coerced == nil {
			if f.Required {
				return nil, apperr.ItemValidationFailed(fmt.Sprintf("missing required field %s", f.Name))
			}
			if f.Kind == metadata.KindBoolean {
				coerced = false
			}
		}
		if f.Name == entity.NaturalKey {
			coerced = it.key
		}
		it.values[f.Name] = coerced
		it.present = append(it.present, f)
	}
	return it, nil
}

// itemFieldError reports a coercion failure as an item validation failure.
func itemFieldError(err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return apperr.ItemValidationFailed(appErr.Message)
	}
	return apperr.ItemValidationFailed(err.Error())
}

// claims tracks the ids and natural keys already taken by earlier items of
// the same batch, so a dry run sees the same collisions a real run would.
type claims struct {
	ids  map[string]int
	keys map[string]int
}

func newClaims() *claims {
	return &claims{ids: make(map[string]int), keys: make(map[string]int)}
}

func (c *claims) check(entity *metadata.Entity, it *importItem) error {
	if prev, ok := c.ids[it.id]; ok {
		return apperr.ItemValidationFailed(fmt.Sprintf("id %s repeats item %d of the batch", it.id, prev+1))
	}
	if it.key != "" {
		if prev, ok := c.keys[it.key]; ok {
			return apperr.ItemValidationFailed(fmt.Sprintf("%s %q repeats item %d of the batch", entity.NaturalKey, it.key, prev+1))
		}
	}
	return nil
}

func (c *claims) claim(index int, id, key string) {
	if id != "" {
		c.ids[id] = index
	}
	if key != "" {
		c.keys[key] = index
	}
}

func (c *claims) hasKey(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// checkEnvelope validates the batch header against the requested entity type.
func checkEnvelope(batch *ImportBatch, entity *metadata.Entity) error {
	if batch.EntityType != "" {
		t, ok := metadata.ParseEntityType(batch.EntityType)
		if !ok || t != entity.Type {
			return apperr.InvalidBatch(fmt.Sprintf("batch holds %s records, not %s", batch.EntityType, entity.Type))
		}
	}
	if batch.SchemaVersion != 0 && batch.SchemaVersion != SchemaVersion {
		return apperr.InvalidBatch(fmt.Sprintf("unsupported schema version %d", batch.SchemaVersion))
	}
	return nil
}
