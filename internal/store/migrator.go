package store

import (
	"context"
	"fmt"
	"strings"

	"racecal-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate creates every entity table and join table described by the
// registry. Existing tables are left untouched.
func (m *Migrator) Migrate(ctx context.Context, reg *metadata.Registry) error {
	entities := reg.DescribeAll()
	for _, e := range entities {
		if err := m.migrateEntity(ctx, e); err != nil {
			return err
		}
	}
	// Join tables reference both sides, so they come after every entity table.
	for _, e := range entities {
		for _, f := range e.ManyRelations() {
			if err := m.migrateJoinTable(ctx, e, f, reg.Target(f)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Migrator) migrateEntity(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if exists {
		return nil
	}

	d := m.store.Dialect
	var cols []string
	for _, f := range entity.Fields {
		if f.IsMany() {
			continue
		}
		cols = append(cols, m.buildColumnDef(entity, &f))
	}
	if entity.OwnerColumn != "" {
		cols = append(cols, entity.OwnerColumn+" TEXT")
	}
	cols = append(cols,
		fmt.Sprintf("%s %s NOT NULL %s", metadata.CreatedAtColumn, d.ColumnType("timestamp"), d.TimestampDefault()),
		fmt.Sprintf("%s %s NOT NULL %s", metadata.UpdatedAtColumn, d.ColumnType("timestamp"), d.TimestampDefault()),
	)

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if entity.NaturalKey != "" {
		idx := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, entity.NaturalKey, entity.Table, entity.NaturalKey)
		if _, err := m.store.DB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create natural key index on %s: %w", entity.Table, err)
		}
	}
	for _, f := range entity.References() {
		idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	col := f.Name + " " + m.store.Dialect.ColumnType(f.ColumnType())
	if f.Name == metadata.PrimaryKey {
		return col + " PRIMARY KEY"
	}
	if f.Required {
		col += " NOT NULL"
	}
	if f.Kind == metadata.KindBoolean {
		if m.store.Dialect.NeedsBoolFix() {
			col += " NOT NULL DEFAULT 0"
		} else {
			col += " NOT NULL DEFAULT FALSE"
		}
	}
	return col
}

// migrateJoinTable creates the link table of a many-valued relation.
func (m *Migrator) migrateJoinTable(ctx context.Context, source *metadata.Entity, f *metadata.Field, target *metadata.Entity) error {
	j := f.Join
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, j.Table)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	sql := fmt.Sprintf(
		`CREATE TABLE %s (
			%s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
			%s TEXT NOT NULL REFERENCES %s(%s) ON DELETE CASCADE,
			PRIMARY KEY (%s, %s)
		)`,
		j.Table,
		j.SourceKey, source.Table, metadata.PrimaryKey,
		j.TargetKey, target.Table, metadata.PrimaryKey,
		j.SourceKey, j.TargetKey,
	)
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", j.Table, err)
	}
	return nil
}
