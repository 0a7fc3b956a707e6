package engine

import (
	"racecal-backend/internal/config"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

// Record is one entity row as returned to callers: column values keyed by
// field name, denormalized display columns, and many-relation id lists.
type Record = map[string]any

// Engine runs queries, bulk mutations and imports over every registered
// entity type. It holds no per-request state and is safe for concurrent use.
type Engine struct {
	store  *store.Store
	reg    *metadata.Registry
	limits config.EngineConfig
	log    *logging.Logger
	conds  *ExprLangEvaluator
}

func New(s *store.Store, reg *metadata.Registry, limits config.EngineConfig, log *logging.Logger) *Engine {
	def := config.DefaultEngine()
	if limits.DefaultQueryLimit <= 0 {
		limits.DefaultQueryLimit = def.DefaultQueryLimit
	}
	if limits.MaxQueryLimit <= 0 {
		limits.MaxQueryLimit = def.MaxQueryLimit
	}
	if limits.PreviewLimit <= 0 {
		limits.PreviewLimit = def.PreviewLimit
	}
	if limits.ExportLimit <= 0 {
		limits.ExportLimit = def.ExportLimit
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		store:  s,
		reg:    reg,
		limits: limits,
		log:    log.Component("engine"),
		conds:  NewExprLangEvaluator(),
	}
}

func (e *Engine) Registry() *metadata.Registry { return e.reg }

// DescribeEntities lists every entity type with its filterable and editable fields.
func (e *Engine) DescribeEntities() []*metadata.Entity {
	return e.reg.DescribeAll()
}
