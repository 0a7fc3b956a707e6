package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

// conditionCacheSize bounds the compiled programs kept per engine. Conditions
// arrive from callers, so the set of distinct expressions is open-ended.
const conditionCacheSize = 128

// ExprLangEvaluator evaluates boolean import conditions such as
// `item.featured == true && item.country == "NO"`.
// Recently used programs are cached by expression string.
type ExprLangEvaluator struct {
	cache *lru.Cache[string, *vm.Program]
}

func NewExprLangEvaluator() *ExprLangEvaluator {
	return newExprLangEvaluator(conditionCacheSize)
}

func newExprLangEvaluator(size int) *ExprLangEvaluator {
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		panic(fmt.Sprintf("condition cache: %v", err))
	}
	return &ExprLangEvaluator{cache: cache}
}

// Compile checks the expression and caches the program.
func (e *ExprLangEvaluator) Compile(expression string) (*vm.Program, error) {
	if prog, ok := e.cache.Get(expression); ok {
		return prog, nil
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition: %w", err)
	}
	e.cache.Add(expression, prog)
	return prog, nil
}

// Cached reports how many compiled programs are held.
func (e *ExprLangEvaluator) Cached() int { return e.cache.Len() }

func (e *ExprLangEvaluator) EvaluateBool(expression string, env map[string]any) (bool, error) {
	prog, err := e.Compile(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}

	isTrue, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return bool")
	}
	return isTrue, nil
}
