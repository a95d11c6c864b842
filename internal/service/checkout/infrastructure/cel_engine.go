// internal/service/checkout/infrastructure/cel_engine.go
package infrastructure

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"vertex/internal/service/checkout/domain"
)

// CelRuleEngine 用 CEL 评估优惠上的扩展规则表达式。
// 表达式来自运营配置，编译结果按表达式文本缓存。
type CelRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCelRuleEngine() (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("order_value", cel.IntType),
		cel.Variable("category_ids", cel.ListType(cel.StringType)),
		cel.Variable("product_ids", cel.ListType(cel.StringType)),
		cel.Variable("identity", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CelRuleEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

func (e *CelRuleEngine) Evaluate(expression string, fact domain.Fact) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"order_value":  fact.OrderValue,
		"category_ids": fact.CategoryIDs,
		"product_ids":  fact.ProductIDs,
		"identity":     fact.Identity,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate rule %q", expression)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not evaluate to bool", expression)
	}
	return matched, nil
}

func (e *CelRuleEngine) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compile rule %q", expression)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build rule program %q", expression)
	}

	e.mu.Lock()
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}
