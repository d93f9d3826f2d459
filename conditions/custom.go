package conditions

import (
	"fmt"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liamcoop/triggers/event"
	"github.com/liamcoop/triggers/rules"
)

// costLimit bounds the work a single custom expression may do per evaluation.
const costLimit = 1_000_000

type compiledProgram struct {
	prog cel.Program
	err  error
}

// programCache compiles custom condition expressions once and keeps the
// resulting programs keyed by expression text.
type programCache struct {
	env  *cel.Env
	data *lru.Cache[string, compiledProgram]
}

func newProgramCache(size int) (*programCache, error) {
	env, err := event.NewCELEnv()
	if err != nil {
		return nil, err
	}
	data, err := lru.New[string, compiledProgram](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	return &programCache{env: env, data: data}, nil
}

func (c *programCache) compile(expression string) (cel.Program, error) {
	if cached, ok := c.data.Get(expression); ok {
		return cached.prog, cached.err
	}

	var entry compiledProgram
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		entry.err = fmt.Errorf("compile error: %w", issues.Err())
	} else if prog, err := c.env.Program(ast, cel.CostLimit(costLimit)); err != nil {
		entry.err = fmt.Errorf("program creation error: %w", err)
	} else {
		entry.prog = prog
	}

	c.data.Add(expression, entry)
	return entry.prog, entry.err
}

// evalCustom runs a custom condition's CEL expression against the context.
// Non-boolean results are an error.
func (e *Evaluator) evalCustom(cond rules.Condition, c *event.Context) (bool, error) {
	prog, err := e.programs.compile(cond.Value)
	if err != nil {
		return false, &EvaluationError{Type: cond.Type, Match: cond.Match, Message: "invalid expression", Err: err}
	}

	out, _, err := prog.Eval(c.Vars())
	if err != nil {
		return false, &EvaluationError{Type: cond.Type, Match: cond.Match, Message: "expression failed", Err: err}
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, &EvaluationError{
			Type:    cond.Type,
			Match:   cond.Match,
			Message: fmt.Sprintf("expression returned %T, want bool", out.Value()),
		}
	}
	return matched, nil
}
