package constraints

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"

	"github.com/halderavik/cbc-design-MCP/design"
)

// conditionCostLimit bounds one evaluation; generators evaluate every
// custom rule once per candidate option
const conditionCostLimit = 100000

// ruleEnv is built once and shared by every request
var ruleEnv = sync.OnceValues(func() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("option", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("index", cel.MapType(cel.StringType, cel.IntType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
})

// compiledCustom is a custom rule ready for per-option evaluation
type compiledCustom struct {
	name   string
	action Action
	prog   cel.Program
	pred   func(design.Option) bool
}

// compileCustomRule type-checks a CEL condition against the grid, or wraps
// a Go predicate. The condition must produce a bool and may only index
// attributes and levels the grid declares.
func compileCustomRule(rule CustomRule, g design.Grid) (*compiledCustom, error) {
	if rule.Name == "" {
		return nil, fmt.Errorf("custom rule name is required")
	}

	action := rule.Action
	if action == "" {
		action = ActionProhibit
	}
	if action != ActionProhibit && action != ActionRequire {
		return nil, fmt.Errorf("custom rule %q has unknown action %q (must be prohibit or require)", rule.Name, rule.Action)
	}

	hasCondition := rule.Condition != ""
	hasPredicate := rule.Predicate != nil
	if hasCondition == hasPredicate {
		return nil, fmt.Errorf("custom rule %q must set exactly one of condition or predicate", rule.Name)
	}

	if hasPredicate {
		return &compiledCustom{name: rule.Name, action: action, pred: rule.Predicate}, nil
	}

	env, err := ruleEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(rule.Condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("custom rule %q: compile error: %w", rule.Name, issues.Err())
	}
	if !ast.OutputType().IsExactType(types.BoolType) {
		return nil, fmt.Errorf("custom rule %q: condition must evaluate to bool, got %s", rule.Name, ast.OutputType())
	}
	if err := checkReferences(ast.NativeRep().Expr(), g); err != nil {
		return nil, fmt.Errorf("custom rule %q: %w", rule.Name, err)
	}

	prog, err := env.Program(ast, cel.CostLimit(conditionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("custom rule %q: program creation error: %w", rule.Name, err)
	}

	return &compiledCustom{name: rule.Name, action: action, prog: prog}, nil
}

// allows evaluates the rule for one option. An evaluation error counts
// as a rejection so a broken rule can never silently admit options.
func (c *compiledCustom) allows(opt design.Option, p design.Profile, g design.Grid) (bool, error) {
	var matched bool
	if c.pred != nil {
		matched = c.pred(opt)
	} else {
		idx := make(map[string]int64, len(p))
		for i, attr := range g.Attributes {
			idx[attr.Name] = int64(p[i])
		}
		out, _, err := c.prog.Eval(map[string]any{
			"option": map[string]string(opt),
			"index":  idx,
		})
		if err != nil {
			return false, err
		}
		b, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("condition produced %T, want bool", out.Value())
		}
		matched = b
	}

	if c.action == ActionRequire {
		return matched, nil
	}
	return !matched, nil
}

// checkReferences walks the checked expression and rejects literal keys
// that are not attributes, and literal comparisons against unknown levels
func checkReferences(root celast.Expr, g design.Grid) error {
	var firstErr error
	celast.PostOrderVisit(root, celast.NewExprVisitor(func(e celast.Expr) {
		if firstErr != nil {
			return
		}
		switch e.Kind() {
		case celast.SelectKind:
			sel := e.AsSelect()
			if isRuleVariable(sel.Operand()) {
				if _, ok := g.AttributeIndex(sel.FieldName()); !ok {
					firstErr = fmt.Errorf("references unknown attribute %q", sel.FieldName())
				}
			}
		case celast.CallKind:
			call := e.AsCall()
			switch call.FunctionName() {
			case operators.Index:
				args := call.Args()
				if len(args) == 2 && isRuleVariable(args[0]) {
					if key, ok := stringLiteral(args[1]); ok {
						if _, found := g.AttributeIndex(key); !found {
							firstErr = fmt.Errorf("references unknown attribute %q", key)
						}
					}
				}
			case operators.Equals, operators.NotEquals:
				args := call.Args()
				if len(args) == 2 {
					if err := checkLevelComparison(args[0], args[1], g); err != nil {
						firstErr = err
					} else if err := checkLevelComparison(args[1], args[0], g); err != nil {
						firstErr = err
					}
				}
			}
		}
	}))
	return firstErr
}

// checkLevelComparison validates `option["Attr"] == "Level"` style comparisons
func checkLevelComparison(lhs, rhs celast.Expr, g design.Grid) error {
	attr, ok := optionAttribute(lhs)
	if !ok {
		return nil
	}
	level, ok := stringLiteral(rhs)
	if !ok {
		return nil
	}
	col, found := g.AttributeIndex(attr)
	if !found {
		return nil // reported by the key check
	}
	if _, found := g.LevelIndex(col, level); !found {
		return fmt.Errorf("references unknown level %q for attribute %q", level, attr)
	}
	return nil
}

// optionAttribute extracts the attribute from option["X"] or option.X
func optionAttribute(e celast.Expr) (string, bool) {
	switch e.Kind() {
	case celast.SelectKind:
		sel := e.AsSelect()
		if isIdent(sel.Operand(), "option") {
			return sel.FieldName(), true
		}
	case celast.CallKind:
		call := e.AsCall()
		args := call.Args()
		if call.FunctionName() == operators.Index && len(args) == 2 && isIdent(args[0], "option") {
			return stringLiteral(args[1])
		}
	}
	return "", false
}

func isRuleVariable(e celast.Expr) bool {
	return isIdent(e, "option") || isIdent(e, "index")
}

func isIdent(e celast.Expr, name string) bool {
	return e.Kind() == celast.IdentKind && e.AsIdent() == name
}

func stringLiteral(e celast.Expr) (string, bool) {
	if e.Kind() != celast.LiteralKind {
		return "", false
	}
	s, ok := e.AsLiteral().Value().(string)
	return s, ok
}
