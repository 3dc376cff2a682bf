// Package pricing evaluates configurable discount rules against a sale.
// Rules are CEL expressions compiled once at startup; each returns a
// discount in minor units, and the best (largest) one wins.
package pricing

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"farmapos/internal/core/types"
	"farmapos/pkg/logger"
)

// Rule is one named discount expression. The expression sees the sale
// facts as variables and must evaluate to an int discount in minor units.
type Rule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// SaleFacts are the variables a rule can reference.
type SaleFacts struct {
	// Subtotal of the sale in minor units, after line pricing
	Subtotal types.MinorUnits

	// ItemCount is the total quantity across all lines
	ItemCount int64

	// PaymentMethod as the wire string (CASH, CARD, CREDIT, MOBILE)
	PaymentMethod string

	// CustomerPoints is the buyer's loyalty balance, zero for walk-ins
	CustomerPoints types.Points
}

type compiledRule struct {
	name    string
	source  string
	program cel.Program
}

// Evaluator holds the compiled rule set.
type Evaluator struct {
	rules []compiledRule
}

// NewEvaluator compiles the rule set. A rule that fails to compile
// rejects the whole set, so misconfiguration surfaces at startup rather
// than mid-sale.
func NewEvaluator(rules []Rule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.IntType),
		cel.Variable("itemCount", cel.IntType),
		cel.Variable("paymentMethod", cel.StringType),
		cel.Variable("customerPoints", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("discount rule without a name")
		}
		ast, iss := env.Compile(r.Expression)
		if iss.Err() != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, iss.Err())
		}
		if ast.OutputType() != cel.IntType {
			return nil, fmt.Errorf("rule %q must return an int discount, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{name: r.Name, source: r.Expression, program: prg})
	}
	return &Evaluator{rules: compiled}, nil
}

// Rules returns the active rule set as configured.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = Rule{Name: r.name, Expression: r.source}
	}
	return out
}

// Evaluate runs every rule against the facts and returns the largest
// non-negative discount, capped at the subtotal. A rule that errors at
// runtime is skipped; pricing must not abort a sale.
func (e *Evaluator) Evaluate(ctx context.Context, facts SaleFacts) (types.MinorUnits, string) {
	vars := map[string]any{
		"subtotal":       int64(facts.Subtotal),
		"itemCount":      facts.ItemCount,
		"paymentMethod":  facts.PaymentMethod,
		"customerPoints": facts.CustomerPoints.Int64(),
	}

	var (
		best     types.MinorUnits
		bestName string
	)
	for _, r := range e.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			logger.Warn(ctx, "discount rule evaluation failed",
				"rule", r.name,
				"error", err.Error(),
			)
			continue
		}
		v, ok := out.Value().(int64)
		if !ok || v <= 0 {
			continue
		}
		d := types.MinorUnits(v)
		if d > best {
			best = d
			bestName = r.name
		}
	}

	if best > facts.Subtotal {
		best = facts.Subtotal
	}
	return best, bestName
}
