package pricing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmapos/internal/core/types"
)

func mustEvaluator(t *testing.T, rules []Rule) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(rules)
	require.NoError(t, err)
	return e
}

func TestNewEvaluator_CompileError(t *testing.T) {
	_, err := NewEvaluator([]Rule{
		{Name: "broken", Expression: "subtotal >"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNewEvaluator_RejectsNonIntRule(t *testing.T) {
	_, err := NewEvaluator([]Rule{
		{Name: "wrong-type", Expression: "paymentMethod"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return an int discount")
}

func TestNewEvaluator_RejectsNamelessRule(t *testing.T) {
	_, err := NewEvaluator([]Rule{
		{Expression: "100"},
	})
	require.Error(t, err)
}

func TestEvaluate_BestRuleWins(t *testing.T) {
	e := mustEvaluator(t, []Rule{
		{Name: "big-basket", Expression: "subtotal >= 5000 ? 500 : 0"},
		{Name: "bulk-items", Expression: "itemCount >= 3 ? 300 : 0"},
		{Name: "card-promo", Expression: "paymentMethod == 'CARD' ? 800 : 0"},
	})

	discount, name := e.Evaluate(context.Background(), SaleFacts{
		Subtotal:      6000,
		ItemCount:     4,
		PaymentMethod: "CARD",
	})
	assert.Equal(t, types.MinorUnits(800), discount)
	assert.Equal(t, "card-promo", name)

	// Same facts paid in cash: the card promo yields zero and the
	// basket rule takes over.
	discount, name = e.Evaluate(context.Background(), SaleFacts{
		Subtotal:      6000,
		ItemCount:     4,
		PaymentMethod: "CASH",
	})
	assert.Equal(t, types.MinorUnits(500), discount)
	assert.Equal(t, "big-basket", name)
}

func TestEvaluate_NoRuleApplies(t *testing.T) {
	e := mustEvaluator(t, []Rule{
		{Name: "big-basket", Expression: "subtotal >= 5000 ? 500 : 0"},
	})

	discount, name := e.Evaluate(context.Background(), SaleFacts{Subtotal: 100})
	assert.Equal(t, types.MinorUnits(0), discount)
	assert.Equal(t, "", name)
}

func TestEvaluate_CappedAtSubtotal(t *testing.T) {
	e := mustEvaluator(t, []Rule{
		{Name: "overshoot", Expression: "subtotal + 10000"},
	})

	discount, name := e.Evaluate(context.Background(), SaleFacts{Subtotal: 2500})
	assert.Equal(t, types.MinorUnits(2500), discount)
	assert.Equal(t, "overshoot", name)
}

func TestEvaluate_NegativeDiscountIgnored(t *testing.T) {
	e := mustEvaluator(t, []Rule{
		{Name: "surcharge", Expression: "-500"},
		{Name: "small", Expression: "100"},
	})

	discount, name := e.Evaluate(context.Background(), SaleFacts{Subtotal: 1000})
	assert.Equal(t, types.MinorUnits(100), discount)
	assert.Equal(t, "small", name)
}

func TestEvaluate_RuntimeErrorSkipsRule(t *testing.T) {
	// Division by zero fails at evaluation time, not at compile time.
	// Pricing must not abort the sale; the failing rule is skipped.
	e := mustEvaluator(t, []Rule{
		{Name: "explodes", Expression: "subtotal / (itemCount - itemCount)"},
		{Name: "fallback", Expression: "200"},
	})

	discount, name := e.Evaluate(context.Background(), SaleFacts{Subtotal: 1000, ItemCount: 2})
	assert.Equal(t, types.MinorUnits(200), discount)
	assert.Equal(t, "fallback", name)
}

func TestEvaluate_CustomerPointsVariable(t *testing.T) {
	e := mustEvaluator(t, []Rule{
		{Name: "loyal", Expression: "customerPoints >= 100 ? 250 : 0"},
	})

	discount, _ := e.Evaluate(context.Background(), SaleFacts{Subtotal: 1000, CustomerPoints: 150})
	assert.Equal(t, types.MinorUnits(250), discount)

	discount, _ = e.Evaluate(context.Background(), SaleFacts{Subtotal: 1000, CustomerPoints: 50})
	assert.Equal(t, types.MinorUnits(0), discount)
}

func TestRules_RoundTrip(t *testing.T) {
	in := []Rule{
		{Name: "a", Expression: "100"},
		{Name: "b", Expression: "subtotal >= 1000 ? 50 : 0"},
	}
	e := mustEvaluator(t, in)
	assert.Equal(t, in, e.Rules())
}

func TestEvaluate_EmptyRuleSet(t *testing.T) {
	e := mustEvaluator(t, nil)
	discount, name := e.Evaluate(context.Background(), SaleFacts{Subtotal: 1000})
	assert.Equal(t, types.MinorUnits(0), discount)
	assert.Equal(t, "", name)
}
