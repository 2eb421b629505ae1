// internal/detector/condition_test.go
package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]interface{}) LookupFunc {
	return func(name string) (interface{}, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestParseCondition_Valid(t *testing.T) {
	valid := []string{
		"stage === 0",
		"count >= 0 && count < 15",
		"notificationCount > 15 || overloaded",
		"!paused",
		"!!flag",
		"(a === 1 || b === 2) && !c",
		"app.stage === 2",
		"name === 'ready'",
		`label === "done"`,
		"true",
		"x != null",
	}
	for _, src := range valid {
		_, err := ParseCondition(src)
		assert.NoError(t, err, "condition %q", src)
	}
}

func TestParseCondition_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"stage ===",
		"count >< 3",
		"fn(x)",
		"a === 1 &&",
		"'unterminated",
		"a = 1",
		"a === 1)",
	}
	for _, src := range invalid {
		_, err := ParseCondition(src)
		assert.Error(t, err, "condition %q", src)
	}
}

func TestConditionEval(t *testing.T) {
	vars := map[string]interface{}{
		"stage":   float64(2),
		"count":   float64(10),
		"paused":  false,
		"name":    "ready",
		"pending": nil,
	}

	tests := []struct {
		src  string
		want bool
	}{
		{"stage === 2", true},
		{"stage === 0", false},
		{"stage == 2", true},
		{"count >= 0 && count < 15", true},
		{"count >= 15", false},
		{"count > 15 || stage === 2", true},
		{"!paused", true},
		{"!!paused", false},
		{"name === 'ready'", true},
		{"name === 'done'", false},
		{"name !== 'done'", true},
		{"pending == null", true},
		{"(stage === 1 || stage === 2) && !paused", true},
		{"stage", true},
		{"paused", false},
		// "!" takes the whole comparison: !(stage === 0), not (!stage) === 0.
		{"!stage === 0", true},
		{"!(stage === 2)", false},
	}
	for _, tc := range tests {
		cond, err := ParseCondition(tc.src)
		require.NoError(t, err, "condition %q", tc.src)
		got, err := cond.Eval(lookupFrom(vars))
		require.NoError(t, err, "condition %q", tc.src)
		assert.Equal(t, tc.want, got, "condition %q", tc.src)
	}
}

func TestConditionEval_UnresolvedVariable(t *testing.T) {
	cond, err := ParseCondition("missing === 1")
	require.NoError(t, err)

	_, err = cond.Eval(lookupFrom(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolved))
}

func TestConditionEval_UnresolvedAnywhereIsInconclusive(t *testing.T) {
	// Even when the resolvable side would decide the expression on its own,
	// a missing variable makes the whole condition inconclusive.
	vars := map[string]interface{}{"stage": float64(2)}

	for _, src := range []string{
		"stage === 2 || missing === 1",
		"missing === 1 || stage === 2",
		"stage === 2 && missing === 1",
	} {
		cond, err := ParseCondition(src)
		require.NoError(t, err, "condition %q", src)
		_, err = cond.Eval(lookupFrom(vars))
		assert.ErrorIs(t, err, ErrUnresolved, "condition %q", src)
	}
}

func TestConditionEval_NoCrossTypeCoercion(t *testing.T) {
	vars := map[string]interface{}{
		"count": "5",
		"flag":  true,
	}

	cond, err := ParseCondition("count === 5")
	require.NoError(t, err)
	got, err := cond.Eval(lookupFrom(vars))
	require.NoError(t, err)
	assert.False(t, got, "string value must not equal number literal")

	cond, err = ParseCondition("flag === 1")
	require.NoError(t, err)
	got, err = cond.Eval(lookupFrom(vars))
	require.NoError(t, err)
	assert.False(t, got, "boolean must not equal number literal")
}

func TestConditionEval_OrderingNonNumeric(t *testing.T) {
	cond, err := ParseCondition("name < 3")
	require.NoError(t, err)

	_, err = cond.Eval(lookupFrom(map[string]interface{}{"name": "ready"}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnresolved))
}

func TestConditionVariables(t *testing.T) {
	cond, err := ParseCondition("count >= 0 && count < 15 && app.stage === 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "app.stage"}, cond.Variables())
}

func TestConditionEval_IntegerValues(t *testing.T) {
	// Values arriving from a binding table are often Go ints rather than
	// float64; comparison must not care.
	cond, err := ParseCondition("count === 10")
	require.NoError(t, err)
	got, err := cond.Eval(lookupFrom(map[string]interface{}{"count": 10}))
	require.NoError(t, err)
	assert.True(t, got)
}
