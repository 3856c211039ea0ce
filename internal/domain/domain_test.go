package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileNullFalseEmptyYieldEmptyArray(t *testing.T) {
	c := New(0, nil)
	for _, in := range []any{nil, false, ""} {
		res, err := c.Compile(in)
		require.NoError(t, err)
		require.Equal(t, []any{}, res.Compiled)
	}
}

func TestCompileTrueWarns(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(true)
	require.NoError(t, err)
	require.Equal(t, []any{}, res.Compiled)
	require.NotEmpty(t, res.Warnings)
}

func TestCompileRawArrayPassthrough(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile([]any{[]any{"name", "=", "Mario"}})
	require.NoError(t, err)
	require.Equal(t, []any{[]any{"name", "=", "Mario"}}, res.Compiled)
}

func TestCompileObjectAndForm(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(map[string]any{
		"and": []any{
			[]any{"name", "=", "x"},
			[]any{"age", ">", float64(18)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []any{"&", []any{"name", "=", "x"}, []any{"age", ">", float64(18)}}, res.Compiled)
}

func TestCompileObjectOrThreeChildren(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(map[string]any{
		"or": []any{
			[]any{"a", "=", float64(1)},
			[]any{"b", "=", float64(2)},
			[]any{"c", "=", float64(3)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, []any{"|", "|", []any{"a", "=", float64(1)}, []any{"b", "=", float64(2)}, []any{"c", "=", float64(3)}}, res.Compiled)
}

func TestCompileNotForm(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(map[string]any{"not": []any{[]any{"active", "=", true}}})
	require.NoError(t, err)
	require.Equal(t, []any{"!", []any{"active", "=", true}}, res.Compiled)
}

func TestCompileStringifiedJSON(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(`[["name","=","x"]]`)
	require.NoError(t, err)
	require.Equal(t, []any{[]any{"name", "=", "x"}}, res.Compiled)
}

func TestCompileRejectsUnknownOperator(t *testing.T) {
	c := New(0, nil)
	_, err := c.Compile([]any{[]any{"name", "~=", "x"}})
	require.Error(t, err)
}

func TestCompileRejectsInvalidFieldName(t *testing.T) {
	c := New(0, nil)
	_, err := c.Compile([]any{[]any{"1bad field", "=", "x"}})
	require.Error(t, err)
}

func TestCompilePlaceholderSubstitution(t *testing.T) {
	c := New(0, DefaultPlaceholders([]int64{1, 2}))
	res, err := c.Compile([]any{[]any{"company_id", "in", "__current_company_ids__"}})
	require.NoError(t, err)
	require.Equal(t, []any{[]any{"company_id", "in", []any{int64(1), int64(2)}}}, res.Compiled)
}

func TestCompileIdempotent(t *testing.T) {
	c := New(0, nil)
	res, err := c.Compile(map[string]any{
		"and": []any{
			[]any{"a", "=", float64(1)},
			[]any{"b", "=", float64(2)},
		},
	})
	require.NoError(t, err)
	ok, err := c.Idempotent(res.Compiled)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCompileRejectsOversizedValue(t *testing.T) {
	c := New(8, nil)
	_, err := c.Compile([]any{[]any{"name", "=", "a very long string value that exceeds the cap"}})
	require.Error(t, err)
}
