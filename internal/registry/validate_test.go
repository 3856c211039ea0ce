package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAgainstSchemaMissingRequired(t *testing.T) {
	r := New()
	spec, _ := r.Get("odoo.create")
	err := ValidateAgainstSchema(spec.Descriptor.InputSchema, map[string]any{"model": "res.partner"})
	require.Error(t, err)
}

func TestValidateAgainstSchemaRejectsUnknownField(t *testing.T) {
	r := New()
	spec, _ := r.Get("odoo.create")
	err := ValidateAgainstSchema(spec.Descriptor.InputSchema, map[string]any{
		"model": "res.partner", "values": map[string]any{}, "bogus": 1,
	})
	require.Error(t, err)
}

func TestValidateAgainstSchemaAllowsPassthroughAnything(t *testing.T) {
	r := New()
	spec, _ := r.Get("odoo.call_kw")
	err := ValidateAgainstSchema(spec.Descriptor.InputSchema, map[string]any{"anything": true})
	require.NoError(t, err)
}

func TestValidateAgainstSchemaAcceptsValidCall(t *testing.T) {
	r := New()
	spec, _ := r.Get("odoo.create")
	err := ValidateAgainstSchema(spec.Descriptor.InputSchema, map[string]any{
		"model": "res.partner", "values": map[string]any{"name": "Acme"},
	})
	require.NoError(t, err)
}
