package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskEmailKeepsFirstAndLastChar(t *testing.T) {
	m := NewMasker(true, nil)
	rec := m.MaskRecord(map[string]any{"email": "mario@example.com"})
	require.Equal(t, "m***o@example.com", rec["email"])
}

func TestMaskPhoneKeepsLast4(t *testing.T) {
	m := NewMasker(true, nil)
	rec := m.MaskRecord(map[string]any{"phone": "0612345678"})
	require.Equal(t, "******5678", rec["phone"])
}

func TestMaskDisabledPassesThrough(t *testing.T) {
	m := NewMasker(false, nil)
	rec := m.MaskRecord(map[string]any{"email": "mario@example.com"})
	require.Equal(t, "mario@example.com", rec["email"])
}

func TestMaskNonPIIFieldUntouched(t *testing.T) {
	m := NewMasker(true, nil)
	rec := m.MaskRecord(map[string]any{"name": "Mario Rossi"})
	require.Equal(t, "Mario Rossi", rec["name"])
}

func TestMaskRecordsAppliesToEachElement(t *testing.T) {
	m := NewMasker(true, nil)
	out := m.MaskRecords([]map[string]any{
		{"email": "mario@example.com"},
		{"email": "bob@example.com"},
	})
	require.Len(t, out, 2)
	require.NotEqual(t, "mario@example.com", out[0]["email"])
}
