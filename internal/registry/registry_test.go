package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCatalogHasNoDuplicateNames(t *testing.T) {
	r := New()
	seen := map[string]bool{}
	for _, name := range r.tools {
		require.False(t, seen[name], "duplicate tool name %q", name)
		seen[name] = true
	}
}

func TestGetKnownAndUnknownTool(t *testing.T) {
	r := New()
	spec, ok := r.Get("odoo.create")
	require.True(t, ok)
	require.Equal(t, CategoryOdooWrite, spec.Category)
	require.True(t, spec.RequiresOperationID)

	_, ok = r.Get("does.not.exist")
	require.False(t, ok)
}

func TestListPaginates(t *testing.T) {
	r := New()
	r.pageSize = 5
	page1, err := r.List("")
	require.NoError(t, err)
	require.Len(t, page1.Tools, 5)
	require.NotEmpty(t, page1.NextCursor)

	page2, err := r.List(page1.NextCursor)
	require.NoError(t, err)
	require.NotEmpty(t, page2.Tools)
}

func TestListRejectsBadCursor(t *testing.T) {
	r := New()
	_, err := r.List("not-a-number")
	require.Error(t, err)
}

func TestEveryToolDeclaresRequiredFieldsOrIsAdditive(t *testing.T) {
	r := New()
	for name, spec := range r.specs {
		if spec.Descriptor.InputSchema.AdditionalProperties {
			continue // passthrough tools are inherently schema-free
		}
		require.Equal(t, "object", spec.Descriptor.InputSchema.Type, name)
	}
}

func TestResourceTemplatesCoverAllThreeKinds(t *testing.T) {
	r := New()
	templates := r.ListResourceTemplates()
	require.Len(t, templates, 3)
}
