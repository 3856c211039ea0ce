package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordURI(t *testing.T) {
	p, err := ParseResourceURI("odoo://res.partner/7?fields=name,email")
	require.NoError(t, err)
	require.Equal(t, ResourceRecord, p.Kind)
	require.Equal(t, "res.partner", p.Model)
	require.Equal(t, int64(7), p.RecordID)
	require.Equal(t, []string{"name", "email"}, p.Fields)
}

func TestParseListURI(t *testing.T) {
	p, err := ParseResourceURI("odoo://res.partner/list?limit=10&offset=5")
	require.NoError(t, err)
	require.Equal(t, ResourceList, p.Kind)
	require.Equal(t, 10, p.Limit)
	require.Equal(t, 5, p.Offset)
}

func TestParseBinaryURI(t *testing.T) {
	p, err := ParseResourceURI("odoo://ir.attachment/binary/datas/42")
	require.NoError(t, err)
	require.Equal(t, ResourceBinary, p.Kind)
	require.Equal(t, "ir.attachment", p.Model)
	require.Equal(t, "datas", p.Field)
	require.Equal(t, int64(42), p.RecordID)
}

func TestParseRejectsUnknownScheme(t *testing.T) {
	_, err := ParseResourceURI("http://res.partner/7")
	require.Error(t, err)
}

func TestParseRejectsNonNumericID(t *testing.T) {
	_, err := ParseResourceURI("odoo://res.partner/abc")
	require.Error(t, err)
}

func TestURIForRecordRoundTrips(t *testing.T) {
	uri := URIForRecord("res.partner", 7)
	p, err := ParseResourceURI(uri)
	require.NoError(t, err)
	require.Equal(t, ResourceRecord, p.Kind)
	require.Equal(t, int64(7), p.RecordID)
}
