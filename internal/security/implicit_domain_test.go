package security

import (
	"testing"

	"github.com/odoomcp/gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestInjectAddsCompanyDomain(t *testing.T) {
	r := NewRegistry(true, []config.ImplicitDomainRule{
		{Model: "sale.order", InjectCompany: true},
	})
	out := r.Inject("sale.order", []any{}, []int64{1, 2}, 7, true, false)
	require.Equal(t, []any{[]any{"company_id", "in", []any{int64(1), int64(2)}}}, out)
}

func TestInjectSkipsWhenFieldAbsent(t *testing.T) {
	r := NewRegistry(true, []config.ImplicitDomainRule{
		{Model: "sale.order", InjectCompany: true},
	})
	out := r.Inject("sale.order", []any{[]any{"x", "=", "y"}}, []int64{1}, 7, false, false)
	require.Equal(t, []any{[]any{"x", "=", "y"}}, out)
}

func TestInjectDisabledNoOp(t *testing.T) {
	r := NewRegistry(false, []config.ImplicitDomainRule{
		{Model: "sale.order", InjectCompany: true},
	})
	base := []any{[]any{"x", "=", "y"}}
	out := r.Inject("sale.order", base, []int64{1}, 7, true, false)
	require.Equal(t, base, out)
}

func TestInjectCombinesWithExistingDomain(t *testing.T) {
	r := NewRegistry(true, []config.ImplicitDomainRule{
		{Model: "mail.message", InjectOwnRecords: true},
	})
	out := r.Inject("mail.message", []any{[]any{"x", "=", "y"}}, nil, 7, false, true)
	require.Equal(t, []any{"&", []any{"x", "=", "y"}, []any{"user_id", "=", int64(7)}}, out)
}

func TestInjectUnknownModelNoOp(t *testing.T) {
	r := NewRegistry(true, nil)
	base := []any{[]any{"x", "=", "y"}}
	out := r.Inject("res.partner", base, []int64{1}, 7, true, true)
	require.Equal(t, base, out)
}
