package security

import (
	"github.com/odoomcp/gateway/internal/config"
)

// ImplicitDomainRule mirrors config.ImplicitDomainRule as the in-package
// working type, grounded on orm_security.py's
// ImplicitDomainManager._should_add_company_domain/_should_add_user_domain
// per-model checks -- kept in a registry rather than a hardcoded model set.
type ImplicitDomainRule struct {
	InjectCompany    bool
	InjectOwnRecords bool
}

// Registry maps model name to its implicit-domain policy.
type Registry struct {
	enabled bool
	rules   map[string]ImplicitDomainRule
}

// NewRegistry builds a Registry from the config-table rules.
func NewRegistry(enabled bool, rules []config.ImplicitDomainRule) *Registry {
	m := make(map[string]ImplicitDomainRule, len(rules))
	for _, r := range rules {
		m[r.Model] = ImplicitDomainRule{InjectCompany: r.InjectCompany, InjectOwnRecords: r.InjectOwnRecords}
	}
	return &Registry{enabled: enabled, rules: m}
}

// Inject AND-s the model's configured implicit filters onto compiledDomain.
// allowedCompanyIDs and effectiveUID come from the caller's session context.
// hasCompanyField/hasUserField report whether the target model actually
// carries those fields (discovered via fields_get by the caller), so a
// configured rule for a model missing the field is silently skipped.
func (r *Registry) Inject(model string, compiledDomain []any, allowedCompanyIDs []int64, effectiveUID int64, hasCompanyField, hasUserField bool) []any {
	if !r.enabled {
		return compiledDomain
	}
	rule, ok := r.rules[model]
	if !ok {
		return compiledDomain
	}
	var extra []any
	if rule.InjectCompany && hasCompanyField && len(allowedCompanyIDs) > 0 {
		ids := make([]any, len(allowedCompanyIDs))
		for i, id := range allowedCompanyIDs {
			ids[i] = id
		}
		extra = append(extra, []any{"company_id", "in", ids})
	}
	if rule.InjectOwnRecords && hasUserField {
		extra = append(extra, []any{"user_id", "=", effectiveUID})
	}
	if len(extra) == 0 {
		return compiledDomain
	}
	return andAll(append([][]any{compiledDomain}, wrapEach(extra)...))
}

func wrapEach(leaves []any) [][]any {
	out := make([][]any, len(leaves))
	for i, l := range leaves {
		out[i] = []any{l}
	}
	return out
}

// andAll combines multiple already-compiled domain fragments with AND,
// in Odoo prefix notation.
func andAll(fragments [][]any) []any {
	nonEmpty := make([][]any, 0, len(fragments))
	for _, f := range fragments {
		if len(f) > 0 {
			nonEmpty = append(nonEmpty, f)
		}
	}
	if len(nonEmpty) == 0 {
		return []any{}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}
	out := make([]any, 0)
	for i := 0; i < len(nonEmpty)-1; i++ {
		out = append(out, "&")
	}
	for _, f := range nonEmpty {
		out = append(out, f...)
	}
	return out
}
