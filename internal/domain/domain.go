// Package domain implements the Odoo domain DSL validator/compiler of
// spec §4.6: accepting a raw prefix-notation array, an {and,or,not}
// object form, or either stringified, and producing Odoo's canonical
// prefix-notation array. The data-driven "rule table" shape (a fixed
// resolver map keyed by placeholder token) mirrors the config-table
// idiom the corpus favors for injectable, non-hardcoded rule sets (see
// caiqy-CLIProxyAPIBusiness's ModelPayloadRule for the general pattern
// of keeping rule sets outside code).
package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
)

var validOperators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"like": true, "ilike": true, "not like": true, "not ilike": true,
	"=like": true, "=ilike": true, "in": true, "not in": true,
	"child_of": true, "parent_of": true,
}

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// PlaceholderResolver resolves a placeholder token (e.g.
// "__current_company_ids__") to its concrete value at compile time.
type PlaceholderResolver func() (any, error)

// Compiler validates and compiles domain DSL input into Odoo's canonical
// prefix-notation array.
type Compiler struct {
	maxValueSize int
	placeholders map[string]PlaceholderResolver
}

// New builds a Compiler. maxValueSize caps the JSON-encoded size of any
// single leaf value (spec §4.6's max_payload_size rule). placeholders is
// the fixed resolver table; a nil map disables placeholder substitution.
func New(maxValueSize int, placeholders map[string]PlaceholderResolver) *Compiler {
	if placeholders == nil {
		placeholders = map[string]PlaceholderResolver{}
	}
	return &Compiler{maxValueSize: maxValueSize, placeholders: placeholders}
}

// DefaultPlaceholders returns the fixed resolver table for the well-known
// tokens spec §4.6 names, parameterized by the caller's current company
// ids (Odoo has no fixed "now" the gateway can hardcode).
func DefaultPlaceholders(currentCompanyIDs []int64) map[string]PlaceholderResolver {
	return map[string]PlaceholderResolver{
		"__current_company_ids__": func() (any, error) {
			out := make([]any, len(currentCompanyIDs))
			for i, id := range currentCompanyIDs {
				out[i] = id
			}
			return out, nil
		},
		"__start_of_month__": func() (any, error) {
			now := time.Now().UTC()
			return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), nil
		},
	}
}

// Result carries the compiled domain plus any non-fatal warnings.
type Result struct {
	Compiled []any
	Warnings []string
}

// Compile accepts any of the DSL input forms and returns the canonical
// prefix-notation array, or a KindValidation/domain error listing every
// offending node.
func (c *Compiler) Compile(input any) (Result, error) {
	switch v := input.(type) {
	case nil:
		return Result{Compiled: []any{}}, nil
	case string:
		return c.compileString(v)
	case bool:
		return Result{Compiled: []any{}, Warnings: []string{"boolean domain coerced to []"}}, nil
	case []any:
		return c.compileArray(v)
	case map[string]any:
		return c.compileObject(v)
	default:
		return Result{}, gwerr.Validation(gwerr.ValidationDomain, fmt.Sprintf("unsupported domain input type %T", input))
	}
}

func (c *Compiler) compileString(s string) (Result, error) {
	if s == "" {
		return Result{Compiled: []any{}}, nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return Result{}, gwerr.Validation(gwerr.ValidationDomain, "domain string is not valid JSON: "+err.Error())
	}
	if parsed == nil {
		return Result{Compiled: []any{}}, nil
	}
	return c.Compile(parsed)
}

func (c *Compiler) compileArray(arr []any) (Result, error) {
	var warnings []string
	out := make([]any, 0, len(arr))
	var errs []string
	for _, node := range arr {
		switch n := node.(type) {
		case string:
			if n == "&" || n == "|" || n == "!" {
				out = append(out, n)
				continue
			}
			errs = append(errs, fmt.Sprintf("unexpected bare string %q in domain array", n))
		case []any:
			leaf, w, e := c.compileLeaf(n)
			if e != "" {
				errs = append(errs, e)
				continue
			}
			warnings = append(warnings, w...)
			out = append(out, leaf)
		default:
			errs = append(errs, fmt.Sprintf("unexpected domain node %v", node))
		}
	}
	if len(errs) > 0 {
		return Result{}, gwerr.Validation(gwerr.ValidationDomain, fmt.Sprintf("invalid domain: %v", errs))
	}
	return Result{Compiled: out, Warnings: warnings}, nil
}

func (c *Compiler) compileLeaf(triple []any) (any, []string, string) {
	if len(triple) != 3 {
		return nil, nil, fmt.Sprintf("triple must have exactly 3 elements, got %d", len(triple))
	}
	field, ok := triple[0].(string)
	if !ok || !fieldNamePattern.MatchString(field) {
		return nil, nil, fmt.Sprintf("invalid field name %v", triple[0])
	}
	op, ok := triple[1].(string)
	if !ok || !validOperators[op] {
		return nil, nil, fmt.Sprintf("invalid operator %v", triple[1])
	}
	value, warnings, err := c.resolveValue(triple[2])
	if err != "" {
		return nil, nil, err
	}
	if c.maxValueSize > 0 {
		if b, mErr := json.Marshal(value); mErr == nil && len(b) > c.maxValueSize {
			return nil, nil, fmt.Sprintf("value for field %q exceeds max_payload_size", field)
		}
	}
	return []any{field, op, value}, warnings, ""
}

func (c *Compiler) resolveValue(v any) (any, []string, string) {
	if token, ok := v.(string); ok {
		if resolver, found := c.placeholders[token]; found {
			resolved, err := resolver()
			if err != nil {
				return nil, nil, fmt.Sprintf("failed to resolve placeholder %q: %v", token, err)
			}
			return resolved, nil, ""
		}
	}
	return v, nil, ""
}

// compileObject handles the {"and":[...]}, {"or":[...]}, {"not":...} form.
func (c *Compiler) compileObject(obj map[string]any) (Result, error) {
	if len(obj) != 1 {
		return Result{}, gwerr.Validation(gwerr.ValidationDomain, "object-form domain must have exactly one of and/or/not")
	}
	for key, val := range obj {
		switch key {
		case "and", "or":
			children, ok := val.([]any)
			if !ok {
				return Result{}, gwerr.Validation(gwerr.ValidationDomain, fmt.Sprintf("%q must be an array", key))
			}
			return c.compileLogical(key, children)
		case "not":
			inner, err := c.Compile(val)
			if err != nil {
				return Result{}, err
			}
			out := append([]any{"!"}, inner.Compiled...)
			return Result{Compiled: out, Warnings: inner.Warnings}, nil
		default:
			return Result{}, gwerr.Validation(gwerr.ValidationDomain, fmt.Sprintf("unknown domain operator %q", key))
		}
	}
	panic("unreachable")
}

// compileLogical builds Odoo's prefix (Polish) notation: (n-1) copies of
// the operator followed by each child's compiled form, in order --
// e.g. and(a,b,c) -> ["&","&", a, b, c].
func (c *Compiler) compileLogical(op string, children []any) (Result, error) {
	if len(children) == 0 {
		return Result{Compiled: []any{}}, nil
	}
	prefix := "&"
	if op == "or" {
		prefix = "|"
	}
	var out []any
	var warnings []string
	for i := 0; i < len(children)-1; i++ {
		out = append(out, prefix)
	}
	for _, child := range children {
		if triple, ok := child.([]any); ok && len(triple) == 3 {
			if f, ok := triple[0].(string); ok && f != "&" && f != "|" && f != "!" {
				leaf, w, e := c.compileLeaf(triple)
				if e != "" {
					return Result{}, gwerr.Validation(gwerr.ValidationDomain, "invalid domain: "+e)
				}
				warnings = append(warnings, w...)
				out = append(out, leaf)
				continue
			}
		}
		res, err := c.Compile(child)
		if err != nil {
			return Result{}, err
		}
		warnings = append(warnings, res.Warnings...)
		out = append(out, res.Compiled...)
	}
	return Result{Compiled: out, Warnings: warnings}, nil
}

// Idempotent reports whether compiling an already-compiled domain returns
// the same array (spec §8's compile ∘ compile == compile property).
func (c *Compiler) Idempotent(compiled []any) (bool, error) {
	res, err := c.Compile(anySliceOf(compiled))
	if err != nil {
		return false, err
	}
	return jsonEqual(res.Compiled, compiled), nil
}

func anySliceOf(v []any) any { return v }

func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}
