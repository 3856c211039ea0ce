package odoorpc

import (
	"regexp"
	"strings"

	"github.com/odoomcp/gateway/internal/gwerr"
)

var (
	methodNotExistRe = regexp.MustCompile(`(?i)the method '([^']+)' does not exist on the model '([^']+)'`)
	recordMissingRe  = regexp.MustCompile(`(?i)record[s]? .* does(?: not|n't) exist`)
	aggregationRe    = regexp.MustCompile(`(?i)funzione di aggregazione .* non valida|invalid aggregation function|unsupported aggregate`)
)

// ClassifyFault normalizes a raw Odoo wire fault (an XML-RPC faultString or
// a JSON-RPC error.data.message) into the common error taxonomy, per the
// rules spelled out in spec §4.1.
func ClassifyFault(message string) error {
	if m := methodNotExistRe.FindStringSubmatch(message); m != nil {
		return gwerr.Wrap(gwerr.KindMethodNotFound, nil, "method '"+m[1]+"' does not exist on model '"+m[2]+"'").
			WithSub(subkindString("model=" + m[2] + " method=" + m[1]))
	}
	lower := strings.ToLower(message)
	if aggregationRe.MatchString(message) {
		return gwerr.Validation(gwerr.ValidationAggregation, message)
	}
	if strings.Contains(message, "UserError") || strings.Contains(message, "ValidationError") {
		return gwerr.Validation(gwerr.ValidationGeneric, message)
	}
	if recordMissingRe.MatchString(message) {
		return gwerr.NotFound(gwerr.NotFoundRecord, message)
	}
	if strings.Contains(lower, "access denied") || strings.Contains(lower, "authentication") || strings.Contains(lower, "invalid credential") {
		return gwerr.New(gwerr.KindAuth, message)
	}
	return gwerr.Wrap(gwerr.KindInternal, nil, message)
}

type subkindString string

func (s subkindString) String() string { return string(s) }
