package registry

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/odoomcp/gateway/internal/gwerr"
)

// ResourceKind classifies a parsed resource URI (spec §4.9's {record,list,binary}).
type ResourceKind string

const (
	ResourceRecord ResourceKind = "record"
	ResourceList   ResourceKind = "list"
	ResourceBinary ResourceKind = "binary"
)

// ParsedResource is the result of matching a resource URI against the
// fixed template set. Query parameters are pre-split into their typed
// forms since every consumer (read_resource, subscribe) needs them.
type ParsedResource struct {
	Kind     ResourceKind
	Model    string
	RecordID int64
	Field    string // set only for ResourceBinary

	Domain any
	Fields []string
	Limit  int
	Offset int
	Order  string
}

// ParseResourceURI matches uri against the odoo://{model}/... templates.
// It is a small hand-rolled matcher (no URI-template library appears
// anywhere in the corpus; net/http's ServeMux pattern syntax only applies
// to HTTP request paths, not to the gateway's own odoo:// scheme) rather
// than a general templating engine, since the template set is fixed and
// small.
func ParseResourceURI(raw string) (ParsedResource, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "odoo" {
		return ParsedResource{}, gwerr.Validation(gwerr.ValidationGeneric, "resource uri must use the odoo:// scheme")
	}
	// url.Parse puts the first path segment into Host for "scheme://host/path".
	segments := []string{}
	if u.Host != "" {
		segments = append(segments, u.Host)
	}
	for _, s := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	q := u.Query()
	switch len(segments) {
	case 2:
		model, tail := segments[0], segments[1]
		if tail == "list" {
			return ParsedResource{
				Kind:   ResourceList,
				Model:  model,
				Domain: q.Get("domain"),
				Fields: splitCSV(q.Get("fields")),
				Limit:  atoiOr(q.Get("limit"), 80),
				Offset: atoiOr(q.Get("offset"), 0),
				Order:  q.Get("order"),
			}, nil
		}
		id, err := strconv.ParseInt(tail, 10, 64)
		if err != nil {
			return ParsedResource{}, gwerr.Validation(gwerr.ValidationGeneric, "resource id must be numeric")
		}
		return ParsedResource{Kind: ResourceRecord, Model: model, RecordID: id, Fields: splitCSV(q.Get("fields"))}, nil
	case 4:
		if segments[1] != "binary" {
			break
		}
		id, err := strconv.ParseInt(segments[3], 10, 64)
		if err != nil {
			return ParsedResource{}, gwerr.Validation(gwerr.ValidationGeneric, "resource id must be numeric")
		}
		return ParsedResource{Kind: ResourceBinary, Model: segments[0], Field: segments[2], RecordID: id}, nil
	}
	return ParsedResource{}, gwerr.Validation(gwerr.ValidationGeneric, "resource uri does not match any known template")
}

// URIForRecord builds the canonical odoo://{model}/{id} URI used for
// subscription matching and notifications/resources/updated events.
func URIForRecord(model string, id int64) string {
	return "odoo://" + model + "/" + strconv.FormatInt(id, 10)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
