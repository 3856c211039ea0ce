// Package xmlrpc implements the XML-RPC variant of the Odoo RPC handler
// (spec §4.1). No XML-RPC client library appears anywhere in the retrieved
// corpus (examples/ or other_examples/), so the wire codec is hand-rolled
// over encoding/xml and net/http; see DESIGN.md for the accompanying
// standard-library justification.
package xmlrpc

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
)

// methodCall is the XML-RPC request envelope.
type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     []param  `xml:"params>param,omitempty"`
}

type param struct {
	Value value `xml:"value"`
}

type methodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  []param  `xml:"params>param"`
	Fault   *fault   `xml:"fault"`
}

type fault struct {
	Value value `xml:"value"`
}

// value is a manually-managed union type: exactly one of its fields (or
// Array/Struct) is populated depending on the XML-RPC scalar kind found on
// the wire, mirroring how encoding/xml structs describe mutually-exclusive
// alternatives when there's no first-class sum type in Go.
type value struct {
	String  *string       `xml:"string"`
	Int     *int64        `xml:"int"`
	I4      *int64        `xml:"i4"`
	Double  *float64      `xml:"double"`
	Boolean *int          `xml:"boolean"`
	DateTime *string      `xml:"dateTime.iso8601"`
	Base64  *string       `xml:"base64"`
	Array   *arrayValue   `xml:"array"`
	Struct  *structValue  `xml:"struct"`
	Nil     *struct{}     `xml:"nil"`
	Raw     string        `xml:",chardata"`
}

type arrayValue struct {
	Values []value `xml:"data>value"`
}

type structValue struct {
	Members []member `xml:"member"`
}

type member struct {
	Name  string `xml:"name"`
	Value value  `xml:"value"`
}

// encodeCall renders a methodName + positional params list as an XML-RPC
// request body.
func encodeCall(methodName string, args []any) ([]byte, error) {
	call := methodCall{MethodName: methodName}
	for _, a := range args {
		v, err := encodeValue(a)
		if err != nil {
			return nil, err
		}
		call.Params = append(call.Params, param{Value: v})
	}
	out, err := xml.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: encode call: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func encodeValue(v any) (value, error) {
	switch t := v.(type) {
	case nil:
		return value{Nil: &struct{}{}}, nil
	case bool:
		b := 0
		if t {
			b = 1
		}
		return value{Boolean: &b}, nil
	case int:
		i := int64(t)
		return value{Int: &i}, nil
	case int64:
		return value{Int: &t}, nil
	case float64:
		return value{Double: &t}, nil
	case string:
		return value{String: &t}, nil
	case []any:
		arr := &arrayValue{}
		for _, item := range t {
			ev, err := encodeValue(item)
			if err != nil {
				return value{}, err
			}
			arr.Values = append(arr.Values, ev)
		}
		return value{Array: arr}, nil
	case map[string]any:
		st := &structValue{}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ev, err := encodeValue(t[k])
			if err != nil {
				return value{}, err
			}
			st.Members = append(st.Members, member{Name: k, Value: ev})
		}
		return value{Struct: st}, nil
	default:
		return value{}, fmt.Errorf("xmlrpc: unsupported value type %T", v)
	}
}

func decodeValue(v value) (any, error) {
	switch {
	case v.Nil != nil:
		return nil, nil
	case v.String != nil:
		return *v.String, nil
	case v.Int != nil:
		return *v.Int, nil
	case v.I4 != nil:
		return *v.I4, nil
	case v.Double != nil:
		return *v.Double, nil
	case v.Boolean != nil:
		return *v.Boolean != 0, nil
	case v.DateTime != nil:
		return *v.DateTime, nil
	case v.Base64 != nil:
		return *v.Base64, nil
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for _, item := range v.Array.Values {
			dv, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, dv)
		}
		return out, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			dv, err := decodeValue(m.Value)
			if err != nil {
				return nil, err
			}
			out[m.Name] = dv
		}
		return out, nil
	default:
		// A bare string value with no wrapping tag defaults to string, per
		// the XML-RPC spec's <value>raw text</value> shorthand.
		if s, err := strconv.Unquote(`"` + v.Raw + `"`); err == nil {
			return s, nil
		}
		return v.Raw, nil
	}
}

func decodeResponse(body []byte) (any, error) {
	var resp methodResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("xmlrpc: decode response: %w", err)
	}
	if resp.Fault != nil {
		fv, err := decodeValue(resp.Fault.Value)
		if err != nil {
			return nil, fmt.Errorf("xmlrpc: decode fault: %w", err)
		}
		if m, ok := fv.(map[string]any); ok {
			if msg, ok := m["faultString"].(string); ok {
				return nil, &Fault{Message: msg}
			}
		}
		return nil, &Fault{Message: fmt.Sprintf("%v", fv)}
	}
	if len(resp.Params) == 0 {
		return nil, nil
	}
	return decodeValue(resp.Params[0].Value)
}

// Fault is a raw XML-RPC fault, classified by the caller via
// odoorpc.ClassifyFault(fault.Message).
type Fault struct {
	Message string
}

func (f *Fault) Error() string { return f.Message }
