// Package query turns an open, string-typed query request into a bounded,
// typed plan. A plan never references a field absent from the entity
// descriptor, nor a relation outside the caller's visibility mask; the
// storage adapter relies on that and performs no further checks.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetrent/admin-gateway/faults"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq       Operator = "eq"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
)

// Filter is one raw predicate from the query string.
type Filter struct {
	Field    string
	Operator Operator
	Value    string
}

// Request is the raw, untrusted query request parsed from the URL.
type Request struct {
	Limit     *int
	Offset    int
	Order     string // field name, "-" prefix for descending
	Relations []string
	Counts    []string
	Filters   []Filter
}

// countSuffix marks a relation entry requesting an aggregate count instead of
// embedded rows ("car.count"), matching the console's list pages.
const countSuffix = ".count"

// reserved query keys that are not filter fields.
var reservedKeys = map[string]bool{
	"limit":     true,
	"offset":    true,
	"order":     true,
	"relations": true,
}

// ParseRequest decodes URL query values into a Request. Structural problems
// (non-numeric pagination, malformed filter keys) fail with InvalidQuery;
// field and operator validation happens later in Translate, which knows the
// entity descriptor.
func ParseRequest(values url.Values) (*Request, error) {
	req := &Request{}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, faults.New(faults.KindInvalidQuery, fmt.Sprintf("invalid limit %q", raw))
		}
		req.Limit = &n
	}

	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, faults.New(faults.KindInvalidQuery, fmt.Sprintf("invalid offset %q", raw))
		}
		req.Offset = n
	}

	req.Order = values.Get("order")

	for _, raw := range values["relations"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if strings.HasSuffix(name, countSuffix) {
				req.Counts = append(req.Counts, strings.TrimSuffix(name, countSuffix))
			} else {
				req.Relations = append(req.Relations, name)
			}
		}
	}

	// url.Values is a map; iterate keys in sorted order so identical query
	// strings always produce the same filter (and bind) order.
	keys := make([]string, 0, len(values))
	for key := range values {
		if reservedKeys[key] {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		field, op, err := parseFilterKey(key)
		if err != nil {
			return nil, err
		}
		for _, v := range values[key] {
			req.Filters = append(req.Filters, Filter{Field: field, Operator: op, Value: v})
		}
	}

	return req, nil
}

// parseFilterKey splits "field" (equality) or "field[op]" into its parts.
func parseFilterKey(key string) (string, Operator, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, OpEq, nil
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", faults.New(faults.KindInvalidQuery, fmt.Sprintf("malformed filter key %q", key))
	}
	field := key[:open]
	op := Operator(key[open+1 : len(key)-1])
	switch op {
	case OpEq, OpContains, OpGt, OpGte, OpLt, OpLte:
		return field, op, nil
	}
	return "", "", faults.New(faults.KindInvalidQuery, fmt.Sprintf("unknown filter operator %q", op))
}
