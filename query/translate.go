package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/faults"
)

// PlanFilter is a validated, typed predicate.
type PlanFilter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Plan is the normalized query consumed once by the storage adapter. It is
// bounded (limit clamped), whitelisted (declared fields only), and masked
// (visible relations only).
type Plan struct {
	Entity    *descriptor.Entity
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
	Filters   []PlanFilter
	Relations []descriptor.Relation
	Counts    []descriptor.Relation
}

// operatorsByType is the closed operator whitelist per semantic field type.
var operatorsByType = map[descriptor.FieldType]map[Operator]bool{
	descriptor.FieldString:  {OpEq: true, OpContains: true},
	descriptor.FieldNumber:  {OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true},
	descriptor.FieldDate:    {OpEq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true},
	descriptor.FieldBoolean: {OpEq: true},
	descriptor.FieldID:      {OpEq: true},
}

// Translate validates the raw request against the entity descriptor and the
// visibility mask and produces a Plan. Unknown fields and type-incompatible
// operators fail with InvalidQuery; an oversized limit is silently clamped;
// requested relations outside the mask are silently dropped.
func Translate(req *Request, ent *descriptor.Entity, visible map[string]bool) (*Plan, error) {
	plan := &Plan{
		Entity: ent,
		Offset: req.Offset,
	}

	plan.Limit = ent.DefaultLimit
	if req.Limit != nil {
		plan.Limit = *req.Limit
		if plan.Limit > ent.MaxLimit {
			plan.Limit = ent.MaxLimit
		}
	}

	if req.Order != "" {
		field := req.Order
		if strings.HasPrefix(field, "-") {
			plan.OrderDesc = true
			field = field[1:]
		}
		if _, ok := ent.FieldType(field); !ok {
			return nil, faults.New(faults.KindInvalidQuery, fmt.Sprintf("unknown order field %q", field))
		}
		plan.OrderBy = field
	}

	for _, f := range req.Filters {
		ft, ok := ent.FieldType(f.Field)
		if !ok {
			return nil, faults.New(faults.KindInvalidQuery, fmt.Sprintf("unknown filter field %q", f.Field))
		}
		if !operatorsByType[ft][f.Operator] {
			return nil, faults.New(faults.KindInvalidQuery,
				fmt.Sprintf("operator %q not allowed on %s field %q", f.Operator, ft, f.Field))
		}
		value, err := coerceValue(ft, f.Value)
		if err != nil {
			return nil, faults.New(faults.KindInvalidQuery,
				fmt.Sprintf("invalid %s value %q for field %q", ft, f.Value, f.Field))
		}
		plan.Filters = append(plan.Filters, PlanFilter{Field: f.Field, Operator: f.Operator, Value: value})
	}

	var err error
	if plan.Relations, err = maskRelations(req.Relations, ent, visible); err != nil {
		return nil, err
	}
	if plan.Counts, err = maskRelations(req.Counts, ent, visible); err != nil {
		return nil, err
	}

	return plan, nil
}

// maskRelations resolves requested relation names, deduplicates them, and
// intersects with the visibility mask. Declared-but-invisible relations are
// dropped without error; undeclared names are a client error.
func maskRelations(names []string, ent *descriptor.Entity, visible map[string]bool) ([]descriptor.Relation, error) {
	var out []descriptor.Relation
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		rel, ok := ent.RelationByName(name)
		if !ok {
			return nil, faults.New(faults.KindInvalidQuery, fmt.Sprintf("unknown relation %q", name))
		}
		if !visible[name] {
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// coerceValue converts the raw string value to the field's Go type.
func coerceValue(ft descriptor.FieldType, raw string) (interface{}, error) {
	switch ft {
	case descriptor.FieldString:
		return raw, nil
	case descriptor.FieldNumber:
		return strconv.ParseFloat(raw, 64)
	case descriptor.FieldBoolean:
		return strconv.ParseBool(raw)
	case descriptor.FieldDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", raw)
	case descriptor.FieldID:
		return uuid.Parse(raw)
	}
	return nil, fmt.Errorf("unknown field type %q", ft)
}
