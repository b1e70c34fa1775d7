// Package schema validates write payloads against per-entity rules before
// any storage call. Field-level constraints live on the model structs; the
// gateway only sees ok or a ValidationError.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/models"
)

// Validator checks write payloads for registered entity types.
type Validator struct {
	validate *validator.Validate
	targets  map[string]func() interface{}
}

// NewValidator creates a Validator with the console's entity schemas
// registered.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
		targets: map[string]func() interface{}{
			"company": func() interface{} { return &models.Company{} },
			"car":     func() interface{} { return &models.Car{} },
			"booking": func() interface{} { return &models.Booking{} },
			"user":    func() interface{} { return &models.User{} },
		},
	}
}

// Validate decodes the JSON payload into the entity's schema and applies its
// field rules. A malformed or rule-violating payload fails with a
// ValidationError; an entity without a registered schema is a server
// configuration error.
func (v *Validator) Validate(entityName string, payload []byte) error {
	newTarget, ok := v.targets[entityName]
	if !ok {
		return fmt.Errorf("no schema registered for entity %q", entityName)
	}

	target := newTarget()
	if err := json.Unmarshal(payload, target); err != nil {
		return faults.Wrap(faults.KindValidation, "malformed request body", err)
	}

	if err := v.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return faults.New(faults.KindValidation, describe(verrs))
		}
		return faults.Wrap(faults.KindValidation, "invalid request body", err)
	}

	return nil
}

// describe renders validation failures as one stable, readable message.
func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			parts = append(parts, fmt.Sprintf("%s must be a valid email", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "lte":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "gtefield":
			parts = append(parts, fmt.Sprintf("%s must not precede %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
