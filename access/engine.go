// Package access computes grant/deny decisions. The engine is fail-closed: a
// tuple without a registered policy denies, and absence of an instance is
// reported distinctly from lack of permission. Decisions are computed fresh
// per request and never cached (ownership can change between requests).
package access

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/identity"
	"github.com/fleetrent/admin-gateway/policy"
)

// Reason explains a decision's outcome.
type Reason string

const (
	ReasonGranted        Reason = "granted"
	ReasonPolicyNotFound Reason = "policy_not_found"
	ReasonForbidden      Reason = "forbidden"
	ReasonNotFound       Reason = "not_found"
)

// Decision is the outcome of one authorization check. VisibleRelations is
// the per-relation visibility mask for read operations; relations a caller
// may not read are excluded from the mask, not turned into a request-wide
// failure.
type Decision struct {
	Granted          bool
	Reason           Reason
	VisibleRelations map[string]bool
}

// OwnerLookup is the storage capability the engine needs: resolving an
// instance to its owning principal (or reporting absence).
type OwnerLookup interface {
	FindOwner(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (uuid.UUID, error)
}

// Engine is the access decision engine. It is stateless; both registries are
// read-only after boot, so concurrent use needs no synchronization.
type Engine struct {
	policies *policy.Registry
	entities *descriptor.Registry
	owners   OwnerLookup
	logger   *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(policies *policy.Registry, entities *descriptor.Registry, owners OwnerLookup, logger *zap.Logger) *Engine {
	return &Engine{
		policies: policies,
		entities: entities,
		owners:   owners,
		logger:   logger,
	}
}

// Authorize evaluates whether the principal may perform the operation on the
// entity (and, when instanceID is set, on that specific instance). For read
// operations the returned decision carries the visibility mask over the
// entity's declared relations. The only side effect is the ownership lookup;
// the call is safe to invoke multiple times.
func (e *Engine) Authorize(ctx context.Context, principal *identity.Principal, service, entityName string, op policy.Operation, instanceID *uuid.UUID) (*Decision, error) {
	return e.authorize(ctx, principal, service, entityName, op, instanceID, true)
}

func (e *Engine) authorize(ctx context.Context, principal *identity.Principal, service, entityName string, op policy.Operation, instanceID *uuid.UUID, expandRelations bool) (*Decision, error) {
	rule, err := e.policies.Resolve(service, entityName, op)
	if err != nil {
		// Fail closed: no rule means deny, never an implicit allow.
		e.logger.Debug("no policy registered",
			zap.String("service", service),
			zap.String("entity", entityName),
			zap.String("operation", string(op)))
		return &Decision{Reason: ReasonPolicyNotFound}, nil
	}

	if !principal.HasAnyRole(rule.Roles) || !tenantAllowed(principal, rule.Tenants) {
		return &Decision{Reason: ReasonForbidden}, nil
	}

	if instanceID != nil {
		ent, ok := e.entities.Get(entityName)
		if !ok {
			return &Decision{Reason: ReasonNotFound}, nil
		}
		owner, err := e.owners.FindOwner(ctx, ent, *instanceID)
		if faults.IsNotFound(err) {
			// Absence, not lack of permission.
			return &Decision{Reason: ReasonNotFound}, nil
		}
		if err != nil {
			return nil, err
		}
		if rule.RequireOwner && owner != principal.ID {
			return &Decision{Reason: ReasonForbidden}, nil
		}
	}

	decision := &Decision{Granted: true, Reason: ReasonGranted}

	if op == policy.OpRead && expandRelations {
		mask, err := e.relationMask(ctx, principal, service, entityName)
		if err != nil {
			return nil, err
		}
		decision.VisibleRelations = mask
	}

	return decision, nil
}

// relationMask authorizes READ on every declared relation of the entity. The
// checks are mutually independent and run concurrently, one per relation;
// all join before the mask is returned, since the mask must be final before
// any query plan is built from it.
func (e *Engine) relationMask(ctx context.Context, principal *identity.Principal, service, entityName string) (map[string]bool, error) {
	ent, ok := e.entities.Get(entityName)
	if !ok {
		return map[string]bool{}, nil
	}

	relations := ent.Relations
	granted := make([]bool, len(relations))

	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range relations {
		i, rel := i, rel
		g.Go(func() error {
			sub, err := e.authorize(gctx, principal, service, rel.Entity, policy.OpRead, nil, false)
			if err != nil {
				return err
			}
			granted[i] = sub.Granted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mask := make(map[string]bool, len(relations))
	for i, rel := range relations {
		if granted[i] {
			mask[rel.Name] = true
		}
	}
	return mask, nil
}

// tenantAllowed applies a rule's tenant predicate. Empty means any tenant.
func tenantAllowed(principal *identity.Principal, tenants []string) bool {
	if len(tenants) == 0 {
		return true
	}
	for _, t := range tenants {
		if principal.Tenant == t {
			return true
		}
	}
	return false
}
