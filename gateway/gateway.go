// Package gateway is the per-request orchestrator shared by every entity
// type: authenticate, authorize, validate (writes only), execute exactly one
// storage call, respond. One generic handler parameterized by the entity
// descriptor replaces the per-entity plumbing the console used to duplicate,
// so authorization logic cannot drift between entity types.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/access"
	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/httpx"
	"github.com/fleetrent/admin-gateway/identity"
	"github.com/fleetrent/admin-gateway/policy"
	"github.com/fleetrent/admin-gateway/query"
	"github.com/fleetrent/admin-gateway/storage"
)

// maxBodyBytes caps write payload size.
const maxBodyBytes = 1 << 20

// Authorizer is the decision engine contract the gateway consumes.
type Authorizer interface {
	Authorize(ctx context.Context, principal *identity.Principal, service, entityName string, op policy.Operation, instanceID *uuid.UUID) (*access.Decision, error)
}

// SchemaValidator is the external write-payload validation collaborator.
type SchemaValidator interface {
	Validate(entityName string, payload []byte) error
}

// Gateway serves the CRUD surface for every registered entity.
type Gateway struct {
	service     string
	entities    *descriptor.Registry
	engine      Authorizer
	store       storage.Adapter
	validator   SchemaValidator
	callTimeout time.Duration
	logger      *zap.Logger
}

// New creates a Gateway. service is the scope policies are resolved under;
// callTimeout bounds every external call (ownership lookup, query execution,
// write).
func New(service string, entities *descriptor.Registry, engine Authorizer, store storage.Adapter, validator SchemaValidator, callTimeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		service:     service,
		entities:    entities,
		engine:      engine,
		store:       store,
		validator:   validator,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Mount registers the collection and instance routes for every entity and
// the shared 405 handler for anything outside the four CRUD verbs.
func (g *Gateway) Mount(r chi.Router) {
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		_ = httpx.WriteFailure(w, http.StatusMethodNotAllowed,
			string(faults.KindMethodNotAllowed), "Method "+req.Method+" not allowed")
	})

	for _, name := range g.entities.Names() {
		ent, _ := g.entities.Get(name)
		r.Route("/"+ent.Table, func(r chi.Router) {
			r.Get("/", g.handleList(ent))
			r.Post("/", g.handleCreate(ent))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", g.handleRead(ent))
				r.Put("/", g.handleUpdate(ent))
				r.Delete("/", g.handleDelete(ent))
			})
		})
	}
}

// handleList serves GET on the collection endpoint.
func (g *Gateway) handleList(ent *descriptor.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.principal(w, r)
		if !ok {
			return
		}

		decision, err := g.authorize(r, principal, ent, policy.OpRead, nil)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if !decision.Granted {
			g.respondDenied(w, r, decision)
			return
		}

		req, err := query.ParseRequest(r.URL.Query())
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		plan, err := query.Translate(req, ent, decision.VisibleRelations)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		records, err := g.execute(r, plan)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		g.respond(w, r, records)
	}
}

// handleRead serves GET on the instance endpoint: the same translated plan as
// a list, narrowed to the instance id.
func (g *Gateway) handleRead(ent *descriptor.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.principal(w, r)
		if !ok {
			return
		}
		id, err := instanceID(r)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		decision, err := g.authorize(r, principal, ent, policy.OpRead, &id)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if !decision.Granted {
			g.respondDenied(w, r, decision)
			return
		}

		req, err := query.ParseRequest(r.URL.Query())
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		plan, err := query.Translate(req, ent, decision.VisibleRelations)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		plan.Limit = 1
		plan.Offset = 0
		plan.Filters = append(plan.Filters, query.PlanFilter{Field: "id", Operator: query.OpEq, Value: id})

		records, err := g.execute(r, plan)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if len(records) == 0 {
			g.respondError(w, r, faults.New(faults.KindNotFound, ent.Name+" not found"))
			return
		}
		g.respond(w, r, records[0])
	}
}

// handleCreate serves POST on the collection endpoint.
func (g *Gateway) handleCreate(ent *descriptor.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.principal(w, r)
		if !ok {
			return
		}

		decision, err := g.authorize(r, principal, ent, policy.OpCreate, nil)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if !decision.Granted {
			g.respondDenied(w, r, decision)
			return
		}

		payload, err := g.readPayload(w, r, ent)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		ctx, cancel := g.callContext(r)
		defer cancel()
		record, err := g.store.Create(ctx, ent, payload)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		g.respond(w, r, record)
	}
}

// handleUpdate serves PUT on the instance endpoint.
func (g *Gateway) handleUpdate(ent *descriptor.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.principal(w, r)
		if !ok {
			return
		}
		id, err := instanceID(r)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		decision, err := g.authorize(r, principal, ent, policy.OpUpdate, &id)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if !decision.Granted {
			g.respondDenied(w, r, decision)
			return
		}

		payload, err := g.readPayload(w, r, ent)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		ctx, cancel := g.callContext(r)
		defer cancel()
		record, err := g.store.Update(ctx, ent, id, payload)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		g.respond(w, r, record)
	}
}

// handleDelete serves DELETE on the instance endpoint. The authorize step's
// ownership lookup doubles as the existence check, so a missing instance
// never reaches the mutating call.
func (g *Gateway) handleDelete(ent *descriptor.Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := g.principal(w, r)
		if !ok {
			return
		}
		id, err := instanceID(r)
		if err != nil {
			g.respondError(w, r, err)
			return
		}

		decision, err := g.authorize(r, principal, ent, policy.OpDelete, &id)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		if !decision.Granted {
			g.respondDenied(w, r, decision)
			return
		}

		ctx, cancel := g.callContext(r)
		defer cancel()
		record, err := g.store.Delete(ctx, ent, id)
		if err != nil {
			g.respondError(w, r, err)
			return
		}
		g.respond(w, r, record)
	}
}

// principal reads the authenticated caller from the context. The auth
// middleware runs first; a missing principal means the route was mounted
// without it.
func (g *Gateway) principal(w http.ResponseWriter, r *http.Request) (*identity.Principal, bool) {
	principal := identity.FromContext(r.Context())
	if principal == nil {
		_ = httpx.WriteUnauthorized(w, "")
		return nil, false
	}
	return principal, true
}

// authorize runs the decision engine under the per-call timeout.
func (g *Gateway) authorize(r *http.Request, principal *identity.Principal, ent *descriptor.Entity, op policy.Operation, instanceID *uuid.UUID) (*access.Decision, error) {
	ctx, cancel := g.callContext(r)
	defer cancel()
	return g.engine.Authorize(ctx, principal, g.service, ent.Name, op, instanceID)
}

// execute issues the single query-plan execution for a read request.
func (g *Gateway) execute(r *http.Request, plan *query.Plan) ([]storage.Record, error) {
	ctx, cancel := g.callContext(r)
	defer cancel()
	return g.store.Execute(ctx, plan)
}

// readPayload reads and schema-validates a write body, returning the record
// to store. No storage call is issued when validation fails.
func (g *Gateway) readPayload(w http.ResponseWriter, r *http.Request, ent *descriptor.Entity) (storage.Record, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, faults.Wrap(faults.KindValidation, "unreadable request body", err)
	}

	if err := g.validator.Validate(ent.Name, body); err != nil {
		return nil, err
	}

	var payload storage.Record
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, faults.Wrap(faults.KindValidation, "malformed request body", err)
	}
	return payload, nil
}

// callContext derives the bounded context for one external call.
func (g *Gateway) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), g.callTimeout)
}

// instanceID parses the instance id path parameter. An unparseable id can
// match no instance, so it reports NotFound rather than a validation error.
func instanceID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, faults.New(faults.KindNotFound, "no such instance")
	}
	return id, nil
}
