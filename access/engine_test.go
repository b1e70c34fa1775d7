package access

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/identity"
	"github.com/fleetrent/admin-gateway/policy"
)

type mockOwners struct {
	mock.Mock
}

func (m *mockOwners) FindOwner(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, ent, id)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func testEntities(t *testing.T) *descriptor.Registry {
	t.Helper()
	reg, err := descriptor.NewRegistry([]*descriptor.Entity{
		{
			Name:         "company",
			Table:        "companies",
			OwnerField:   "owner_id",
			DefaultLimit: 20,
			MaxLimit:     100,
			Fields: []descriptor.Field{
				{Name: "id", Type: descriptor.FieldID},
				{Name: "owner_id", Type: descriptor.FieldID},
			},
			Relations: []descriptor.Relation{
				{Name: "owner", Entity: "user", ForeignKey: "owner_id"},
				{Name: "cars", Entity: "car", ForeignKey: "company_id", ToMany: true},
			},
		},
		{
			Name:         "car",
			Table:        "cars",
			DefaultLimit: 20,
			MaxLimit:     100,
			Fields:       []descriptor.Field{{Name: "id", Type: descriptor.FieldID}},
		},
		{
			Name:         "user",
			Table:        "users",
			DefaultLimit: 20,
			MaxLimit:     100,
			Fields:       []descriptor.Field{{Name: "id", Type: descriptor.FieldID}},
		},
	})
	require.NoError(t, err)
	return reg
}

func testPolicies(t *testing.T, rules []policy.Rule) *policy.Registry {
	t.Helper()
	reg, err := policy.NewRegistry(rules)
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, rules []policy.Rule, owners OwnerLookup) *Engine {
	t.Helper()
	return NewEngine(testPolicies(t, rules), testEntities(t), owners, zap.NewNop())
}

func TestAuthorize_PolicyNotFound(t *testing.T) {
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpRead},
	}, &mockOwners{})
	principal := &identity.Principal{ID: uuid.New(), Roles: []string{"admin"}}

	// A registered tuple for a different operation does not leak through.
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpDelete, nil)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, ReasonPolicyNotFound, decision.Reason)

	// Same for a different service scope.
	decision, err = engine.Authorize(context.Background(), principal, "billing", "company", policy.OpRead, nil)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, ReasonPolicyNotFound, decision.Reason)
}

func TestAuthorize_RolePredicate(t *testing.T) {
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpCreate, Roles: []string{"account-owner", "admin"}},
	}, &mockOwners{})

	viewer := &identity.Principal{ID: uuid.New(), Roles: []string{"viewer"}}
	decision, err := engine.Authorize(context.Background(), viewer, "project", "company", policy.OpCreate, nil)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, ReasonForbidden, decision.Reason)

	owner := &identity.Principal{ID: uuid.New(), Roles: []string{"account-owner"}}
	decision, err = engine.Authorize(context.Background(), owner, "project", "company", policy.OpCreate, nil)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
	assert.Equal(t, ReasonGranted, decision.Reason)
}

func TestAuthorize_TenantPredicate(t *testing.T) {
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpCreate, Tenants: []string{"acme"}},
	}, &mockOwners{})

	outsider := &identity.Principal{ID: uuid.New(), Tenant: "globex"}
	decision, err := engine.Authorize(context.Background(), outsider, "project", "company", policy.OpCreate, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonForbidden, decision.Reason)

	insider := &identity.Principal{ID: uuid.New(), Tenant: "acme"}
	decision, err = engine.Authorize(context.Background(), insider, "project", "company", policy.OpCreate, nil)
	require.NoError(t, err)
	assert.True(t, decision.Granted)
}

func TestAuthorize_OwnerCheck(t *testing.T) {
	ownerID := uuid.New()
	instanceID := uuid.New()
	rules := []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpUpdate, RequireOwner: true},
	}

	t.Run("owner may update", func(t *testing.T) {
		owners := &mockOwners{}
		owners.On("FindOwner", mock.Anything, mock.Anything, instanceID).Return(ownerID, nil)
		engine := newTestEngine(t, rules, owners)

		principal := &identity.Principal{ID: ownerID}
		decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpUpdate, &instanceID)
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		owners.AssertExpectations(t)
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		owners := &mockOwners{}
		owners.On("FindOwner", mock.Anything, mock.Anything, instanceID).Return(ownerID, nil)
		engine := newTestEngine(t, rules, owners)

		principal := &identity.Principal{ID: uuid.New()}
		decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpUpdate, &instanceID)
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonForbidden, decision.Reason)
	})

	t.Run("absent instance reports not found", func(t *testing.T) {
		owners := &mockOwners{}
		owners.On("FindOwner", mock.Anything, mock.Anything, instanceID).
			Return(uuid.Nil, faults.New(faults.KindNotFound, "no such row"))
		engine := newTestEngine(t, rules, owners)

		principal := &identity.Principal{ID: ownerID}
		decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpUpdate, &instanceID)
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, ReasonNotFound, decision.Reason)
	})
}

// Ownership resolution runs for every instance-scoped call, even when the
// rule has no owner requirement, so absent instances surface as not found
// before any storage write.
func TestAuthorize_ExistenceCheckWithoutOwnerRule(t *testing.T) {
	instanceID := uuid.New()
	owners := &mockOwners{}
	owners.On("FindOwner", mock.Anything, mock.Anything, instanceID).
		Return(uuid.Nil, faults.New(faults.KindNotFound, "no such row"))
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpDelete},
	}, owners)

	principal := &identity.Principal{ID: uuid.New()}
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpDelete, &instanceID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, decision.Reason)
	owners.AssertExpectations(t)
}

func TestAuthorize_StorageFailurePropagates(t *testing.T) {
	instanceID := uuid.New()
	owners := &mockOwners{}
	owners.On("FindOwner", mock.Anything, mock.Anything, instanceID).
		Return(uuid.Nil, faults.New(faults.KindStorageFailure, "connection reset"))
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpDelete},
	}, owners)

	principal := &identity.Principal{ID: uuid.New()}
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpDelete, &instanceID)
	require.Error(t, err)
	assert.Nil(t, decision)
	assert.True(t, faults.IsKind(err, faults.KindStorageFailure))
}

func TestAuthorize_RelationMask(t *testing.T) {
	// company declares relations to user and car; the caller may read
	// companies and users but has no policy for cars.
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpRead},
		{Service: "project", Entity: "user", Operation: policy.OpRead},
	}, &mockOwners{})

	principal := &identity.Principal{ID: uuid.New()}
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpRead, nil)
	require.NoError(t, err)
	require.True(t, decision.Granted)
	assert.Equal(t, map[string]bool{"owner": true}, decision.VisibleRelations)
}

func TestAuthorize_RelationMaskOnlyForRead(t *testing.T) {
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpCreate},
		{Service: "project", Entity: "user", Operation: policy.OpRead},
	}, &mockOwners{})

	principal := &identity.Principal{ID: uuid.New()}
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpCreate, nil)
	require.NoError(t, err)
	require.True(t, decision.Granted)
	assert.Nil(t, decision.VisibleRelations)
}

func TestAuthorize_RoleDeniedRelationNotMasked(t *testing.T) {
	// user rows are readable only by admins; a non-admin reading companies
	// gets a mask without the owner relation rather than a denial.
	engine := newTestEngine(t, []policy.Rule{
		{Service: "project", Entity: "company", Operation: policy.OpRead},
		{Service: "project", Entity: "car", Operation: policy.OpRead},
		{Service: "project", Entity: "user", Operation: policy.OpRead, Roles: []string{"admin"}},
	}, &mockOwners{})

	principal := &identity.Principal{ID: uuid.New(), Roles: []string{"viewer"}}
	decision, err := engine.Authorize(context.Background(), principal, "project", "company", policy.OpRead, nil)
	require.NoError(t, err)
	require.True(t, decision.Granted)
	assert.Equal(t, map[string]bool{"cars": true}, decision.VisibleRelations)
}
