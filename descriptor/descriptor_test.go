package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carAndCompany() []*Entity {
	return []*Entity{
		{
			Name:         "company",
			Table:        "companies",
			OwnerField:   "owner_id",
			DefaultLimit: 20,
			MaxLimit:     100,
			Fields: []Field{
				{Name: "id", Type: FieldID},
				{Name: "name", Type: FieldString},
				{Name: "owner_id", Type: FieldID},
			},
			Relations: []Relation{
				{Name: "car", Entity: "car", ForeignKey: "company_id", ToMany: true},
			},
		},
		{
			Name:         "car",
			Table:        "cars",
			DefaultLimit: 20,
			MaxLimit:     50,
			Fields: []Field{
				{Name: "id", Type: FieldID},
				{Name: "year", Type: FieldNumber},
				{Name: "company_id", Type: FieldID},
			},
			Relations: []Relation{
				{Name: "company", Entity: "company", ForeignKey: "company_id"},
			},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(carAndCompany())
	require.NoError(t, err)

	assert.Equal(t, []string{"car", "company"}, reg.Names())

	company, ok := reg.Get("company")
	require.True(t, ok)

	ft, ok := company.FieldType("name")
	require.True(t, ok)
	assert.Equal(t, FieldString, ft)

	_, ok = company.FieldType("undeclared")
	assert.False(t, ok)

	rel, ok := company.RelationByName("car")
	require.True(t, ok)
	assert.True(t, rel.ToMany)
	assert.Equal(t, []string{"car"}, company.RelationNames())
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]*Entity)
		wantErr string
	}{
		{
			name:    "unknown relation target",
			mutate:  func(es []*Entity) { es[0].Relations[0].Entity = "spaceship" },
			wantErr: "unknown entity",
		},
		{
			name:    "unknown field type",
			mutate:  func(es []*Entity) { es[0].Fields[1].Type = "text" },
			wantErr: "unknown type",
		},
		{
			name:    "missing id field",
			mutate:  func(es []*Entity) { es[1].Fields = es[1].Fields[1:] },
			wantErr: "id field",
		},
		{
			name:    "owner field not an id",
			mutate:  func(es []*Entity) { es[0].OwnerField = "name" },
			wantErr: "owner field",
		},
		{
			name:    "default limit above max",
			mutate:  func(es []*Entity) { es[0].DefaultLimit = 500 },
			wantErr: "exceeds max",
		},
		{
			name:    "duplicate entity",
			mutate:  func(es []*Entity) { es[1].Name = "company" },
			wantErr: "duplicate entity",
		},
		{
			name:    "relation without foreign key",
			mutate:  func(es []*Entity) { es[0].Relations[0].ForeignKey = "" },
			wantErr: "foreign key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities := carAndCompany()
			tt.mutate(entities)
			_, err := NewRegistry(entities)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	data := []byte(`
entities:
  - name: company
    table: companies
    default_limit: 10
    max_limit: 50
    fields:
      - { name: id, type: id }
      - { name: name, type: string }
`)
	reg, err := Load(data)
	require.NoError(t, err)

	company, ok := reg.Get("company")
	require.True(t, ok)
	assert.Equal(t, 10, company.DefaultLimit)
	assert.Equal(t, 50, company.MaxLimit)
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load([]byte("entities: []"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entities")
}
