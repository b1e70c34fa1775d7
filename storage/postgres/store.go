// Package postgres implements the storage adapter over PostgreSQL. Queries
// are built exclusively from validated QueryPlans, so every identifier that
// reaches SQL comes from a boot-loaded descriptor, never from the request.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/query"
	"github.com/fleetrent/admin-gateway/storage"
)

// Store implements storage.Adapter against a Postgres pool.
type Store struct {
	db       *DB
	entities *descriptor.Registry
	logger   *zap.Logger
}

// NewStore creates a Store. The descriptor registry supplies the table and
// column layout for every entity, including relation targets.
func NewStore(db *DB, entities *descriptor.Registry, logger *zap.Logger) *Store {
	return &Store{db: db, entities: entities, logger: logger}
}

// sqlOperators maps plan operators to SQL comparison operators. Contains is
// handled separately (ILIKE with a wrapped pattern).
var sqlOperators = map[query.Operator]string{
	query.OpEq:  "=",
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

// Execute runs one query plan: the base select, then relation embedding and
// counts for the plan's visible relations. The caller sees this as a single
// adapter call.
func (s *Store) Execute(ctx context.Context, plan *query.Plan) ([]storage.Record, error) {
	ent := plan.Entity
	cols := columnNames(ent)

	var sb strings.Builder
	args := make([]interface{}, 0, len(plan.Filters)+2)

	fmt.Fprintf(&sb, "SELECT %s FROM %s", columnList(cols), pq.QuoteIdentifier(ent.Table))

	if len(plan.Filters) > 0 {
		sb.WriteString(" WHERE ")
		for i, f := range plan.Filters {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			args = append(args, filterArg(f))
			if f.Operator == query.OpContains {
				fmt.Fprintf(&sb, "%s ILIKE $%d", pq.QuoteIdentifier(f.Field), len(args))
			} else {
				fmt.Fprintf(&sb, "%s %s $%d", pq.QuoteIdentifier(f.Field), sqlOperators[f.Operator], len(args))
			}
		}
	}

	if plan.OrderBy != "" {
		direction := "ASC"
		if plan.OrderDesc {
			direction = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", pq.QuoteIdentifier(plan.OrderBy), direction)
	}

	args = append(args, plan.Limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	args = append(args, plan.Offset)
	fmt.Fprintf(&sb, " OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorageFailure, "execute query", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, cols)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorageFailure, "scan rows", err)
	}

	for _, rel := range plan.Relations {
		if err := s.embedRelation(ctx, records, rel); err != nil {
			return nil, err
		}
	}
	for _, rel := range plan.Counts {
		if err := s.attachCount(ctx, records, rel); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("query executed",
		zap.String("entity", ent.Name),
		zap.Int("records", len(records)))

	return records, nil
}

// embedRelation attaches related rows to each record under the relation name.
func (s *Store) embedRelation(ctx context.Context, records []storage.Record, rel descriptor.Relation) error {
	if len(records) == 0 {
		return nil
	}
	related, ok := s.entities.Get(rel.Entity)
	if !ok {
		return faults.New(faults.KindStorageFailure, fmt.Sprintf("relation %q targets unregistered entity", rel.Name))
	}
	cols := columnNames(related)

	if rel.ToMany {
		// Foreign key lives on the related table; group children by it.
		parentIDs := collectValues(records, "id")
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
			columnList(cols), pq.QuoteIdentifier(related.Table), pq.QuoteIdentifier(rel.ForeignKey))
		rows, err := s.db.QueryContext(ctx, q, pq.Array(parentIDs))
		if err != nil {
			return faults.Wrap(faults.KindStorageFailure, "load relation "+rel.Name, err)
		}
		defer rows.Close()
		children, err := scanRecords(rows, cols)
		if err != nil {
			return faults.Wrap(faults.KindStorageFailure, "scan relation "+rel.Name, err)
		}
		grouped := make(map[string][]storage.Record, len(records))
		for _, child := range children {
			key := asString(child[rel.ForeignKey])
			grouped[key] = append(grouped[key], child)
		}
		for _, rec := range records {
			group := grouped[asString(rec["id"])]
			if group == nil {
				group = []storage.Record{}
			}
			rec[rel.Name] = group
		}
		return nil
	}

	// Foreign key lives on this table; look up the referenced rows by id.
	fkValues := collectValues(records, rel.ForeignKey)
	if len(fkValues) == 0 {
		for _, rec := range records {
			rec[rel.Name] = nil
		}
		return nil
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)",
		columnList(cols), pq.QuoteIdentifier(related.Table))
	rows, err := s.db.QueryContext(ctx, q, pq.Array(fkValues))
	if err != nil {
		return faults.Wrap(faults.KindStorageFailure, "load relation "+rel.Name, err)
	}
	defer rows.Close()
	parents, err := scanRecords(rows, cols)
	if err != nil {
		return faults.Wrap(faults.KindStorageFailure, "scan relation "+rel.Name, err)
	}
	byID := make(map[string]storage.Record, len(parents))
	for _, parent := range parents {
		byID[asString(parent["id"])] = parent
	}
	for _, rec := range records {
		if parent, ok := byID[asString(rec[rel.ForeignKey])]; ok {
			rec[rel.Name] = parent
		} else {
			rec[rel.Name] = nil
		}
	}
	return nil
}

// attachCount attaches an aggregate count under "_count" for each record.
func (s *Store) attachCount(ctx context.Context, records []storage.Record, rel descriptor.Relation) error {
	if len(records) == 0 {
		return nil
	}

	counts := make(map[string]int64, len(records))
	if rel.ToMany {
		related, ok := s.entities.Get(rel.Entity)
		if !ok {
			return faults.New(faults.KindStorageFailure, fmt.Sprintf("relation %q targets unregistered entity", rel.Name))
		}
		parentIDs := collectValues(records, "id")
		q := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s WHERE %s = ANY($1) GROUP BY %s",
			pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(related.Table),
			pq.QuoteIdentifier(rel.ForeignKey), pq.QuoteIdentifier(rel.ForeignKey))
		rows, err := s.db.QueryContext(ctx, q, pq.Array(parentIDs))
		if err != nil {
			return faults.Wrap(faults.KindStorageFailure, "count relation "+rel.Name, err)
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				return faults.Wrap(faults.KindStorageFailure, "scan count "+rel.Name, err)
			}
			counts[key] = n
		}
		if err := rows.Err(); err != nil {
			return faults.Wrap(faults.KindStorageFailure, "count relation "+rel.Name, err)
		}
		for _, rec := range records {
			setCount(rec, rel.Name, counts[asString(rec["id"])])
		}
		return nil
	}

	// To-one relations carry the foreign key locally: 0 or 1.
	for _, rec := range records {
		var n int64
		if rec[rel.ForeignKey] != nil {
			n = 1
		}
		setCount(rec, rel.Name, n)
	}
	return nil
}

// Create inserts a record and returns the stored row.
func (s *Store) Create(ctx context.Context, ent *descriptor.Entity, payload storage.Record) (storage.Record, error) {
	now := time.Now().UTC()
	if asString(payload["id"]) == "" {
		payload["id"] = uuid.New().String()
	}
	if _, declared := ent.FieldType("created_at"); declared && payload["created_at"] == nil {
		payload["created_at"] = now
	}
	if _, declared := ent.FieldType("updated_at"); declared && payload["updated_at"] == nil {
		payload["updated_at"] = now
	}

	cols := columnNames(ent)
	var insertCols []string
	var args []interface{}
	var placeholders []string
	for _, col := range cols {
		val, ok := payload[col]
		if !ok {
			continue
		}
		args = append(args, val)
		insertCols = append(insertCols, pq.QuoteIdentifier(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(ent.Table),
		strings.Join(insertCols, ", "),
		strings.Join(placeholders, ", "),
		columnList(cols))

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, args...), cols)
	if err != nil {
		return nil, faults.Wrap(faults.KindStorageFailure, "create "+ent.Name, err)
	}

	s.logger.Debug("record created",
		zap.String("entity", ent.Name),
		zap.String("id", asString(rec["id"])))
	return rec, nil
}

// Update overwrites declared fields of an instance and returns the stored
// row, or NotFound when the instance does not exist.
func (s *Store) Update(ctx context.Context, ent *descriptor.Entity, id uuid.UUID, payload storage.Record) (storage.Record, error) {
	if _, declared := ent.FieldType("updated_at"); declared {
		payload["updated_at"] = time.Now().UTC()
	}

	cols := columnNames(ent)
	var assignments []string
	var args []interface{}
	for _, col := range cols {
		if col == "id" || col == "created_at" {
			continue
		}
		val, ok := payload[col]
		if !ok {
			continue
		}
		args = append(args, val)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args)))
	}
	if len(assignments) == 0 {
		return nil, faults.New(faults.KindStorageFailure, "update with no assignable fields")
	}

	args = append(args, id.String())
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		pq.QuoteIdentifier(ent.Table),
		strings.Join(assignments, ", "),
		len(args),
		columnList(cols))

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, args...), cols)
	if err == sql.ErrNoRows {
		return nil, faults.New(faults.KindNotFound, ent.Name+" not found")
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindStorageFailure, "update "+ent.Name, err)
	}
	return rec, nil
}

// Delete removes an instance and returns the deleted row, or NotFound.
func (s *Store) Delete(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (storage.Record, error) {
	cols := columnNames(ent)
	q := fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING %s",
		pq.QuoteIdentifier(ent.Table), columnList(cols))

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id.String()), cols)
	if err == sql.ErrNoRows {
		return nil, faults.New(faults.KindNotFound, ent.Name+" not found")
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindStorageFailure, "delete "+ent.Name, err)
	}
	return rec, nil
}

// FindOwner returns the owning principal id of an instance, or NotFound when
// the instance is absent. Entities without an owner field yield uuid.Nil.
func (s *Store) FindOwner(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (uuid.UUID, error) {
	col := ent.OwnerField
	if col == "" {
		col = "id"
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		pq.QuoteIdentifier(col), pq.QuoteIdentifier(ent.Table))

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, q, id.String()).Scan(&raw)
	if err == sql.ErrNoRows {
		return uuid.Nil, faults.New(faults.KindNotFound, ent.Name+" not found")
	}
	if err != nil {
		return uuid.Nil, faults.Wrap(faults.KindStorageFailure, "find owner of "+ent.Name, err)
	}
	if ent.OwnerField == "" || !raw.Valid {
		return uuid.Nil, nil
	}

	owner, err := uuid.Parse(raw.String)
	if err != nil {
		return uuid.Nil, faults.Wrap(faults.KindStorageFailure, "parse owner id", err)
	}
	return owner, nil
}

// Helpers

// columnNames returns the declared field names in declaration order.
func columnNames(ent *descriptor.Entity) []string {
	names := make([]string, 0, len(ent.Fields))
	for _, f := range ent.Fields {
		names = append(names, f.Name)
	}
	return names
}

// columnList quotes and joins column names for a select list.
func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// filterArg prepares the bind value for one plan filter.
func filterArg(f query.PlanFilter) interface{} {
	if f.Operator == query.OpContains {
		return "%" + fmt.Sprintf("%v", f.Value) + "%"
	}
	if id, ok := f.Value.(uuid.UUID); ok {
		return id.String()
	}
	return f.Value
}

// collectValues gathers the distinct non-nil values of a column as strings.
func collectValues(records []storage.Record, col string) []string {
	seen := make(map[string]bool, len(records))
	out := make([]string, 0, len(records))
	for _, rec := range records {
		v := asString(rec[col])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// setCount attaches a count under the record's "_count" map.
func setCount(rec storage.Record, name string, n int64) {
	counts, ok := rec["_count"].(map[string]int64)
	if !ok {
		counts = make(map[string]int64)
		rec["_count"] = counts
	}
	counts[name] = n
}

// asString renders a scanned value as a comparable string key.
func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// scanRecords scans all rows into generic records.
func scanRecords(rows *sql.Rows, cols []string) ([]storage.Record, error) {
	out := []storage.Record{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, buildRecord(cols, values))
	}
	return out, rows.Err()
}

// scanRecord scans a single row into a generic record.
func scanRecord(row *sql.Row, cols []string) (storage.Record, error) {
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}
	return buildRecord(cols, values), nil
}

func buildRecord(cols []string, values []interface{}) storage.Record {
	rec := make(storage.Record, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			rec[col] = string(b)
		} else {
			rec[col] = values[i]
		}
	}
	return rec
}
