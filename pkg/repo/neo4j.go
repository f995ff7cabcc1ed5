package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jRepo stores each entity as one node with a unique ID property.
type Neo4jRepo[T any, ID comparable] struct {
	driver     neo4j.DriverWithContext
	database   string
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	newSession func(ctx context.Context) runner // for testing
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// WithDatabase selects a database other than the server default.
func WithDatabase[T any, ID comparable](name string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.database = name }
}

// NewNeo4jRepo creates a Neo4j-backed repository for nodes labelled label.
// fromRecord receives records whose first value is the node's property map.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		driver:     driver,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})}
}

// EnsureConstraint creates the uniqueness constraint on the ID property.
func (r *Neo4jRepo[T, ID]) EnsureConstraint(ctx context.Context) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("CREATE CONSTRAINT %s_%s_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		r.label, r.idKey, r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, nil)
	return err
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN properties(n) AS n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if !res.Next(ctx) {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return r.fromRecord(res.Record())
}

// Put merges the node for id and overwrites its properties with entity's.
func (r *Neo4jRepo[T, ID]) Put(ctx context.Context, id ID, entity T) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	props := r.toMap(entity)
	props[r.idKey] = id
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n = $props", r.label, r.idKey)
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id, "props": props})
	return err
}
