package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/vinwizard/pkg/repo"
)

// graphLabel is the node label holding persisted lists.
const graphLabel = "HistoryKey"

// keyDoc is one persisted list in the graph.
type keyDoc struct {
	Key   string
	Value string
}

type docRepo interface {
	Get(ctx context.Context, id string) (keyDoc, error)
	Put(ctx context.Context, id string, doc keyDoc) error
}

// GraphBackend stores each key as a (:HistoryKey {key, value}) node in Neo4j.
type GraphBackend struct {
	repo docRepo
}

// NewGraphBackend builds a backend on driver and ensures the key constraint.
// An empty database uses the server default.
func NewGraphBackend(ctx context.Context, driver neo4j.DriverWithContext, database string) (*GraphBackend, error) {
	opts := []repo.Neo4jOption[keyDoc, string]{repo.WithIDKey[keyDoc, string]("key")}
	if database != "" {
		opts = append(opts, repo.WithDatabase[keyDoc, string](database))
	}
	r := repo.NewNeo4jRepo[keyDoc, string](driver, graphLabel, docToMap, docFromRecord, opts...)
	if err := r.EnsureConstraint(ctx); err != nil {
		return nil, fmt.Errorf("history: neo4j constraint: %w", err)
	}
	return &GraphBackend{repo: r}, nil
}

func docToMap(d keyDoc) map[string]any {
	return map[string]any{"key": d.Key, "value": d.Value}
}

func docFromRecord(rec *neo4j.Record) (keyDoc, error) {
	if rec == nil || len(rec.Values) == 0 {
		return keyDoc{}, errors.New("history: empty record")
	}
	props, ok := rec.Values[0].(map[string]any)
	if !ok {
		return keyDoc{}, fmt.Errorf("history: unexpected record value %T", rec.Values[0])
	}
	key, _ := props["key"].(string)
	value, _ := props["value"].(string)
	return keyDoc{Key: key, Value: value}, nil
}

func (g *GraphBackend) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := g.repo.Get(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc.Value), nil
}

func (g *GraphBackend) Put(ctx context.Context, key string, value []byte) error {
	return g.repo.Put(ctx, key, keyDoc{Key: key, Value: string(value)})
}
