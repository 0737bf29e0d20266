package vectorstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jSearcher runs Cypher templates against a Neo4j vector index.
type Neo4jSearcher struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jSearcher(ctx context.Context, cfg Neo4jConfig) (*Neo4jSearcher, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: uri is required")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	return &Neo4jSearcher{driver: driver, database: cfg.Database}, nil
}

// Search executes query in a read transaction. Every record becomes a row
// keyed by its column names.
func (s *Neo4jSearcher) Search(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, cypherParams(params))
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rec.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j query: %w", err)
	}
	return out.([]map[string]any), nil
}

func (s *Neo4jSearcher) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// cypherParams widens vectors to float64 lists, the type Cypher compares
// index embeddings against.
func cypherParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if vec, ok := v.([]float32); ok {
			wide := make([]float64, len(vec))
			for i, f := range vec {
				wide[i] = float64(f)
			}
			v = wide
		}
		out[k] = v
	}
	return out
}
