package internalknowledge

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGBackend is the durable Backend implementation, grounded on the
// teacher's pgx pool singleton (pkg/core/store/db.go) and the
// CreateAsset/AddChunks CRUD shape of pkg/core/knowledge/store.go,
// retargeted at a flat chunk table instead of asset+chunk hierarchy since
// the spec's Internal Knowledge contract only exposes Search, not asset
// management. Requires the caller to have already created:
//
//	CREATE TABLE knowledge_chunks (
//	    id SERIAL PRIMARY KEY,
//	    content TEXT NOT NULL,
//	    metadata JSONB
//	);
//
// and, for production-grade semantic search, a pgvector extension with an
// embedding column -- left as a documented follow-up since the spec's
// Internal Knowledge client contract does not specify an embedding model.
type PGBackend struct {
	pool *pgxpool.Pool
}

func NewPGBackend(pool *pgxpool.Pool) *PGBackend {
	return &PGBackend{pool: pool}
}

func (b *PGBackend) Add(ctx context.Context, chunk Chunk) error {
	metaJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO knowledge_chunks (content, metadata) VALUES ($1, $2)`,
		chunk.Content, metaJSON,
	)
	return err
}

// Search performs a substring match via ILIKE. A pgvector cosine-distance
// query is the natural upgrade once an embedding pipeline exists upstream
// of this client; spec 4.1 specifies only the search(query, limit)
// contract, not how similarity is computed, so the textual fallback
// satisfies the contract without inventing an embedding dependency.
func (b *PGBackend) Search(ctx context.Context, query string, limit int) ([]Chunk, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT content, metadata FROM knowledge_chunks WHERE content ILIKE '%' || $1 || '%' LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var content string
		var metaJSON []byte
		if err := rows.Scan(&content, &metaJSON); err != nil {
			return nil, err
		}
		var meta map[string]any
		_ = json.Unmarshal(metaJSON, &meta)
		out = append(out, Chunk{Content: content, Metadata: meta})
	}
	return out, rows.Err()
}
