package pgx

import (
	"context"
	"fmt"

	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// GraphDBStorage implements store.GraphStorage using PostgreSQL with
// pgvector for embedding columns. All writes are upserts on the natural
// key, so re-running a pipeline stage is safe.
type GraphDBStorage struct {
	conn pgxIConn
}

// NewGraphDBStorage creates a GraphDBStorage using an existing connection
// or pool. The schema is managed by the migrations in internal/db.
func NewGraphDBStorage(conn pgxIConn) *GraphDBStorage {
	return &GraphDBStorage{conn: conn}
}

func (s *GraphDBStorage) AddEntities(ctx context.Context, entities []common.Entity, table string) error {
	switch table {
	case store.EntityTableDocument:
		return s.addDocumentEntities(ctx, entities)
	case store.EntityTableCollection:
		return s.addCollectionEntities(ctx, entities)
	default:
		return fmt.Errorf("unknown entity table %q", table)
	}
}

func (s *GraphDBStorage) addDocumentEntities(ctx context.Context, entities []common.Entity) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		_, err := tx.Exec(ctx, `
			INSERT INTO document_entity (id, name, category, description, embedding, document_id, source_ids, attributes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				description = EXCLUDED.description,
				embedding = EXCLUDED.embedding,
				source_ids = EXCLUDED.source_ids,
				attributes = EXCLUDED.attributes`,
			e.ID, e.Name, e.Category, e.Description, embeddingValue(e.DescriptionEmbedding),
			e.DocumentID, e.SourceIDs, e.Attributes,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document entity %q: %w", e.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *GraphDBStorage) addCollectionEntities(ctx context.Context, entities []common.Entity) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entities {
		_, err := tx.Exec(ctx, `
			INSERT INTO collection_entity (collection_id, name, category, description, embedding, document_ids, source_ids, attributes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (collection_id, name) DO UPDATE SET
				category = EXCLUDED.category,
				description = EXCLUDED.description,
				embedding = EXCLUDED.embedding,
				document_ids = EXCLUDED.document_ids,
				source_ids = EXCLUDED.source_ids,
				attributes = EXCLUDED.attributes`,
			e.CollectionID, e.Name, e.Category, e.Description, embeddingValue(e.DescriptionEmbedding),
			e.DocumentIDs, e.SourceIDs, e.Attributes,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert collection entity %q: %w", e.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *GraphDBStorage) AddTriples(ctx context.Context, triples []common.Triple, table string) error {
	if table != store.TripleTable {
		return fmt.Errorf("unknown triple table %q", table)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range triples {
		_, err := tx.Exec(ctx, `
			INSERT INTO triple (id, subject, predicate, object, description, weight, document_id, source_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				description = EXCLUDED.description,
				weight = EXCLUDED.weight,
				source_ids = EXCLUDED.source_ids`,
			t.ID, t.Subject, t.Predicate, t.Object, t.Description, t.Weight, t.DocumentID, t.SourceIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert triple %s: %w", t.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *GraphDBStorage) GetEntitiesByDocument(ctx context.Context, documentID string) (map[string][]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, category, description, document_id, source_ids, attributes
		FROM document_entity
		WHERE document_id = $1
		ORDER BY name, id`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query document entities: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]common.Entity)
	for rows.Next() {
		var e common.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Description, &e.DocumentID, &e.SourceIDs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to scan document entity: %w", err)
		}
		grouped[e.Name] = append(grouped[e.Name], e)
	}
	return grouped, rows.Err()
}

func (s *GraphDBStorage) GetTriplesByDocument(ctx context.Context, documentID string) ([]common.Triple, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, subject, predicate, object, description, weight, document_id, source_ids
		FROM triple
		WHERE document_id = $1`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query document triples: %w", err)
	}
	defer rows.Close()

	return scanTriples(rows)
}

func (s *GraphDBStorage) GetEntities(ctx context.Context, collectionID string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, category, description, document_ids, source_ids, attributes
		FROM collection_entity
		WHERE collection_id = $1
		ORDER BY name`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection entities: %w", err)
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		e := common.Entity{CollectionID: collectionID}
		if err := rows.Scan(&e.Name, &e.Category, &e.Description, &e.DocumentIDs, &e.SourceIDs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to scan collection entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStorage) GetTriples(ctx context.Context, collectionID string) ([]common.Triple, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT t.id, t.subject, t.predicate, t.object, t.description, t.weight, t.document_id, t.source_ids
		FROM triple t
		WHERE EXISTS (
			SELECT 1 FROM collection_entity ce
			WHERE ce.collection_id = $1 AND ce.name = t.subject
		)`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection triples: %w", err)
	}
	defer rows.Close()

	return scanTriples(rows)
}

func (s *GraphDBStorage) AddCommunityAssignments(ctx context.Context, collectionID string, assignments []store.CommunityAssignment) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM community_membership WHERE collection_id = $1`, collectionID); err != nil {
		return fmt.Errorf("failed to clear community memberships: %w", err)
	}

	for _, a := range assignments {
		_, err := tx.Exec(ctx, `
			INSERT INTO community_membership (collection_id, level, cluster, node)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection_id, level, cluster, node) DO NOTHING`,
			collectionID, a.Level, a.Cluster, a.Node,
		)
		if err != nil {
			return fmt.Errorf("failed to insert community membership: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *GraphDBStorage) GetCommunityMembers(ctx context.Context, collectionID string, level int, cluster int) ([]common.Entity, []common.Triple, error) {
	entityRows, err := s.conn.Query(ctx, `
		SELECT ce.name, ce.category, ce.description, ce.document_ids, ce.source_ids, ce.attributes
		FROM collection_entity ce
		JOIN community_membership cm
			ON cm.collection_id = ce.collection_id AND cm.node = ce.name
		WHERE cm.collection_id = $1 AND cm.level = $2 AND cm.cluster = $3`,
		collectionID, level, cluster,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query community entities: %w", err)
	}
	defer entityRows.Close()

	var entities []common.Entity
	for entityRows.Next() {
		e := common.Entity{CollectionID: collectionID}
		if err := entityRows.Scan(&e.Name, &e.Category, &e.Description, &e.DocumentIDs, &e.SourceIDs, &e.Attributes); err != nil {
			return nil, nil, fmt.Errorf("failed to scan community entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := entityRows.Err(); err != nil {
		return nil, nil, err
	}

	tripleRows, err := s.conn.Query(ctx, `
		SELECT t.id, t.subject, t.predicate, t.object, t.description, t.weight, t.document_id, t.source_ids
		FROM triple t
		JOIN community_membership cs
			ON cs.collection_id = $1 AND cs.level = $2 AND cs.cluster = $3 AND cs.node = t.subject
		JOIN community_membership co
			ON co.collection_id = $1 AND co.level = $2 AND co.cluster = $3 AND co.node = t.object`,
		collectionID, level, cluster,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query community triples: %w", err)
	}
	defer tripleRows.Close()

	triples, err := scanTriples(tripleRows)
	if err != nil {
		return nil, nil, err
	}
	return entities, triples, nil
}

func (s *GraphDBStorage) UpsertCommunity(ctx context.Context, community common.Community) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO community (id, collection_id, level, summary, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			embedding = EXCLUDED.embedding`,
		community.ID, community.CollectionID, community.Level, community.Summary,
		embeddingValue(community.SummaryEmbedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert community %s: %w", community.ID, err)
	}
	return nil
}

func (s *GraphDBStorage) DeleteCommunities(ctx context.Context, collectionID string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM community WHERE collection_id = $1`, collectionID); err != nil {
		return fmt.Errorf("failed to delete communities: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM community_membership WHERE collection_id = $1`, collectionID); err != nil {
		return fmt.Errorf("failed to delete community memberships: %w", err)
	}
	return tx.Commit(ctx)
}

func scanTriples(rows pgx.Rows) ([]common.Triple, error) {
	var out []common.Triple
	for rows.Next() {
		var t common.Triple
		if err := rows.Scan(&t.ID, &t.Subject, &t.Predicate, &t.Object, &t.Description, &t.Weight, &t.DocumentID, &t.SourceIDs); err != nil {
			return nil, fmt.Errorf("failed to scan triple: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// embeddingValue maps an embedding slice to a pgvector value, keeping NULL
// for records that have not been embedded yet.
func embeddingValue(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
