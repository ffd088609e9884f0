package store

import (
	"context"

	"github.com/graphfold/graphfold/pkg/common"
)

// Table names understood by GraphStorage implementations. Document-scoped
// entities live in a separate table from the deduplicated collection-scoped
// ones so that the raw extraction output survives re-deduplication.
const (
	EntityTableDocument   = "document_entity"
	EntityTableCollection = "collection_entity"
	TripleTable           = "triple"
)

// CommunityAssignment records one node's cluster membership at one level of
// a hierarchical partition, as returned by the clustering service.
type CommunityAssignment struct {
	Node    string `json:"node"`
	Cluster int    `json:"cluster"`
	Level   int    `json:"level"`
}

// GraphStorage is the persistence provider for the knowledge graph pipeline.
// It is the single writer of record; pipeline stages only propose additions
// and merges. All writes are idempotent upserts on their natural key
// ((name, scope) for entities, id for triples and communities), so
// concurrent writers from the same stage never need a lock.
type GraphStorage interface {
	AddEntities(ctx context.Context, entities []common.Entity, table string) error
	AddTriples(ctx context.Context, triples []common.Triple, table string) error

	// GetEntitiesByDocument returns a document's entities grouped by name.
	GetEntitiesByDocument(ctx context.Context, documentID string) (map[string][]common.Entity, error)
	GetTriplesByDocument(ctx context.Context, documentID string) ([]common.Triple, error)

	// GetEntities returns the collection-scoped (deduplicated) entities.
	GetEntities(ctx context.Context, collectionID string) ([]common.Entity, error)
	GetTriples(ctx context.Context, collectionID string) ([]common.Triple, error)

	// AddCommunityAssignments replaces the collection's node-to-community
	// assignments with the given partition.
	AddCommunityAssignments(ctx context.Context, collectionID string, assignments []CommunityAssignment) error
	GetCommunityMembers(ctx context.Context, collectionID string, level int, cluster int) ([]common.Entity, []common.Triple, error)

	UpsertCommunity(ctx context.Context, community common.Community) error
	// DeleteCommunities removes all of a collection's communities and
	// assignments as a unit, ahead of a re-clustering run.
	DeleteCommunities(ctx context.Context, collectionID string) error
}
