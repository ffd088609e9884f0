package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/store"
)

// GraphMemoryStorage implements store.GraphStorage with in-process maps.
// It is used in tests and local single-node runs; semantics match the
// pgx implementation (idempotent upserts on natural keys).
type GraphMemoryStorage struct {
	mu sync.Mutex

	documentEntities   map[string]common.Entity // key: document id + name + record id
	collectionEntities map[string]common.Entity // key: collection id + name
	triples            map[string]common.Triple // key: triple id
	assignments        map[string][]store.CommunityAssignment
	communities        map[string]common.Community // key: community id
}

// NewGraphMemoryStorage creates an empty in-memory graph store.
func NewGraphMemoryStorage() *GraphMemoryStorage {
	return &GraphMemoryStorage{
		documentEntities:   make(map[string]common.Entity),
		collectionEntities: make(map[string]common.Entity),
		triples:            make(map[string]common.Triple),
		assignments:        make(map[string][]store.CommunityAssignment),
		communities:        make(map[string]common.Community),
	}
}

func (s *GraphMemoryStorage) AddEntities(ctx context.Context, entities []common.Entity, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch table {
	case store.EntityTableDocument:
		for _, e := range entities {
			s.documentEntities[e.DocumentID+"|"+e.Name+"|"+e.ID] = e
		}
	case store.EntityTableCollection:
		for _, e := range entities {
			s.collectionEntities[e.CollectionID+"|"+e.Name] = e
		}
	default:
		return fmt.Errorf("unknown entity table %q", table)
	}
	return nil
}

func (s *GraphMemoryStorage) AddTriples(ctx context.Context, triples []common.Triple, table string) error {
	if table != store.TripleTable {
		return fmt.Errorf("unknown triple table %q", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range triples {
		s.triples[t.ID] = t
	}
	return nil
}

func (s *GraphMemoryStorage) GetEntitiesByDocument(ctx context.Context, documentID string) (map[string][]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grouped := make(map[string][]common.Entity)
	for _, e := range s.documentEntities {
		if e.DocumentID == documentID {
			grouped[e.Name] = append(grouped[e.Name], e)
		}
	}
	return grouped, nil
}

func (s *GraphMemoryStorage) GetTriplesByDocument(ctx context.Context, documentID string) ([]common.Triple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Triple
	for _, t := range s.triples {
		if t.DocumentID == documentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *GraphMemoryStorage) GetEntities(ctx context.Context, collectionID string) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Entity
	for _, e := range s.collectionEntities {
		if e.CollectionID == collectionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *GraphMemoryStorage) GetTriples(ctx context.Context, collectionID string) ([]common.Triple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Triple
	for _, t := range s.triples {
		if _, ok := s.collectionEntities[collectionID+"|"+t.Subject]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *GraphMemoryStorage) AddCommunityAssignments(ctx context.Context, collectionID string, assignments []store.CommunityAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[collectionID] = append([]store.CommunityAssignment(nil), assignments...)
	return nil
}

func (s *GraphMemoryStorage) GetCommunityMembers(ctx context.Context, collectionID string, level int, cluster int) ([]common.Entity, []common.Triple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make(map[string]bool)
	for _, a := range s.assignments[collectionID] {
		if a.Level == level && a.Cluster == cluster {
			members[a.Node] = true
		}
	}

	var entities []common.Entity
	for _, e := range s.collectionEntities {
		if e.CollectionID == collectionID && members[e.Name] {
			entities = append(entities, e)
		}
	}

	var triples []common.Triple
	for _, t := range s.triples {
		if members[t.Subject] && members[t.Object] {
			triples = append(triples, t)
		}
	}
	return entities, triples, nil
}

func (s *GraphMemoryStorage) UpsertCommunity(ctx context.Context, community common.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.communities[community.ID] = community
	return nil
}

func (s *GraphMemoryStorage) DeleteCommunities(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.communities {
		if c.CollectionID == collectionID {
			delete(s.communities, id)
		}
	}
	delete(s.assignments, collectionID)
	return nil
}

// Communities returns all stored communities for a collection. Test helper.
func (s *GraphMemoryStorage) Communities(collectionID string) []common.Community {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []common.Community
	for _, c := range s.communities {
		if c.CollectionID == collectionID {
			out = append(out, c)
		}
	}
	return out
}
