package common

// Entity represents a named node in the extracted knowledge graph. An entity
// can be an organization, person, location, or any other relevant concept.
//
// Within a single document the same name may appear on several records (one
// per extraction batch); after collection-level deduplication the name is
// unique within the collection.
type Entity struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	Category             string            `json:"category,omitempty"`
	Description          string            `json:"description,omitempty"`
	DescriptionEmbedding []float32         `json:"description_embedding,omitempty"`
	DocumentID           string            `json:"document_id,omitempty"`
	DocumentIDs          []string          `json:"document_ids,omitempty"`
	CollectionID         string            `json:"collection_id,omitempty"`
	SourceIDs            []string          `json:"source_ids"`
	Attributes           map[string]string `json:"attributes,omitempty"`
}

// Triple represents a directed, weighted, described edge between two entity
// names. Duplicate triples across chunks are kept as distinct edges; the
// clustering stage aggregates them per (subject, object) pair.
type Triple struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Predicate   string   `json:"predicate"`
	Object      string   `json:"object"`
	Description string   `json:"description,omitempty"`
	Weight      float64  `json:"weight"`
	DocumentID  string   `json:"document_id,omitempty"`
	SourceIDs   []string `json:"source_ids"`
}

// Chunk is a contiguous segment of a document's text, identified by the
// chunk id that later appears in entity and triple provenance.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// GraphExtraction is the raw output unit of the extractor for one chunk
// batch, before persistence. It is consumed immediately and never stored
// as its own record.
type GraphExtraction struct {
	DocumentID string   `json:"document_id"`
	SourceIDs  []string `json:"source_ids"`
	Entities   []Entity `json:"entities"`
	Triples    []Triple `json:"triples"`
}

// Community is a set of graph nodes assigned together by hierarchical
// clustering, with a generated textual summary. Level 0 is the finest
// partition; higher levels are coarser merges. Communities are never
// updated in place, only replaced wholesale when a collection is
// re-clustered.
type Community struct {
	ID               string    `json:"id"`
	Level            int       `json:"level"`
	CollectionID     string    `json:"collection_id"`
	Summary          string    `json:"summary"`
	SummaryEmbedding []float32 `json:"summary_embedding,omitempty"`
}

// AddSourceIDs unions ids into the entity's source id set, preserving the
// order of first appearance. The set never shrinks.
func (e *Entity) AddSourceIDs(ids ...string) {
	e.SourceIDs = UnionIDs(e.SourceIDs, ids)
}

// UnionIDs returns base extended with every id from extra that is not
// already present, keeping first-appearance order.
func UnionIDs(base []string, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, id := range base {
		seen[id] = true
	}
	for _, id := range extra {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		base = append(base, id)
	}
	return base
}
