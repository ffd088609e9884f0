// Package graph implements the knowledge graph construction pipeline:
// entity and relationship extraction from text chunks, entity description
// synthesis, collection-level deduplication, community clustering via the
// external clustering service, and community summarization.
package graph

import (
	"github.com/graphfold/graphfold/pkg/ai"
)

type GraphClientParams struct {
	// Extraction
	BatchSize       int
	MaxRetries      int
	RetryDelaySec   int
	MaxTokens       int
	MaxEntities     int
	TokenEncoder    string
	EntityTypes     []string
	RelationTypes   []string
	ParallelBatches int
	Decoder         Decoder

	// Description synthesis
	CharBudget     int
	ParallelGroups int
	ProgressEvery  int

	// Summary dedup
	MergeThreshold  int
	MergeCharBudget int
	FlushSize       int

	// Community summarization
	MaxSummaryInputLen  int
	ParallelCommunities int

	Capabilities ai.Capabilities
}

// GraphClient carries the pipeline configuration. AI, storage and
// clustering clients are passed into the stage methods, so one GraphClient
// can serve many runs with different providers.
type GraphClient struct {
	batchSize       int
	maxRetries      int
	retryDelaySec   int
	maxTokens       int
	maxEntities     int
	tokenEncoder    string
	entityTypes     []string
	relationTypes   []string
	parallelBatches int
	decoder         Decoder

	charBudget     int
	parallelGroups int
	progressEvery  int

	mergeThreshold  int
	mergeCharBudget int
	flushSize       int

	maxSummaryInputLen  int
	parallelCommunities int

	caps ai.Capabilities
}

var defaultEntityTypes = []string{
	"ORGANIZATION", "PERSON", "LOCATION", "CONCEPT",
	"CREATIVE_WORK", "DATE", "PRODUCT", "EVENT",
}

var defaultRelationTypes = []string{
	"related to", "part of", "located in", "works for",
	"created by", "participates in",
}

func NewGraphClient(params GraphClientParams) *GraphClient {
	g := &GraphClient{
		batchSize:           params.BatchSize,
		maxRetries:          params.MaxRetries,
		retryDelaySec:       params.RetryDelaySec,
		maxTokens:           params.MaxTokens,
		maxEntities:         params.MaxEntities,
		tokenEncoder:        params.TokenEncoder,
		entityTypes:         params.EntityTypes,
		relationTypes:       params.RelationTypes,
		parallelBatches:     params.ParallelBatches,
		decoder:             params.Decoder,
		charBudget:          params.CharBudget,
		parallelGroups:      params.ParallelGroups,
		progressEvery:       params.ProgressEvery,
		mergeThreshold:      params.MergeThreshold,
		mergeCharBudget:     params.MergeCharBudget,
		flushSize:           params.FlushSize,
		maxSummaryInputLen:  params.MaxSummaryInputLen,
		parallelCommunities: params.ParallelCommunities,
		caps:                params.Capabilities,
	}

	if g.batchSize <= 0 {
		g.batchSize = 1
	}
	if g.maxRetries <= 0 {
		g.maxRetries = 3
	}
	// Negative means no delay between attempts.
	if g.retryDelaySec < 0 {
		g.retryDelaySec = 0
	} else if g.retryDelaySec == 0 {
		g.retryDelaySec = 2
	}
	if g.maxTokens <= 0 {
		g.maxTokens = 4000
	}
	if g.maxEntities <= 0 {
		g.maxEntities = 50
	}
	if g.tokenEncoder == "" {
		g.tokenEncoder = "cl100k_base"
	}
	if len(g.entityTypes) == 0 {
		g.entityTypes = defaultEntityTypes
	}
	if len(g.relationTypes) == 0 {
		g.relationTypes = defaultRelationTypes
	}
	if g.parallelBatches <= 0 {
		g.parallelBatches = 8
	}
	if g.decoder == nil {
		g.decoder = NewTupleDecoder()
	}
	if g.charBudget <= 0 {
		g.charBudget = 8000
	}
	if g.parallelGroups <= 0 {
		g.parallelGroups = 8
	}
	if g.progressEvery <= 0 {
		g.progressEvery = 25
	}
	if g.mergeThreshold <= 0 {
		g.mergeThreshold = 5
	}
	if g.mergeCharBudget <= 0 {
		g.mergeCharBudget = 8000
	}
	if g.flushSize <= 0 {
		g.flushSize = 32
	}
	if g.maxSummaryInputLen <= 0 {
		g.maxSummaryInputLen = 12000
	}
	if g.parallelCommunities <= 0 {
		g.parallelCommunities = 4
	}

	return g
}
