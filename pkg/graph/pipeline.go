package graph

import (
	"context"
	"fmt"

	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/cluster"
	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ClusterCaller is the clustering service boundary consumed by the
// pipeline. *cluster.Client satisfies it.
type ClusterCaller interface {
	Cluster(ctx context.Context, request *cluster.ClusterRequest) ([]cluster.Assignment, error)
}

// RunContext identifies one pipeline run. It is threaded explicitly through
// every stage; there is no ambient run state.
type RunContext struct {
	RunID        string
	CollectionID string
	LeidenParams cluster.LeidenParams
}

// Document is one unit of pipeline input: a document id and its text
// chunks. Chunking happens upstream.
type Document struct {
	ID     string         `json:"id"`
	Chunks []common.Chunk `json:"chunks"`
}

type StageCounts struct {
	Succeeded int
	Failed    int
}

// DescriptionCounts tallies the synthesizer statuses separately, so an
// embedding failure after a successful LLM call is never mistaken for
// either a clean success or a hard failure.
type DescriptionCounts struct {
	Synthesized int
	Kept        int
	EmbedFailed int
	Failed      int
}

// RunReport summarizes a pipeline run. Partial completion is normal; the
// report carries per-stage counts, not a single pass/fail.
type RunReport struct {
	RunID       string
	Extraction  StageCounts
	Description DescriptionCounts
	Merge       StageCounts
	Communities SummaryReport
}

// Run executes the full pipeline for one collection: extraction,
// description synthesis, raw and summary deduplication, clustering and
// community summarization. Stage order is fixed; a cancelled context stops
// the scheduling of new work promptly while in-flight tasks complete.
func (g *GraphClient) Run(
	ctx context.Context,
	run RunContext,
	documents []Document,
	aiClient ai.Client,
	storeClient store.GraphStorage,
	clusterClient ClusterCaller,
) (*RunReport, error) {
	if run.RunID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate run id: %w", err)
		}
		run.RunID = id
	}
	if run.LeidenParams == (cluster.LeidenParams{}) {
		run.LeidenParams = cluster.DefaultLeidenParams()
	}

	report := &RunReport{RunID: run.RunID}
	logger.Info("[Graph] Starting pipeline run", "run", run.RunID, "collection", run.CollectionID, "documents", len(documents))

	for _, doc := range documents {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		g.extractAndPersist(ctx, doc, aiClient, storeClient, report)
	}

	for _, doc := range documents {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		results, err := g.SynthesizeDescriptions(ctx, doc.ID, aiClient, storeClient)
		if err != nil {
			return report, fmt.Errorf("description synthesis failed for document %s: %w", doc.ID, err)
		}
		for _, r := range results {
			switch r.Status {
			case StatusSynthesized:
				report.Description.Synthesized++
			case StatusKept:
				report.Description.Kept++
			case StatusEmbedFailed:
				report.Description.EmbedFailed++
			case StatusFailed:
				report.Description.Failed++
			}
		}
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	var raw []common.Entity
	for _, doc := range documents {
		grouped, err := storeClient.GetEntitiesByDocument(ctx, doc.ID)
		if err != nil {
			return report, fmt.Errorf("failed to load entities for document %s: %w", doc.ID, err)
		}
		for _, group := range grouped {
			raw = append(raw, group...)
		}
	}

	deduped, variants, err := DedupeRawEntities(raw, DedupeByName)
	if err != nil {
		return report, err
	}
	logger.Info("[Graph] Raw deduplication completed", "run", run.RunID, "raw", len(raw), "deduped", len(deduped))

	succeeded, failed, err := g.MergeEntityDescriptions(ctx, run.CollectionID, deduped, variants, aiClient, storeClient)
	report.Merge.Succeeded = succeeded
	report.Merge.Failed = failed
	if err != nil {
		return report, err
	}

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	assignments, err := g.clusterCollection(ctx, run, storeClient, clusterClient)
	if err != nil {
		return report, err
	}
	if len(assignments) == 0 {
		logger.Warn("[Graph] No communities to summarize", "run", run.RunID, "collection", run.CollectionID)
		return report, nil
	}

	summaryReport, err := g.SummarizeCommunities(ctx, run.RunID, run.CollectionID, assignments, aiClient, storeClient)
	if err != nil {
		return report, err
	}
	report.Communities = *summaryReport

	logger.Info("[Graph] Pipeline run completed", "run", run.RunID, "collection", run.CollectionID)
	return report, nil
}

func (g *GraphClient) extractAndPersist(
	ctx context.Context,
	doc Document,
	aiClient ai.Client,
	storeClient store.GraphStorage,
	report *RunReport,
) {
	for result := range g.ExtractDocument(ctx, doc.ID, doc.Chunks, aiClient) {
		if result.Err != nil {
			logger.Error("[Graph] Extraction batch failed", "document", doc.ID, "batch", result.BatchIndex, "err", result.Err)
			report.Extraction.Failed++
			continue
		}

		extraction := result.Extraction
		if len(extraction.Entities) > 0 {
			if err := storeClient.AddEntities(ctx, extraction.Entities, store.EntityTableDocument); err != nil {
				logger.Error("[Graph] Failed to persist entities", "document", doc.ID, "batch", result.BatchIndex, "err", err)
				report.Extraction.Failed++
				continue
			}
		}
		if len(extraction.Triples) > 0 {
			if err := storeClient.AddTriples(ctx, extraction.Triples, store.TripleTable); err != nil {
				logger.Error("[Graph] Failed to persist triples", "document", doc.ID, "batch", result.BatchIndex, "err", err)
				report.Extraction.Failed++
				continue
			}
		}
		report.Extraction.Succeeded++
	}
}

// clusterCollection ships the collection's weighted edge list to the
// clustering service and replaces the stored partition with the response.
// Prior communities are dropped wholesale before new ones are written.
func (g *GraphClient) clusterCollection(
	ctx context.Context,
	run RunContext,
	storeClient store.GraphStorage,
	clusterClient ClusterCaller,
) ([]store.CommunityAssignment, error) {
	triples, err := storeClient.GetTriples(ctx, run.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection triples: %w", err)
	}
	if len(triples) == 0 {
		logger.Warn("[Graph] No relationships to cluster", "run", run.RunID, "collection", run.CollectionID)
		return nil, nil
	}

	request := &cluster.ClusterRequest{
		Relationships: make([]cluster.Relationship, 0, len(triples)),
		LeidenParams:  run.LeidenParams,
	}
	for _, t := range triples {
		w := t.Weight
		if w < 0 || w > 1 {
			logger.Warn("[Graph] Clamping out-of-range edge weight", "triple", t.ID, "weight", w)
			w = min(max(w, 0), 1)
		}
		request.Relationships = append(request.Relationships, cluster.Relationship{
			ID:      t.ID,
			Subject: t.Subject,
			Object:  t.Object,
			Weight:  w,
		})
	}

	assignments, err := clusterClient.Cluster(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	converted := make([]store.CommunityAssignment, 0, len(assignments))
	for _, a := range assignments {
		converted = append(converted, store.CommunityAssignment{
			Node:    a.Node,
			Cluster: a.Cluster,
			Level:   a.Level,
		})
	}

	if err := storeClient.DeleteCommunities(ctx, run.CollectionID); err != nil {
		return nil, fmt.Errorf("failed to delete prior communities: %w", err)
	}
	if err := storeClient.AddCommunityAssignments(ctx, run.CollectionID, converted); err != nil {
		return nil, fmt.Errorf("failed to persist community assignments: %w", err)
	}

	logger.Info("[Graph] Clustering completed", "run", run.RunID, "collection", run.CollectionID, "assignments", len(converted))
	return converted, nil
}
