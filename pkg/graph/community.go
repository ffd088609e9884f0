package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/store"

	"golang.org/x/sync/errgroup"
)

// SummaryReport counts community summarization outcomes. Skipped
// communities had no member entities or no member relationships; skipping
// is not a failure.
type SummaryReport struct {
	Succeeded int
	Failed    int
	Skipped   int
}

type communityReport struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
}

// SummarizeCommunities generates and persists one summary per community in
// the partition. Communities run as concurrent tasks; a single community's
// failure never cancels the others.
func (g *GraphClient) SummarizeCommunities(
	ctx context.Context,
	runID string,
	collectionID string,
	assignments []store.CommunityAssignment,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) (*SummaryReport, error) {
	type communityKey struct {
		level   int
		cluster int
	}

	seen := make(map[communityKey]bool)
	keys := make([]communityKey, 0)
	for _, a := range assignments {
		k := communityKey{level: a.Level, cluster: a.Cluster}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return keys[i].cluster < keys[j].cluster
	})

	report := &SummaryReport{}
	var mu sync.Mutex

	eg := errgroup.Group{}
	eg.SetLimit(g.parallelCommunities)

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		k := key
		eg.Go(func() error {
			written, err := g.summarizeCommunity(ctx, runID, collectionID, k.level, k.cluster, aiClient, storeClient)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				logger.Error("[Community] Summarization failed", "collection", collectionID, "level", k.level, "cluster", k.cluster, "err", err)
				report.Failed++
			case !written:
				report.Skipped++
			default:
				report.Succeeded++
			}
			return nil
		})
	}
	eg.Wait()

	logger.Info("[Community] Summarization completed",
		"collection", collectionID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// summarizeCommunity builds and persists one community summary. Returns
// false without error when the community has no entities or no
// relationships to report on.
func (g *GraphClient) summarizeCommunity(
	ctx context.Context,
	runID string,
	collectionID string,
	level int,
	cluster int,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) (bool, error) {
	entities, triples, err := storeClient.GetCommunityMembers(ctx, collectionID, level, cluster)
	if err != nil {
		return false, fmt.Errorf("failed to load community members: %w", err)
	}
	if len(entities) == 0 || len(triples) == 0 {
		return false, nil
	}

	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "%s, %s\n", e.Name, e.Description)
	}
	b.WriteString("\nRelationships:\n")
	for _, t := range triples {
		fmt.Fprintf(&b, "%s, %s, %s, %s\n", t.Subject, t.Object, t.Predicate, t.Description)
	}

	data := b.String()
	if len(data) > g.maxSummaryInputLen {
		data = data[:g.maxSummaryInputLen]
	}

	summary, err := aiClient.GenerateCompletion(ctx, fmt.Sprintf(ai.CommunityReportPrompt, data))
	if err != nil {
		return false, fmt.Errorf("completion failed: %w", err)
	}

	// The reply should be JSON with at least a title; a parse failure
	// degrades to an empty title and the community is persisted anyway.
	var parsed communityReport
	if err := ai.UnmarshalFlexible(summary, &parsed); err != nil {
		logger.Warn("[Community] Summary is not valid JSON, keeping raw text", "collection", collectionID, "level", level, "cluster", cluster)
		parsed.Title = ""
	}

	var embedding []float32
	if g.caps.Embeddings {
		embedding, err = aiClient.GenerateEmbedding(ctx, []byte(summary))
		if err != nil {
			logger.Error("[Community] Embedding failed, persisting without embedding", "collection", collectionID, "level", level, "cluster", cluster, "err", err)
			embedding = nil
		}
	}

	community := common.Community{
		ID:               fmt.Sprintf("%s-%d-%d", runID, level, cluster),
		Level:            level,
		CollectionID:     collectionID,
		Summary:          summary,
		SummaryEmbedding: embedding,
	}
	if err := storeClient.UpsertCommunity(ctx, community); err != nil {
		return false, fmt.Errorf("failed to persist community: %w", err)
	}

	logger.Debug("[Community] Persisted community", "id", community.ID, "title", parsed.Title)
	return true, nil
}
