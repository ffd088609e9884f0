package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/graphfold/graphfold/internal/util"
	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/store"

	"golang.org/x/sync/errgroup"
)

// ErrStrategyNotImplemented is returned for any deduplication strategy
// other than exact-name grouping. Unsupported strategies fail fast instead
// of silently falling back.
var ErrStrategyNotImplemented = errors.New("deduplication strategy not implemented")

// DedupeStrategy selects how document-scoped entities are grouped into
// collection-scoped ones.
type DedupeStrategy string

const DedupeByName DedupeStrategy = "by-name"

// DedupeRawEntities merges a collection's document-scoped entities into one
// entity per distinct name: strict case-sensitive name equality, union of
// source ids, document ids and attributes. It also collects each name's
// pre-merge description variants, in input order, for the summary stage.
// Synthesized per-document records contribute their unions but not their
// description, which already aggregates the fragment mentions.
//
// This is a deterministic, LLM-free pure function.
func DedupeRawEntities(entities []common.Entity, strategy DedupeStrategy) ([]common.Entity, map[string][]string, error) {
	if strategy != DedupeByName {
		return nil, nil, fmt.Errorf("%w: %q", ErrStrategyNotImplemented, strategy)
	}

	order := make([]string, 0)
	byName := make(map[string]*common.Entity)
	variants := make(map[string][]string)

	for _, e := range entities {
		merged, ok := byName[e.Name]
		if !ok {
			merged = &common.Entity{Name: e.Name}
			byName[e.Name] = merged
			order = append(order, e.Name)
		}

		if merged.Category == "" {
			merged.Category = e.Category
		}
		merged.AddSourceIDs(e.SourceIDs...)
		merged.DocumentIDs = common.UnionIDs(merged.DocumentIDs, append([]string{e.DocumentID}, e.DocumentIDs...))
		for k, v := range e.Attributes {
			if merged.Attributes == nil {
				merged.Attributes = make(map[string]string)
			}
			if _, exists := merged.Attributes[k]; !exists {
				merged.Attributes[k] = v
			}
		}

		if e.Description != "" && e.ID != mergedEntityID(e.DocumentID, e.Name) {
			variants[e.Name] = append(variants[e.Name], e.Description)
		}
	}

	out := make([]common.Entity, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, variants, nil
}

// MergeEntityDescriptions produces each collection-scoped entity's final
// description from its variants and persists the result. Merge tasks
// accumulate into groups of the configured flush size; each full or final
// partial group is awaited concurrently, embedded in one batched call and
// persisted as a batch, which bounds peak provider concurrency.
func (g *GraphClient) MergeEntityDescriptions(
	ctx context.Context,
	collectionID string,
	entities []common.Entity,
	variants map[string][]string,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) (int, int, error) {
	succeeded, failed := 0, 0

	for start := 0; start < len(entities); start += g.flushSize {
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}
		end := util.Min(start+g.flushSize, len(entities))
		s, f := g.flushMergeGroup(ctx, collectionID, entities[start:end], variants, aiClient, storeClient)
		succeeded += s
		failed += f
	}

	logger.Info("[Dedupe] Description merge completed", "collection", collectionID, "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

func (g *GraphClient) flushMergeGroup(
	ctx context.Context,
	collectionID string,
	group []common.Entity,
	variants map[string][]string,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) (int, int) {
	type mergeOutcome struct {
		description string
		err         error
	}
	outcomes := make([]mergeOutcome, len(group))

	eg := errgroup.Group{}
	for i := range group {
		idx := i
		eg.Go(func() error {
			desc, err := g.mergeDescriptions(ctx, group[idx].Name, variants[group[idx].Name], aiClient)
			outcomes[idx] = mergeOutcome{description: desc, err: err}
			return nil
		})
	}
	eg.Wait()

	// One batched embedding call per flush group; index i of the response
	// corresponds to group[i].
	var embeddings [][]float32
	if g.caps.Embeddings {
		inputs := make([][]byte, len(group))
		for i := range group {
			inputs[i] = []byte(outcomes[i].description)
		}
		var err error
		embeddings, err = aiClient.GenerateEmbeddings(ctx, inputs)
		if err != nil {
			logger.Error("[Dedupe] Batch embedding failed, persisting without embeddings", "collection", collectionID, "err", err)
			embeddings = nil
		}
	}

	batch := make([]common.Entity, 0, len(group))
	failed := 0
	for i, e := range group {
		if outcomes[i].err != nil {
			logger.Error("[Dedupe] Description merge failed", "entity", e.Name, "err", outcomes[i].err)
			failed++
			continue
		}
		e.CollectionID = collectionID
		e.Description = outcomes[i].description
		if embeddings != nil {
			e.DescriptionEmbedding = embeddings[i]
		}
		batch = append(batch, e)
	}

	if len(batch) > 0 {
		if err := storeClient.AddEntities(ctx, batch, store.EntityTableCollection); err != nil {
			logger.Error("[Dedupe] Failed to persist entity batch", "collection", collectionID, "count", len(batch), "err", err)
			return 0, failed + len(batch)
		}
	}
	return len(batch), failed
}

// mergeDescriptions resolves one name's final description. At or below the
// threshold the variants are joined verbatim in input order; above it the
// variant list is truncated to the character budget and consolidated with
// one LLM call, reading the reply between the first pair of $$ markers.
func (g *GraphClient) mergeDescriptions(
	ctx context.Context,
	name string,
	variants []string,
	aiClient ai.CompletionClient,
) (string, error) {
	if len(variants) <= g.mergeThreshold {
		return strings.Join(variants, "\n"), nil
	}

	packed := make([]string, 0, len(variants))
	total := 0
	for _, v := range variants {
		if total+len(v)+1 > g.mergeCharBudget {
			break
		}
		packed = append(packed, v)
		total += len(v) + 1
	}

	prompt := fmt.Sprintf(ai.MergeDescriptionsPrompt, name, strings.Join(packed, "\n"))
	reply, err := aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	merged, ok := extractDelimited(reply)
	if !ok {
		logger.Error("[Dedupe] Failed to extract merged description, keeping raw reply", "entity", name)
		return strings.TrimSpace(reply), nil
	}
	return merged, nil
}

// extractDelimited returns the text between the first pair of $$ markers.
func extractDelimited(reply string) (string, bool) {
	parts := strings.SplitN(reply, "$$", 3)
	if len(parts) < 3 {
		return "", false
	}
	text := strings.TrimSpace(parts[1])
	if text == "" {
		return "", false
	}
	return text, true
}
