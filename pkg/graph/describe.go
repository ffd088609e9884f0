package graph

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/store"

	"golang.org/x/sync/errgroup"
)

// DescribeStatus is the outcome of one name-group in description synthesis.
type DescribeStatus int

const (
	// StatusSynthesized: description generated, embedded and persisted.
	StatusSynthesized DescribeStatus = iota
	// StatusKept: the group already had a synthesized description; persisted
	// unchanged without an LLM call.
	StatusKept
	// StatusEmbedFailed: the LLM call succeeded but embedding failed; the
	// entity was persisted without an embedding.
	StatusEmbedFailed
	// StatusFailed: LLM call or persistence failed, nothing was written.
	StatusFailed
)

func (s DescribeStatus) String() string {
	switch s {
	case StatusSynthesized:
		return "synthesized"
	case StatusKept:
		return "kept"
	case StatusEmbedFailed:
		return "embed_failed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DescribeResult reports one name-group's outcome.
type DescribeResult struct {
	Name   string
	Status DescribeStatus
	Err    error
}

// mergedEntityID is the deterministic id of the one synthesized entity
// record per (document, name). Re-running the stage upserts the same row.
func mergedEntityID(documentID string, name string) string {
	return documentID + "::" + name
}

// SynthesizeDescriptions merges each name-group of a document's entities
// into one described, embedded entity record. Groups run as concurrent
// tasks; one group's failure never aborts the others, and results are
// collected in completion order.
func (g *GraphClient) SynthesizeDescriptions(
	ctx context.Context,
	documentID string,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) ([]DescribeResult, error) {
	grouped, err := storeClient.GetEntitiesByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document entities: %w", err)
	}
	triples, err := storeClient.GetTriplesByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document triples: %w", err)
	}

	triplesByName := make(map[string][]common.Triple)
	for _, t := range triples {
		triplesByName[t.Subject] = append(triplesByName[t.Subject], t)
		if t.Object != t.Subject {
			triplesByName[t.Object] = append(triplesByName[t.Object], t)
		}
	}

	resCh := make(chan DescribeResult)
	go func() {
		defer close(resCh)

		eg := errgroup.Group{}
		eg.SetLimit(g.parallelGroups)

		for name, group := range grouped {
			if ctx.Err() != nil {
				break
			}
			n, grp := name, group
			eg.Go(func() error {
				select {
				case resCh <- g.describeGroup(ctx, documentID, n, grp, triplesByName[n], aiClient, storeClient):
				case <-ctx.Done():
				}
				return nil
			})
		}
		eg.Wait()
	}()

	results := make([]DescribeResult, 0, len(grouped))
	for r := range resCh {
		results = append(results, r)
		if r.Err != nil {
			logger.Error("[Graph] Description failed", "document", documentID, "entity", r.Name, "status", r.Status.String(), "err", r.Err)
		}
		if len(results)%g.progressEvery == 0 {
			logger.Info("[Graph] Description progress", "document", documentID, "done", len(results), "total", len(grouped))
		}
	}
	return results, nil
}

func (g *GraphClient) describeGroup(
	ctx context.Context,
	documentID string,
	name string,
	group []common.Entity,
	triples []common.Triple,
	aiClient ai.Client,
	storeClient store.GraphStorage,
) DescribeResult {
	mergedID := mergedEntityID(documentID, name)

	for _, e := range group {
		if e.ID == mergedID && e.Description != "" {
			if err := storeClient.AddEntities(ctx, []common.Entity{e}, store.EntityTableDocument); err != nil {
				return DescribeResult{Name: name, Status: StatusFailed, Err: err}
			}
			return DescribeResult{Name: name, Status: StatusKept}
		}
	}

	entityLines := make([]string, 0, len(group))
	for _, e := range group {
		if e.Description != "" {
			entityLines = append(entityLines, fmt.Sprintf("%s, %s", e.Name, e.Description))
		}
	}
	relationLines := make([]string, 0, len(triples))
	for _, t := range triples {
		relationLines = append(relationLines, fmt.Sprintf("%s, %s, %s, %s", t.Subject, t.Object, t.Predicate, t.Description))
	}

	prompt := fmt.Sprintf(
		ai.DescribePrompt,
		name,
		packLines(entityLines, g.charBudget),
		packLines(relationLines, g.charBudget),
	)

	description, err := aiClient.GenerateCompletion(ctx, prompt)
	if err != nil {
		return DescribeResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("completion failed: %w", err)}
	}
	description = strings.TrimSpace(description)

	status := StatusSynthesized
	var embedding []float32
	var embedErr error
	if g.caps.Embeddings {
		embedding, embedErr = aiClient.GenerateEmbedding(ctx, []byte(description))
		if embedErr != nil {
			status = StatusEmbedFailed
			embedding = nil
		}
	}

	merged := common.Entity{
		ID:                   mergedID,
		Name:                 name,
		Category:             firstCategory(group),
		Description:          description,
		DescriptionEmbedding: embedding,
		DocumentID:           documentID,
	}
	for _, e := range group {
		merged.AddSourceIDs(e.SourceIDs...)
	}

	if err := storeClient.AddEntities(ctx, []common.Entity{merged}, store.EntityTableDocument); err != nil {
		return DescribeResult{Name: name, Status: StatusFailed, Err: fmt.Errorf("failed to persist entity: %w", err)}
	}
	return DescribeResult{Name: name, Status: status, Err: embedErr}
}

// packLines shuffles lines and greedily joins them up to the character
// budget, stopping before the first line that would exceed it. Output order
// is deliberately non-deterministic and must not be relied upon.
func packLines(lines []string, budget int) string {
	shuffled := append([]string(nil), lines...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var b strings.Builder
	for _, line := range shuffled {
		if b.Len()+len(line)+1 > budget {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

func firstCategory(group []common.Entity) string {
	for _, e := range group {
		if e.Category != "" {
			return e.Category
		}
	}
	return ""
}
