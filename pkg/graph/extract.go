package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/graphfold/graphfold/internal/util"
	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"
)

// minValidReplyLength separates short but honest "nothing found" replies
// from long replies that yield no entities, which are treated as malformed.
const minValidReplyLength = 128

// ErrMalformedReply marks a reply that was long enough to carry records but
// yielded none.
var ErrMalformedReply = errors.New("reply yielded no entities")

// ExtractionResult is one batch's outcome, streamed in completion order.
// Err is set alongside an empty extraction when the batch gave up after all
// retries; the batch is degraded, never fatal.
type ExtractionResult struct {
	BatchIndex int
	Extraction *common.GraphExtraction
	Err        error
}

// ExtractDocument schedules one extraction task per chunk batch and streams
// results as they complete. Slow batches never block fast ones and a failed
// batch never cancels its siblings; on context cancellation no new batches
// are scheduled.
func (g *GraphClient) ExtractDocument(
	ctx context.Context,
	documentID string,
	chunks []common.Chunk,
	aiClient ai.CompletionClient,
) <-chan ExtractionResult {
	results := make(chan ExtractionResult)
	batches := batchChunks(chunks, g.batchSize)

	go func() {
		defer close(results)

		eg := errgroup.Group{}
		eg.SetLimit(g.parallelBatches)

		for i, batch := range batches {
			if ctx.Err() != nil {
				break
			}
			idx, b := i, batch
			eg.Go(func() error {
				extraction, err := g.extractBatch(ctx, documentID, b, aiClient)
				select {
				case results <- ExtractionResult{
					BatchIndex: idx,
					Extraction: extraction,
					Err:        err,
				}:
				case <-ctx.Done():
				}
				return nil
			})
		}
		eg.Wait()
	}()

	return results
}

// extractBatch runs one prompt for one chunk batch, retrying malformed and
// transport failures with a fixed delay. After the final attempt it returns
// an empty GraphExtraction together with the error.
func (g *GraphClient) extractBatch(
	ctx context.Context,
	documentID string,
	batch []common.Chunk,
	aiClient ai.CompletionClient,
) (*common.GraphExtraction, error) {
	sourceIDs := make([]string, 0, len(batch))
	texts := make([]string, 0, len(batch))
	for _, c := range batch {
		sourceIDs = append(sourceIDs, c.ID)
		texts = append(texts, c.Text)
	}

	text := g.capTokens(strings.Join(texts, "\n\n"))
	systemPrompt := fmt.Sprintf(
		g.decoder.Prompt(),
		strings.Join(g.entityTypes, ","),
		strings.Join(g.relationTypes, ","),
		g.maxEntities,
	)

	decoded, err := util.RetryDelayWithContext(
		ctx,
		g.maxRetries,
		time.Second*time.Duration(g.retryDelaySec),
		func(ctx context.Context) (*Decoded, error) {
			reply, err := aiClient.GenerateCompletion(ctx, text, ai.WithSystemPrompts(systemPrompt))
			if err != nil {
				return nil, err
			}

			decoded, err := g.decoder.Decode(reply)
			if err != nil || len(decoded.Entities) == 0 {
				// Relationship-only replies count as malformed too: without
				// entities every relationship endpoint dangles.
				if len(strings.TrimSpace(reply)) >= minValidReplyLength {
					return nil, fmt.Errorf("%w: %d chars via %s decoder", ErrMalformedReply, len(reply), g.decoder.Name())
				}
				// Short reply with nothing usable in it, take it at face value.
				return &Decoded{}, nil
			}
			return decoded, nil
		},
	)

	extraction := &common.GraphExtraction{
		DocumentID: documentID,
		SourceIDs:  sourceIDs,
	}
	if err != nil {
		return extraction, err
	}

	entities := decoded.Entities
	if len(entities) > g.maxEntities {
		entities = entities[:g.maxEntities]
	}

	names := make(map[string]bool, len(entities))
	for _, de := range entities {
		id, err := gonanoid.New()
		if err != nil {
			return extraction, fmt.Errorf("failed to generate entity id: %w", err)
		}
		names[de.Name] = true
		extraction.Entities = append(extraction.Entities, common.Entity{
			ID:          id,
			Name:        de.Name,
			Category:    de.Category,
			Description: de.Description,
			DocumentID:  documentID,
			SourceIDs:   sourceIDs,
		})
	}

	for _, dr := range decoded.Relationships {
		if !names[dr.Subject] || !names[dr.Object] {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return extraction, fmt.Errorf("failed to generate triple id: %w", err)
		}
		extraction.Triples = append(extraction.Triples, common.Triple{
			ID:          id,
			Subject:     dr.Subject,
			Predicate:   dr.Predicate,
			Object:      dr.Object,
			Description: dr.Description,
			Weight:      dr.Weight,
			DocumentID:  documentID,
			SourceIDs:   sourceIDs,
		})
	}

	return extraction, nil
}

// capTokens truncates text to the configured token budget. When the encoder
// cannot be loaded the text passes through uncut.
func (g *GraphClient) capTokens(text string) string {
	enc, err := tiktoken.GetEncoding(g.tokenEncoder)
	if err != nil {
		logger.Warn("[Graph] Failed to load token encoder, skipping token cap", "encoder", g.tokenEncoder, "err", err)
		return text
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= g.maxTokens {
		return text
	}
	return enc.Decode(tokens[:g.maxTokens])
}

func batchChunks(chunks []common.Chunk, size int) [][]common.Chunk {
	if size <= 0 {
		size = 1
	}
	var out [][]common.Chunk
	for i := 0; i < len(chunks); i += size {
		out = append(out, chunks[i:util.Min(i+size, len(chunks))])
	}
	return out
}
