package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const validExtractionReply = `("entity"$$$$RADIO CITY$$$$ORGANIZATION$$$$India's first private FM radio station.)
("entity"$$$$INDIA$$$$LOCATION$$$$A country in South Asia.)
("relationship"$$$$RADIO CITY$$$$INDIA$$$$located in$$$$Radio City operates in India.$$$$0.8)`

func TestExtractDocumentRetriesMalformedReplies(t *testing.T) {
	malformed := strings.Repeat("this reply decodes to nothing at all. ", 8)

	aiClient := &fakeAI{}
	aiClient.completeFn = func(prompt string) (string, error) {
		if aiClient.calls() < 3 {
			return malformed, nil
		}
		return validExtractionReply, nil
	}

	g := NewGraphClient(GraphClientParams{
		BatchSize:     1,
		MaxRetries:    3,
		RetryDelaySec: -1,
	})

	chunks := testChunks("doc-1", "some text")
	var results []ExtractionResult
	for r := range g.ExtractDocument(context.Background(), "doc-1", chunks, aiClient) {
		results = append(results, r)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("batch error = %v, want nil after retries", res.Err)
	}
	if got := len(res.Extraction.Entities); got != 2 {
		t.Errorf("got %d entities, want 2", got)
	}
	if got := len(res.Extraction.Triples); got != 1 {
		t.Errorf("got %d triples, want 1", got)
	}
	if aiClient.calls() != 3 {
		t.Errorf("got %d completion calls, want 3", aiClient.calls())
	}
}

func TestExtractDocumentGivesUpWithEmptyExtraction(t *testing.T) {
	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return "", errors.New("transport down")
		},
	}

	g := NewGraphClient(GraphClientParams{
		BatchSize:     1,
		MaxRetries:    2,
		RetryDelaySec: -1,
	})

	chunks := testChunks("doc-1", "some text")
	var results []ExtractionResult
	for r := range g.ExtractDocument(context.Background(), "doc-1", chunks, aiClient) {
		results = append(results, r)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Err == nil {
		t.Fatal("expected error after final attempt")
	}
	if res.Extraction == nil {
		t.Fatal("expected degraded empty extraction, got nil")
	}
	if len(res.Extraction.Entities) != 0 || len(res.Extraction.Triples) != 0 {
		t.Errorf("expected empty extraction, got %d entities, %d triples",
			len(res.Extraction.Entities), len(res.Extraction.Triples))
	}
	if res.Extraction.DocumentID != "doc-1" {
		t.Errorf("got document id %q, want doc-1", res.Extraction.DocumentID)
	}
}

func TestExtractDocumentRetriesRelationshipOnlyReplies(t *testing.T) {
	relationshipOnly := `("relationship"$$$$A$$$$B$$$$related to$$$$` +
		strings.Repeat("endpoints that were never extracted as entities. ", 4) + `$$$$0.5)`

	aiClient := &fakeAI{}
	aiClient.completeFn = func(prompt string) (string, error) {
		if aiClient.calls() < 2 {
			return relationshipOnly, nil
		}
		return validExtractionReply, nil
	}

	g := NewGraphClient(GraphClientParams{
		BatchSize:     1,
		MaxRetries:    2,
		RetryDelaySec: -1,
	})

	var results []ExtractionResult
	for r := range g.ExtractDocument(context.Background(), "doc-1", testChunks("doc-1", "some text"), aiClient) {
		results = append(results, r)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("batch error = %v, want nil after retry", res.Err)
	}
	if got := len(res.Extraction.Entities); got != 2 {
		t.Errorf("got %d entities, want 2", got)
	}
	if aiClient.calls() != 2 {
		t.Errorf("got %d completion calls, want 2 (entity-less reply must trigger a retry)", aiClient.calls())
	}
}

func TestExtractDocumentRelationshipOnlyRepliesGiveUpWithError(t *testing.T) {
	relationshipOnly := `("relationship"$$$$A$$$$B$$$$related to$$$$` +
		strings.Repeat("endpoints that were never extracted as entities. ", 4) + `$$$$0.5)`

	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return relationshipOnly, nil
		},
	}

	g := NewGraphClient(GraphClientParams{BatchSize: 1, MaxRetries: 2, RetryDelaySec: -1})

	var results []ExtractionResult
	for r := range g.ExtractDocument(context.Background(), "doc-1", testChunks("doc-1", "text"), aiClient) {
		results = append(results, r)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if !errors.Is(results[0].Err, ErrMalformedReply) {
		t.Errorf("got err = %v, want ErrMalformedReply after final attempt", results[0].Err)
	}
	if aiClient.calls() != 2 {
		t.Errorf("got %d completion calls, want 2", aiClient.calls())
	}
}

func TestExtractDocumentClosesChannelWhenConsumerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return validExtractionReply, nil
		},
	}
	g := NewGraphClient(GraphClientParams{
		BatchSize:       1,
		MaxRetries:      1,
		RetryDelaySec:   -1,
		ParallelBatches: 2,
	})

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = "text"
	}
	ch := g.ExtractDocument(ctx, "doc-1", testChunks("doc-1", texts...), aiClient)

	<-ch
	cancel()

	// Workers must not stay blocked on the abandoned channel.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("result channel did not close after cancellation")
		}
	}
}

func TestExtractDocumentDropsDanglingRelationships(t *testing.T) {
	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return `("entity"$$$$A$$$$CONCEPT$$$$First.)
("relationship"$$$$A$$$$GHOST$$$$related to$$$$A and an entity never extracted.$$$$0.5)`, nil
		},
	}

	g := NewGraphClient(GraphClientParams{BatchSize: 1, MaxRetries: 1, RetryDelaySec: -1})

	chunks := testChunks("doc-1", "text")
	var results []ExtractionResult
	for r := range g.ExtractDocument(context.Background(), "doc-1", chunks, aiClient) {
		results = append(results, r)
	}

	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
	if got := len(results[0].Extraction.Triples); got != 0 {
		t.Errorf("got %d triples, want 0 for dangling endpoints", got)
	}
}

func TestBatchChunks(t *testing.T) {
	chunks := append(testChunks("d", "a"), testChunks("d", "b", "c")...)

	batches := batchChunks(chunks, 2)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Errorf("unexpected batch sizes: %d, %d", len(batches[0]), len(batches[1]))
	}
}
