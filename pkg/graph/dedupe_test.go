package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/graphfold/graphfold/pkg/common"
	"github.com/graphfold/graphfold/pkg/store/memory"
)

func TestDedupeRawEntitiesByName(t *testing.T) {
	entities := []common.Entity{
		{ID: "1", Name: "ACME", Category: "ORGANIZATION", Description: "A company.", DocumentID: "d1", SourceIDs: []string{"c1"}, Attributes: map[string]string{"lang": "en"}},
		{ID: "2", Name: "ACME", Description: "Maker of anvils.", DocumentID: "d2", SourceIDs: []string{"c2", "c3"}, Attributes: map[string]string{"lang": "de", "region": "eu"}},
		{ID: "3", Name: "acme", Category: "CONCEPT", Description: "Lowercase is a different name.", DocumentID: "d1", SourceIDs: []string{"c1"}},
	}

	deduped, variants, err := DedupeRawEntities(entities, DedupeByName)
	if err != nil {
		t.Fatalf("DedupeRawEntities() error = %v", err)
	}

	if len(deduped) != 2 {
		t.Fatalf("got %d entities, want 2 (matching is case-sensitive)", len(deduped))
	}

	acme := deduped[0]
	if acme.Name != "ACME" {
		t.Fatalf("expected first-appearance order, got %q first", acme.Name)
	}
	if acme.Category != "ORGANIZATION" {
		t.Errorf("got category %q, want first non-empty ORGANIZATION", acme.Category)
	}

	// Union monotonicity: the merged source ids cover every contributor.
	for _, contributor := range entities[:2] {
		for _, id := range contributor.SourceIDs {
			found := false
			for _, got := range acme.SourceIDs {
				if got == id {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("source id %q from contributor missing in merged entity", id)
			}
		}
	}

	if len(acme.DocumentIDs) != 2 {
		t.Errorf("got document ids %v, want union of d1, d2", acme.DocumentIDs)
	}
	if acme.Attributes["lang"] != "en" || acme.Attributes["region"] != "eu" {
		t.Errorf("unexpected attribute union: %v", acme.Attributes)
	}

	if got := variants["ACME"]; len(got) != 2 || got[0] != "A company." {
		t.Errorf("unexpected variants in input order: %v", got)
	}
}

func TestDedupeRawEntitiesIdempotent(t *testing.T) {
	entities := []common.Entity{
		{ID: "1", Name: "A", Description: "one", DocumentID: "d1", SourceIDs: []string{"c1"}},
		{ID: "2", Name: "B", Description: "two", DocumentID: "d1", SourceIDs: []string{"c2"}},
		{ID: "3", Name: "A", Description: "three", DocumentID: "d2", SourceIDs: []string{"c3"}},
	}

	once, _, err := DedupeRawEntities(entities, DedupeByName)
	if err != nil {
		t.Fatalf("first pass error = %v", err)
	}
	twice, _, err := DedupeRawEntities(once, DedupeByName)
	if err != nil {
		t.Fatalf("second pass error = %v", err)
	}

	if len(once) != len(twice) {
		t.Fatalf("entity count changed on re-run: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Name != twice[i].Name {
			t.Errorf("entity order changed on re-run: %q vs %q", once[i].Name, twice[i].Name)
		}
		if len(once[i].SourceIDs) != len(twice[i].SourceIDs) {
			t.Errorf("source ids changed on re-run for %q", once[i].Name)
		}
	}
}

func TestDedupeRawEntitiesUnknownStrategy(t *testing.T) {
	_, _, err := DedupeRawEntities(nil, DedupeStrategy("fuzzy"))
	if !errors.Is(err, ErrStrategyNotImplemented) {
		t.Errorf("got err = %v, want ErrStrategyNotImplemented", err)
	}
}

func TestMergeDescriptionsThreshold(t *testing.T) {
	g := NewGraphClient(GraphClientParams{MergeThreshold: 5, MergeCharBudget: 100})

	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return "$$merged by llm$$", nil
		},
	}

	// At or below the threshold: verbatim newline join, no LLM call.
	variants := []string{"first", "second", "third"}
	got, err := g.mergeDescriptions(context.Background(), "A", variants, aiClient)
	if err != nil {
		t.Fatalf("mergeDescriptions() error = %v", err)
	}
	if want := "first\nsecond\nthird"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if aiClient.calls() != 0 {
		t.Errorf("got %d LLM calls, want 0 below threshold", aiClient.calls())
	}

	// Above the threshold: one LLM call, input within the character budget.
	var captured string
	aiClient.completeFn = func(prompt string) (string, error) {
		captured = prompt
		return "$$merged by llm$$", nil
	}
	many := make([]string, 8)
	for i := range many {
		many[i] = strings.Repeat(fmt.Sprintf("v%d-", i), 10)
	}
	got, err = g.mergeDescriptions(context.Background(), "A", many, aiClient)
	if err != nil {
		t.Fatalf("mergeDescriptions() error = %v", err)
	}
	if got != "merged by llm" {
		t.Errorf("got %q, want extracted text between $$ markers", got)
	}
	if aiClient.calls() != 1 {
		t.Errorf("got %d LLM calls, want 1 above threshold", aiClient.calls())
	}
	for _, v := range many[3:] {
		if strings.Contains(captured, v) {
			t.Errorf("variant %q should have been cut by the character budget", v)
		}
	}
}

func TestMergeDescriptionsKeepsRawReplyWithoutMarkers(t *testing.T) {
	g := NewGraphClient(GraphClientParams{MergeThreshold: 1})

	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			return "a reply without any markers", nil
		},
	}

	got, err := g.mergeDescriptions(context.Background(), "A", []string{"one", "two"}, aiClient)
	if err != nil {
		t.Fatalf("mergeDescriptions() error = %v", err)
	}
	if got != "a reply without any markers" {
		t.Errorf("got %q, want degraded raw reply", got)
	}
}

func TestMergeEntityDescriptionsBatchFlush(t *testing.T) {
	const total = 70

	entities := make([]common.Entity, 0, total)
	variants := make(map[string][]string, total)
	for i := 0; i < total; i++ {
		name := fmt.Sprintf("entity-%03d", i)
		entities = append(entities, common.Entity{Name: name})
		variants[name] = []string{fmt.Sprintf("description of %s", name)}
	}

	aiClient := &fakeAI{}
	storeClient := memory.NewGraphMemoryStorage()
	g := NewGraphClient(GraphClientParams{
		FlushSize:      32,
		MergeThreshold: 5,
		Capabilities:   capsWithEmbeddings(),
	})

	succeeded, failed, err := g.MergeEntityDescriptions(context.Background(), "coll-1", entities, variants, aiClient, storeClient)
	if err != nil {
		t.Fatalf("MergeEntityDescriptions() error = %v", err)
	}
	if succeeded != total || failed != 0 {
		t.Fatalf("got succeeded=%d failed=%d, want %d and 0", succeeded, failed, total)
	}

	// ceil(70/32) = 3 embedding calls with group sizes 32, 32, 6.
	if len(aiClient.embedBatches) != 3 {
		t.Fatalf("got %d embedding calls, want 3", len(aiClient.embedBatches))
	}
	wantSizes := []int{32, 32, 6}
	idx := 0
	for b, batch := range aiClient.embedBatches {
		if len(batch) != wantSizes[b] {
			t.Errorf("batch %d has %d inputs, want %d", b, len(batch), wantSizes[b])
		}
		for _, input := range batch {
			want := fmt.Sprintf("description of %s", entities[idx].Name)
			if input != want {
				t.Errorf("batch %d input %q, want %q (order must be preserved)", b, input, want)
			}
			idx++
		}
	}

	stored, err := storeClient.GetEntities(context.Background(), "coll-1")
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(stored) != total {
		t.Errorf("got %d stored entities, want %d", len(stored), total)
	}
	for _, e := range stored {
		if e.CollectionID != "coll-1" {
			t.Errorf("entity %q missing collection id", e.Name)
		}
		if len(e.DescriptionEmbedding) == 0 {
			t.Errorf("entity %q missing embedding", e.Name)
		}
	}
}
