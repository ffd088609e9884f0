package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/graphfold/graphfold/pkg/cluster"
	"github.com/graphfold/graphfold/pkg/store/memory"
)

type fakeCluster struct {
	requests []*cluster.ClusterRequest
}

func (f *fakeCluster) Cluster(ctx context.Context, request *cluster.ClusterRequest) ([]cluster.Assignment, error) {
	f.requests = append(f.requests, request)

	nodes := make(map[string]bool)
	var assignments []cluster.Assignment
	for _, rel := range request.Relationships {
		for _, node := range []string{rel.Subject, rel.Object} {
			if !nodes[node] {
				nodes[node] = true
				assignments = append(assignments, cluster.Assignment{Node: node, Cluster: 0, Level: 0})
			}
		}
	}
	return assignments, nil
}

func TestRunFullPipeline(t *testing.T) {
	ctx := context.Background()
	storeClient := memory.NewGraphMemoryStorage()
	clusterClient := &fakeCluster{}

	aiClient := &fakeAI{}
	aiClient.completeFn = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Entity name:"):
			return "A synthesized description.", nil
		case strings.Contains(prompt, "community"):
			return `{"title": "Pair", "summary": "Two entities.", "findings": []}`, nil
		default:
			return validExtractionReply, nil
		}
	}

	g := NewGraphClient(GraphClientParams{
		BatchSize:     1,
		MaxRetries:    1,
		RetryDelaySec: -1,
		Capabilities:  capsWithEmbeddings(),
	})

	documents := []Document{
		{ID: "d1", Chunks: testChunks("d1", "first chunk", "second chunk")},
	}
	report, err := g.Run(ctx, RunContext{CollectionID: "coll-1"}, documents, aiClient, storeClient, clusterClient)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Extraction.Succeeded != 2 || report.Extraction.Failed != 0 {
		t.Errorf("extraction report = %+v, want 2 succeeded", report.Extraction)
	}
	if report.Description.Synthesized != 2 {
		t.Errorf("description report = %+v, want 2 synthesized name groups", report.Description)
	}
	if report.Merge.Succeeded != 2 || report.Merge.Failed != 0 {
		t.Errorf("merge report = %+v, want 2 succeeded", report.Merge)
	}
	if report.Communities.Succeeded != 1 {
		t.Errorf("communities report = %+v, want 1 succeeded", report.Communities)
	}

	collectionEntities, err := storeClient.GetEntities(ctx, "coll-1")
	if err != nil {
		t.Fatalf("GetEntities() error = %v", err)
	}
	if len(collectionEntities) != 2 {
		t.Fatalf("got %d collection entities, want 2", len(collectionEntities))
	}

	if len(clusterClient.requests) != 1 {
		t.Fatalf("got %d cluster calls, want 1", len(clusterClient.requests))
	}
	if len(clusterClient.requests[0].Relationships) != 2 {
		t.Errorf("got %d edges in cluster request, want 2 (one per extraction batch)", len(clusterClient.requests[0].Relationships))
	}

	communities := storeClient.Communities("coll-1")
	if len(communities) != 1 {
		t.Fatalf("got %d communities, want 1", len(communities))
	}
	if communities[0].Level != 0 {
		t.Errorf("got level %d, want 0", communities[0].Level)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGraphClient(GraphClientParams{BatchSize: 1, MaxRetries: 1, RetryDelaySec: -1})
	storeClient := memory.NewGraphMemoryStorage()
	aiClient := &fakeAI{
		completeFn: func(prompt string) (string, error) {
			t.Error("no work should be scheduled after cancellation")
			return "", nil
		},
	}

	_, err := g.Run(ctx, RunContext{CollectionID: "coll-1"}, []Document{
		{ID: "d1", Chunks: testChunks("d1", "text")},
	}, aiClient, storeClient, &fakeCluster{})
	if err == nil {
		t.Fatal("expected context error")
	}
}
