package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/cluster"
	"github.com/graphfold/graphfold/pkg/graph"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/store"
)

// GraphQueueMsg is one pipeline run request. LeidenParams may be omitted to
// use the service defaults.
type GraphQueueMsg struct {
	CollectionID string               `json:"collection_id"`
	RunID        string               `json:"run_id,omitempty"`
	Documents    []graph.Document     `json:"documents"`
	LeidenParams *cluster.LeidenParams `json:"leiden_params,omitempty"`
}

// ProcessGraphMessage runs the full pipeline for one queue message. A
// returned error sends the message to the retry queue.
func ProcessGraphMessage(
	ctx context.Context,
	graphClient *graph.GraphClient,
	aiClient ai.Client,
	storeClient store.GraphStorage,
	clusterClient graph.ClusterCaller,
	msg string,
) error {
	data := new(GraphQueueMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to unmarshal graph message: %w", err)
	}
	if data.CollectionID == "" {
		return fmt.Errorf("graph message missing collection_id")
	}
	if len(data.Documents) == 0 {
		logger.Warn("[Queue] Graph message has no documents", "collection", data.CollectionID)
		return nil
	}

	run := graph.RunContext{
		RunID:        data.RunID,
		CollectionID: data.CollectionID,
	}
	if data.LeidenParams != nil {
		run.LeidenParams = *data.LeidenParams
	}

	report, err := graphClient.Run(ctx, run, data.Documents, aiClient, storeClient, clusterClient)
	if report != nil {
		logger.Info("[Queue] Pipeline run report",
			"run", report.RunID,
			"collection", data.CollectionID,
			"extracted", report.Extraction.Succeeded,
			"extract_failed", report.Extraction.Failed,
			"described", report.Description.Synthesized,
			"kept", report.Description.Kept,
			"embed_failed", report.Description.EmbedFailed,
			"describe_failed", report.Description.Failed,
			"merged", report.Merge.Succeeded,
			"merge_failed", report.Merge.Failed,
			"communities", report.Communities.Succeeded,
			"community_failed", report.Communities.Failed,
			"community_skipped", report.Communities.Skipped,
		)
	}
	return err
}
