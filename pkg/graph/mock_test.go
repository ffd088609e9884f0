package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/graphfold/graphfold/pkg/ai"
	"github.com/graphfold/graphfold/pkg/common"
)

// fakeAI is a hand-rolled ai.Client for pipeline tests. Completion replies
// come from completeFn; embedding calls are recorded for assertions.
type fakeAI struct {
	mu sync.Mutex

	completeFn      func(prompt string) (string, error)
	completionCalls int

	embedBatches [][]string
	embedErr     error
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	f.mu.Lock()
	f.completionCalls++
	f.mu.Unlock()
	if f.completeFn == nil {
		return "", errors.New("no completion configured")
	}
	return f.completeFn(prompt)
}

func (f *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name string, description string, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("structured output not supported by fake")
}

func (f *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	res, err := f.GenerateEmbeddings(ctx, [][]byte{input})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (f *fakeAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}

	batch := make([]string, len(inputs))
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		batch[i] = string(in)
		out[i] = []float32{float32(len(in)), 1}
	}
	f.embedBatches = append(f.embedBatches, batch)
	return out, nil
}

func (f *fakeAI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completionCalls
}

func capsWithEmbeddings() ai.Capabilities {
	return ai.Capabilities{Embeddings: true}
}

func testChunks(documentID string, texts ...string) []common.Chunk {
	chunks := make([]common.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, common.Chunk{
			ID:         fmt.Sprintf("%s-chunk-%d", documentID, i),
			DocumentID: documentID,
			Text:       text,
		})
	}
	return chunks
}
