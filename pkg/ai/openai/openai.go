package openai

import (
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Client implements ai.Client against any OpenAI-compatible API. Separate
// underlying clients are kept for chat and embedding endpoints so they can
// point at different deployments.
type Client struct {
	chatModel      string
	embeddingModel string
	embedDim       int
	timeoutMin     int

	reqLock *semaphore.Weighted

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// ClientParams defines the configuration for creating a Client.
//
// ChatModel and EmbeddingModel name the models used for completions and
// embeddings. EmbedDim fixes the embedding dimensionality; shorter vectors
// are zero-padded, longer ones truncated. MaxConcurrentRequests bounds
// in-flight requests across both endpoints.
type ClientParams struct {
	ChatModel      string
	EmbeddingModel string
	EmbedDim       int

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	TimeoutMin            int
	MaxConcurrentRequests int64
}

// NewClient creates a Client configured with the provided parameters.
func NewClient(params ClientParams) *Client {
	dim := params.EmbedDim
	if dim <= 0 {
		dim = 1536
	}
	timeout := params.TimeoutMin
	if timeout <= 0 {
		timeout = 5
	}
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 16
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embedDim:       dim,
		timeoutMin:     timeout,
		reqLock:        semaphore.NewWeighted(maxReq),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(baseURL string, apiKey string) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)
	return &client
}
