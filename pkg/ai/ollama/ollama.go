package ollama

import (
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Client implements ai.Client using Ollama as the backend, for locally
// hosted models.
type Client struct {
	chatModel      string
	embeddingModel string
	embedDim       int
	timeoutMin     int

	reqLock *semaphore.Weighted

	Client *api.Client
}

// ClientParams contains configuration options for creating a new Client.
type ClientParams struct {
	ChatModel      string
	EmbeddingModel string
	EmbedDim       int

	BaseURL string
	APIKey  string

	TimeoutMin            int
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewClient creates a new Ollama-backed AI client. It connects to the
// Ollama server at BaseURL (or the default if empty).
func NewClient(params ClientParams) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.APIKey,
			},
			rt: http.DefaultTransport,
		},
	}

	dim := params.EmbedDim
	if dim <= 0 {
		dim = 1024
	}
	timeout := params.TimeoutMin
	if timeout <= 0 {
		timeout = 10
	}
	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,
		embedDim:       dim,
		timeoutMin:     timeout,
		reqLock:        semaphore.NewWeighted(maxReq),
		Client:         api.NewClient(u, httpClient),
	}, nil
}
