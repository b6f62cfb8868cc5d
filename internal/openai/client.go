package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/cloo-solutions/researchq/internal/service"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel answers queries and writes summaries.
	DefaultChatModel = openai.GPT4o
	// DefaultEmbeddingModel is used when chunks are imported with embeddings.
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions matches the document_chunks.embedding column.
	DefaultEmbeddingDimensions = 1536
)

var (
	ErrEmptyText       = errors.New("text cannot be empty")
	ErrNoChunks        = errors.New("no document text to query")
	ErrNoAPIKey        = errors.New("openai api key not configured")
	ErrEmptyResponse   = errors.New("model returned no choices")
	ErrWrongDimensions = errors.New("embedding has wrong dimensions, expected 1536")
)

// ChatAPI sends a chat completion with the given key.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, apiKey string, req openai.ChatCompletionRequest) (string, error)
}

// EmbeddingAPI creates one embedding with the given key.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, apiKey, text string) ([]float32, error)
}

// OpenAIAdapter talks to the OpenAI HTTP API. One SDK client is kept per key
// because teams bring their own keys.
type OpenAIAdapter struct {
	baseURL        string
	httpClient     *http.Client
	embeddingModel openai.EmbeddingModel

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func NewOpenAIAdapter(baseURL string, httpClient *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{
		baseURL:        baseURL,
		httpClient:     httpClient,
		embeddingModel: DefaultEmbeddingModel,
		clients:        make(map[string]*openai.Client),
	}
}

func (a *OpenAIAdapter) client(apiKey string) *openai.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[apiKey]; ok {
		return c
	}
	cfg := openai.DefaultConfig(apiKey)
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.httpClient != nil {
		cfg.HTTPClient = a.httpClient
	}
	c := openai.NewClientWithConfig(cfg)
	a.clients[apiKey] = c
	return c
}

func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, apiKey string, req openai.ChatCompletionRequest) (string, error) {
	resp, err := a.client(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, apiKey, text string) ([]float32, error) {
	resp, err := a.client(apiKey).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

type Config struct {
	// APIKey is used for embeddings. Queries carry their own credentials.
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Client executes research queries and summaries through the chat API.
type Client struct {
	chat       ChatAPI
	embeddings EmbeddingAPI
	apiKey     string
	model      string
}

func NewClient(cfg Config) *Client {
	adapter := NewOpenAIAdapter(cfg.BaseURL, cfg.HTTPClient)
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &Client{
		chat:       adapter,
		embeddings: adapter,
		apiKey:     cfg.APIKey,
		model:      model,
	}
}

// ExecuteQuery asks the query against the given chunks. Attributed calls get a
// JSON object back; plain calls get free text.
func (c *Client) ExecuteQuery(ctx context.Context, in service.QueryInput) (string, error) {
	if in.Credentials.IsZero() {
		return "", ErrNoAPIKey
	}
	if len(in.Chunks) == 0 {
		return "", ErrNoChunks
	}

	req := c.request(in.Credentials.Model)
	if in.Attributed {
		req.Messages = attributedMessages(in.Query, in.Chunks)
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	} else {
		req.Messages = queryMessages(in.Query, in.Chunks)
	}

	content, err := c.chat.CreateChatCompletion(ctx, in.Credentials.APIKey, req)
	if err != nil {
		return "", fmt.Errorf("failed to execute query: %w", sanitizeError(err, in.Credentials.APIKey))
	}
	return content, nil
}

// Synthesize aggregates the findings' answers with the overall query.
func (c *Client) Synthesize(ctx context.Context, in service.SynthesisInput) (string, error) {
	if in.Credentials.IsZero() {
		return "", ErrNoAPIKey
	}

	messages, err := synthesisMessages(in.OverallQuery, in.Findings)
	if err != nil {
		return "", err
	}
	req := c.request(in.Credentials.Model)
	req.Messages = messages

	content, err := c.chat.CreateChatCompletion(ctx, in.Credentials.APIKey, req)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize summary: %w", sanitizeError(err, in.Credentials.APIKey))
	}
	return strings.TrimSpace(content), nil
}

// GenerateEmbedding embeds chunk text with the configured key.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	embedding, err := c.embeddings.CreateEmbeddings(ctx, c.apiKey, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", sanitizeError(err, c.apiKey))
	}
	if len(embedding) != DefaultEmbeddingDimensions {
		return nil, ErrWrongDimensions
	}
	return embedding, nil
}

func (c *Client) request(model string) openai.ChatCompletionRequest {
	if model == "" {
		model = c.model
	}
	return openai.ChatCompletionRequest{
		Model: model,
		// A literal zero is dropped by omitempty and the API would default to 1.
		Temperature: math.SmallestNonzeroFloat32,
	}
}

// RequestError is an upstream failure with credential material removed.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openai status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

var keyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_\-*]{4,}`)

func sanitizeError(err error, apiKey string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrEmptyResponse) {
		return err
	}

	msg := err.Error()
	if apiKey != "" {
		msg = strings.ReplaceAll(msg, apiKey, "[redacted]")
	}
	msg = keyPattern.ReplaceAllString(msg, "[redacted]")

	reqErr := &RequestError{Message: msg}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		reqErr.StatusCode = apiErr.HTTPStatusCode
	}
	return reqErr
}
