package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"promptroom/promptroom/apperrors"
	httputils "promptroom/promptroom/utils/http"
	"promptroom/promptroom/utils/logging"
)

// Client talks to an OpenAI-compatible API (chat completions + embeddings).
type Client struct {
	apiKey  string
	baseURL string
}

func NewClient(apiKey, baseURL string) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// post issues the request and folds every failure mode into
// *apperrors.UpstreamError: transport errors carry status 0, non-200 replies
// carry the provider's status and extracted message.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	err := httputils.PostJSONWithAuth(ctx, c.baseURL+path, c.apiKey, payload, out)
	if err == nil {
		return nil
	}
	var se *httputils.StatusError
	if errors.As(err, &se) {
		return &apperrors.UpstreamError{Status: se.Status, Message: providerMessage([]byte(se.Body))}
	}
	return &apperrors.UpstreamError{Message: err.Error()}
}

// Complete issues one chat-completion request. payload is the full request
// body; the token-limit field name varies per family, so the orchestrator
// builds it as a map.
func (c *Client) Complete(ctx context.Context, payload map[string]interface{}) (string, error) {
	defer logging.LogDuration(ctx, "llm_complete")()

	var parsed completionResponse
	if err := c.post(ctx, "/chat/completions", payload, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", &apperrors.UpstreamError{Status: http.StatusOK, Message: "no response from model"}
	}
	return parsed.Choices[0].Message.Content, nil
}

// providerMessage pulls {error:{message}} out of an error payload, falling
// back to the raw body.
func providerMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return string(body)
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embeddings returns one vector per input, in input order. Batch responses
// are re-sorted by index before use.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float64, error) {
	defer logging.LogDuration(ctx, "llm_embeddings")()

	payload := map[string]interface{}{
		"model": model,
		"input": inputs,
	}
	var parsed embeddingResponse
	if err := c.post(ctx, "/embeddings", payload, &parsed); err != nil {
		return nil, err
	}
	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vectors := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
