package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"smartfit-coach/internal/config"
	"smartfit-coach/internal/shared"
)

const groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient talks to an OpenAI-compatible chat completions endpoint (Groq by
// default).
type GroqClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	HTTPClient  *http.Client
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(cfg *config.Config, model string, temperature float32) *GroqClient {
	baseURL := cfg.LLMBaseURL
	if baseURL == "" {
		baseURL = groqAPIURL
	}
	return &GroqClient{
		apiKey:      cfg.GroqAPIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateContent sends a prompt to the Groq model and returns the generated text.
func (c *GroqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	return c.send(ctx, chatMessage{Role: "user", Content: prompt})
}

// GenerateContentWithImage sends the prompt and the image as a data URI part.
func (c *GroqClient) GenerateContentWithImage(ctx context.Context, prompt string, image Image) (ContentResponse, error) {
	return c.send(ctx, chatMessage{
		Role: "user",
		Content: []chatPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &chatImageURL{URL: image.DataURI()}},
		},
	})
}

func (c *GroqClient) send(ctx context.Context, message chatMessage) (ContentResponse, error) {
	jsonBody, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{message},
		Temperature: c.temperature,
	})
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return ContentResponse{}, fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var groqResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	model := groqResp.Model
	if model == "" {
		model = c.model
	}
	out := ContentResponse{
		Usage: shared.TokenUsage{
			PromptTokens:     groqResp.Usage.PromptTokens,
			CompletionTokens: groqResp.Usage.CompletionTokens,
			TotalTokens:      groqResp.Usage.TotalTokens,
			Model:            model,
		},
	}
	if len(groqResp.Choices) > 0 {
		out.Content = groqResp.Choices[0].Message.Content
	}
	return out, nil
}
