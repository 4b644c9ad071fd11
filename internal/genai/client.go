package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Request is a single-turn generation request.
type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
}

// Response carries the generated text.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens    int
	CandidateTokens int
	TotalTokens     int
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client. An empty baseURL uses DefaultBaseURL; a zero timeout
// disables the request timeout.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateContent sends req and returns the concatenated text of the first candidate.
// Non-200 responses are returned as *APIError.
func (c *Client) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	return genResp.toResponse()
}

// APIError is an error reported by the API, rendered the way Google's SDKs print it:
// "<code> <STATUS>. <message>".
type APIError struct {
	Code    int
	Status  string
	Message string
}

func (e *APIError) Error() string {
	status := e.Status
	if status == "" {
		status = strings.ToUpper(strings.ReplaceAll(http.StatusText(e.Code), " ", "_"))
	}
	if e.Message == "" {
		return fmt.Sprintf("%d %s.", e.Code, status)
	}
	return fmt.Sprintf("%d %s. %s", e.Code, status, e.Message)
}

func parseAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var wire struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	apiErr := &APIError{Code: resp.StatusCode}
	if err := json.Unmarshal(data, &wire); err == nil && wire.Error.Code != 0 {
		apiErr.Code = wire.Error.Code
		apiErr.Status = wire.Error.Status
		apiErr.Message = wire.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

func toWire(req Request) generateRequest {
	wire := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if req.SystemInstruction != "" {
		wire.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	return wire
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Usage struct {
		PromptTokens    int `json:"promptTokenCount"`
		CandidateTokens int `json:"candidatesTokenCount"`
		TotalTokens     int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (g generateResponse) toResponse() (*Response, error) {
	if g.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked by gemini: %s", g.PromptFeedback.BlockReason)
	}

	resp := &Response{
		Usage: Usage{
			PromptTokens:    g.Usage.PromptTokens,
			CandidateTokens: g.Usage.CandidateTokens,
			TotalTokens:     g.Usage.TotalTokens,
		},
	}
	// No candidates is an empty generation, not a transport error.
	if len(g.Candidates) == 0 {
		return resp, nil
	}

	var sb strings.Builder
	for _, p := range g.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	resp.Text = sb.String()
	resp.FinishReason = g.Candidates[0].FinishReason
	return resp, nil
}
