package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "R1 1 0 1k\n"}, {"text": ".END"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
		}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL+"/", 0)
	resp, err := c.GenerateContent(context.Background(), Request{
		Model:             "gemini-2.5-pro",
		SystemInstruction: "netlist only",
		Prompt:            "RC filter",
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.5-pro:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "R1 1 0 1k\n.END", resp.Text)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	sys := gotBody["system_instruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "netlist only", sys["text"])
	user := gotBody["contents"].([]any)[0].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "RC filter", user["parts"].([]any)[0].(map[string]any)["text"])
}

func TestGenerateContent_UnavailableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"code": 503, "message": "The model is overloaded. Please try again later.", "status": "UNAVAILABLE"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, 0).GenerateContent(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.Code)
	assert.Equal(t, "503 UNAVAILABLE. The model is overloaded. Please try again later.", err.Error())
}

func TestGenerateContent_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, 0).GenerateContent(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.EqualError(t, err, "502 BAD_GATEWAY. bad gateway")
}

func TestGenerateContent_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", srv.URL, 0).GenerateContent(context.Background(), Request{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestGenerateContent_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback": {"blockReason": "SAFETY"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, 0).GenerateContent(context.Background(), Request{Model: "m", Prompt: "p"})
	assert.ErrorContains(t, err, "SAFETY")
}

func TestAPIError_Format(t *testing.T) {
	assert.Equal(t, "503 UNAVAILABLE.", (&APIError{Code: 503, Status: "UNAVAILABLE"}).Error())
	assert.Equal(t, "503 SERVICE_UNAVAILABLE.", (&APIError{Code: 503}).Error())
}
