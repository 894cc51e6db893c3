package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClient_Complete(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		want       string
		errContain string
		statusCode int
	}{
		{
			name:       "text parts",
			statusCode: http.StatusOK,
			response:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"single_phase\": true,"},{"text":" \"ncm\": \"22029900\"}"}]}}]}`,
			want:       `{"single_phase": true, "ncm": "22029900"}`,
		},
		{
			name:       "API error",
			statusCode: http.StatusBadRequest,
			response:   `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`,
			errContain: "Gemini request failed",
		},
		{
			name:       "no candidates",
			statusCode: http.StatusOK,
			response:   `{"candidates":[]}`,
			errContain: "no content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

				config, ok := body["generationConfig"].(map[string]any)
				if assert.True(t, ok, "generationConfig should be sent") {
					assert.Equal(t, "application/json", config["responseMimeType"])
					assert.InDelta(t, 0.0, config["temperature"], 1e-6)
				}
				system, ok := body["systemInstruction"].(map[string]any)
				if assert.True(t, ok, "systemInstruction should be sent") {
					parts := system["parts"].([]any)
					assert.Equal(t, "system text", parts[0].(map[string]any)["text"])
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			ctx := context.Background()
			client, err := newGeminiClient(ctx, Config{APIKey: "test-key", BaseURL: srv.URL, Temperature: ptr(0.0)})
			require.NoError(t, err)
			defer func() { _ = client.Close() }()

			got, err := client.Complete(ctx, "system text", "prompt")
			if tt.errContain != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, ProviderGemini, client.Name())
		})
	}
}
