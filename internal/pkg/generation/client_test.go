package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		Prompt:    "Produkt auf Marmortisch mit weichem Licht",
		ImageURLs: []string{"https://cdn.example.com/product.webp"},
		Settings: Settings{
			NumberOfImages: 2,
			OutputFormat:   OutputFormatWebP,
			AspectRatio:    "1:1",
		},
	}
}

func newTestClient(serverURL string) *Client {
	return &Client{
		APIKey:     "test-key",
		APIBaseURL: serverURL,
		Model:      defaultModel,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestGenerateSendsModelInput(t *testing.T) {
	var got generateInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+defaultModel, r.URL.Path)
		assert.Equal(t, "Key test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(Result{
			Images: []GeneratedImage{{URL: "https://fal.media/out1.webp", ContentType: "image/webp"}},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Generate(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "https://fal.media/out1.webp", result.Images[0].URL)

	assert.Equal(t, 2, got.NumImages)
	assert.Equal(t, "1:1", got.AspectRatio)
	assert.Equal(t, "webp", got.OutputFormat)
	assert.Equal(t, []string{"https://cdn.example.com/product.webp"}, got.ImageURLs)
}

func TestGeneratePayloadTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestGenerateUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"model overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
}

func TestGenerateEmptyResultIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), validRequest())
	require.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
	}{
		{"gültig", Settings{2, "webp", "16:9"}, false},
		{"null Bilder", Settings{0, "webp", "1:1"}, true},
		{"zu viele Bilder", Settings{5, "webp", "1:1"}, true},
		{"unbekanntes Format", Settings{1, "gif", "1:1"}, true},
		{"unbekanntes Seitenverhältnis", Settings{1, "png", "2:1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestValidate(t *testing.T) {
	r := validRequest()
	r.Prompt = ""
	assert.Error(t, r.Validate())

	r = validRequest()
	r.ImageURLs = nil
	assert.Error(t, r.Validate())

	assert.NoError(t, validRequest().Validate())
}
