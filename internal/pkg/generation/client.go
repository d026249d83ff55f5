package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/proshotai/proshot/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://fal.run"
	defaultModel      = "fal-ai/nano-banana/edit"
)

// ErrPayloadTooLarge signals that the combined request (prompt plus image
// references) exceeded the model endpoint's size limit.
var ErrPayloadTooLarge = errors.New("die Anfrage ist zu groß, bitte weniger oder kleinere Bilder verwenden")

// Client calls the hosted image model. Generation runs synchronously on the
// provider side, so the HTTP timeout is generous.
type Client struct {
	APIKey     string
	APIBaseURL string
	Model      string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from FAL_API_KEY. The base URL can be
// overridden for tests via FAL_API_BASE_URL.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("FAL_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("FAL_API_BASE_URL", defaultAPIBaseURL), "/"),
		Model:      env.GetEnv("FAL_MODEL", defaultModel),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type generateInput struct {
	Prompt       string   `json:"prompt"`
	NumImages    int      `json:"num_images"`
	AspectRatio  string   `json:"aspect_ratio"`
	OutputFormat string   `json:"output_format"`
	ImageURLs    []string `json:"image_urls"`
}

// Generate submits one job and blocks until the model delivers the images.
func (c *Client) Generate(ctx context.Context, request Request) (*Result, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("FAL_API_KEY is not configured")
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	input := generateInput{
		Prompt:       request.Prompt,
		NumImages:    request.Settings.NumberOfImages,
		AspectRatio:  request.Settings.AspectRatio,
		OutputFormat: request.Settings.OutputFormat,
		ImageURLs:    request.ImageURLs,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	endpoint := c.APIBaseURL + "/" + c.Model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Key "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, ErrPayloadTooLarge
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("generation request failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("generation response parsen: %w", err)
	}
	if len(result.Images) == 0 {
		return nil, errors.New("das Modell hat keine Bilder geliefert")
	}
	return &result, nil
}

// FetchImage downloads one delivered output image from the model's CDN.
func (c *Client) FetchImage(ctx context.Context, imageURL string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("image download failed: status=%d url=%s", resp.StatusCode, imageURL)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
