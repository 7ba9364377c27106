package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"shotline/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Request is one image generation call.
type Request struct {
	Model   string         `json:"model"`
	Style   string         `json:"style,omitempty"`
	Prompt  string         `json:"prompt"`
	Variant string         `json:"variant"`
	Image   string         `json:"image"`
	Options map[string]any `json:"options,omitempty"`
}

// Image is one generated image as returned by the service.
type Image struct {
	B64JSON     string `json:"b64_json"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

type response struct {
	Images []Image `json:"images"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the image generation service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a generation client. rpm <= 0 disables rate limiting.
func NewClient(baseURL, apiKey string, timeoutSeconds, rpm int, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := defaultHTTPTimeout
		if timeoutSeconds > 0 {
			timeout = time.Duration(timeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	client := &Client{
		baseURL:    strings.TrimSpace(baseURL),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	if rpm > 0 {
		client.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return client
}

// Configured reports whether the service endpoint and key are set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Generate submits req and returns the images it produced.
func (c *Client) Generate(ctx context.Context, req Request) ([]Image, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("generation: rate limit wait: %w", err)
		}
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("generation: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("generation: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, StageID, "request", "", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, StageID, "read body", "", err)
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, StageID, "decode response", "", err)
	}
	if decoded.Error != nil {
		return nil, services.Wrap(services.ErrExternalTool, StageID, "api error", decoded.Error.Message, nil)
	}
	if len(decoded.Images) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, StageID, "decode response", "no images returned", nil)
	}
	return decoded.Images, nil
}

// Fetch returns the bytes of a generated image, downloading it when the
// service returned a URL.
func (c *Client) Fetch(ctx context.Context, img Image) (io.ReadCloser, error) {
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, StageID, "decode image", "", err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if img.URL == "" {
		return nil, services.Wrap(services.ErrExternalTool, StageID, "decode image", "image has neither data nor url", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, StageID, "fetch image", img.URL, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, StageID, "fetch image", img.URL, err)
	}
	if err := statusError(resp.StatusCode, nil); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func statusError(code int, body []byte) error {
	if code < http.StatusMultipleChoices {
		return nil
	}
	detail := fmt.Sprintf("http %d", code)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		detail += ": " + snippet
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, StageID, "request", detail, nil)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, StageID, "request", detail, nil)
	default:
		return services.Wrap(services.ErrValidation, StageID, "request", detail, errors.New("request rejected"))
	}
}
