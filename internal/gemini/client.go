package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/models"
)

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-2.5-flash-image"
	maxResponseSize = 32 << 20
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the Gemini generateContent endpoint and returns the first image part.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// The job manager bounds each call; this only guards against stuck connections.
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger.With().Str("component", "gemini").Str("model", model).Logger(),
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Generate implements jobs.Provider.
func (c *Client) Generate(ctx context.Context, prompt jobs.Prompt) (*jobs.Content, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyContextError(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: BuildPrompt(prompt)}},
		}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &imageConfig{AspectRatio: prompt.AspectRatio},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	c.logger.Debug().
		Str("job_id", prompt.JobID.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("gemini response received")

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}

	return decodeImage(respBody)
}

// BuildPrompt renders the descriptive fields into the instruction sent to the model.
func BuildPrompt(p jobs.Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s style thumbnail image titled %q.", p.Style, p.Title)
	fmt.Fprintf(&b, " Use a %s color scheme and a %s aspect ratio.", p.ColorScheme, p.AspectRatio)
	if p.TextOverlay {
		fmt.Fprintf(&b, " Render the title %q as bold, legible text on the image.", p.Title)
	} else {
		b.WriteString(" Do not render any text on the image.")
	}
	if extra := strings.TrimSpace(p.UserPrompt); extra != "" {
		b.WriteString(" Additional direction: ")
		b.WriteString(extra)
	}
	return b.String()
}

func decodeImage(body []byte) (*jobs.Content, error) {
	var parsed generateContentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, invalidResponse(fmt.Errorf("failed to decode response: %w", err))
	}
	if len(parsed.Candidates) == 0 {
		return nil, invalidResponse(errors.New("response has no candidates"))
	}

	var text []string
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				text = append(text, p.Text)
			}
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, invalidResponse(fmt.Errorf("failed to decode image data: %w", err))
			}
			return &jobs.Content{
				Data:     data,
				MIMEType: p.InlineData.MimeType,
				Text:     strings.Join(text, "\n"),
			}, nil
		}
	}

	return nil, invalidResponse(fmt.Errorf("response has no image part (finish reason %q)", parsed.Candidates[0].FinishReason))
}

func statusError(status int, body []byte) error {
	var apiErr errorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	err := fmt.Errorf("gemini returned status %d: %s", status, msg)

	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &jobs.ProviderError{Reason: models.ReasonProviderTimeout, Err: err}
	default:
		return &jobs.ProviderError{Reason: models.ReasonProviderUnavailable, Err: err}
	}
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return classifyContextError(ctx, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &jobs.ProviderError{Reason: models.ReasonProviderTimeout, Err: err}
	}
	return &jobs.ProviderError{Reason: models.ReasonProviderUnavailable, Err: err}
}

func classifyContextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &jobs.ProviderError{Reason: models.ReasonProviderUnavailable, Err: err}
	}
	return &jobs.ProviderError{Reason: models.ReasonProviderTimeout, Err: err}
}

func invalidResponse(err error) error {
	return &jobs.ProviderError{Reason: models.ReasonProviderInvalidResponse, Err: err}
}
