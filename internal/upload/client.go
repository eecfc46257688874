package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dvmax/mediaforge/internal/domain"
)

type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the HTTP API. Upload streams multipart bodies through a
// progress-counting reader; the other methods are plain JSON round trips.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TransformResult mirrors the transform response payload.
type TransformResult struct {
	OriginalURL          string   `json:"originalUrl"`
	TransformedURL       string   `json:"transformedUrl"`
	Effects              []string `json:"effects"`
	PublicID             string   `json:"publicId"`
	Kind                 string   `json:"mediaType"`
	EstimatedCompression string   `json:"estimatedCompression"`
	TransformationString string   `json:"transformationString"`
}

// Asset mirrors the asset payload the server returns.
type Asset struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MediaType    string    `json:"mediaType"`
	OriginalSize int64     `json:"originalSize"`
	DerivedSize  int64     `json:"derivedSize"`
	CreatedAt    time.Time `json:"createdAt"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Asset   Asset  `json:"asset"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Upload posts the job as multipart form data. onProgress receives
// percentages 0-99 while the body streams and 100 once the server accepts.
func (c *Client) Upload(ctx context.Context, job UploadJob, onProgress func(percent int)) (Asset, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", job.Filename)
	if err != nil {
		return Asset{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(job.Data); err != nil {
		return Asset{}, fmt.Errorf("build multipart body: %w", err)
	}

	fields := map[string]string{
		"title":        job.Title,
		"description":  job.Description,
		"mediaType":    job.Kind,
		"originalSize": strconv.Itoa(len(job.Data)),
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return Asset{}, fmt.Errorf("build multipart body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Asset{}, fmt.Errorf("build multipart body: %w", err)
	}

	total := int64(body.Len())
	reader := newProgressReader(&body, total, onProgress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", reader)
	if err != nil {
		return Asset{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = total
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Asset{}, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	var decoded uploadResponse
	if err := c.decodeResponse(resp, &decoded); err != nil {
		return Asset{}, err
	}

	if onProgress != nil {
		onProgress(100)
	}
	return decoded.Asset, nil
}

// Transform submits an effect selection for an already-ingested asset.
func (c *Client) Transform(ctx context.Context, request domain.TransformRequest) (TransformResult, error) {
	var result TransformResult
	if err := c.postJSON(ctx, "/transform", request, &result); err != nil {
		return TransformResult{}, err
	}
	return result, nil
}

// Effects fetches the catalog listing keyed by category.
func (c *Client) Effects(ctx context.Context) (map[string]map[string]string, error) {
	var decoded struct {
		Effects map[string]map[string]string `json:"effects"`
	}
	if err := c.getJSON(ctx, "/effects", &decoded); err != nil {
		return nil, err
	}
	return decoded.Effects, nil
}

// Assets lists known assets, newest first.
func (c *Client) Assets(ctx context.Context, limit int) ([]Asset, error) {
	path := "/assets"
	if limit > 0 {
		path = fmt.Sprintf("/assets?limit=%d", limit)
	}
	var decoded struct {
		Assets []Asset `json:"assets"`
	}
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return nil, err
	}
	return decoded.Assets, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, into any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, into)
}

func (c *Client) getJSON(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	return c.decodeResponse(resp, into)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeResponse surfaces server-side failures with their machine-readable
// code so callers can pattern-match instead of parsing message text.
func (c *Client) decodeResponse(resp *http.Response, into any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure errorResponse
		if err := json.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
			return domain.NewError(domain.ErrorCode(failure.Error), failure.Message)
		}
		return domain.NewError(domain.CodeInternal, fmt.Sprintf("server returned status=%d", resp.StatusCode))
	}

	if into == nil {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func classifyTransportError(ctx context.Context, err error) error {
	var urlErr *url.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &urlErr) && urlErr.Timeout())

	switch {
	case ctx.Err() == nil && timedOut:
		return domain.WrapError(domain.CodeUploadTimeout, "request timed out, try a smaller file", err)
	case errors.Is(err, context.Canceled):
		return domain.WrapError(domain.CodeCancelled, "request cancelled", err)
	default:
		return domain.WrapError(domain.CodeRemoteUploadFailed, "request failed", err)
	}
}
