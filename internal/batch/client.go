package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultAPIVersion = "2024-11-15"

// Results are kept by the service for this long after the job completes.
const jobTimeToLive = 48 * time.Hour

var ErrSubmit = errors.New("submit transcription job")

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Diarization struct {
	Enabled     bool `json:"enabled"`
	MaxSpeakers int  `json:"maxSpeakers,omitempty"`
}

type SubmitRequest struct {
	ContentURLs    []string
	Locale         string
	ModelURL       string
	DisplayName    string
	Diarization    Diarization
	WordTimestamps bool
}

type Job struct {
	Self       string `json:"self"`
	Status     Status `json:"status"`
	Properties struct {
		// Error is kept as the raw payload so it can be surfaced verbatim.
		Error json.RawMessage `json:"error,omitempty"`
	} `json:"properties"`
}

func (j Job) ID() string {
	if j.Self == "" {
		return ""
	}
	u, err := url.Parse(j.Self)
	if err != nil {
		return path.Base(strings.SplitN(j.Self, "?", 2)[0])
	}
	return path.Base(u.Path)
}

const (
	FileKindTranscription       = "Transcription"
	FileKindTranscriptionReport = "TranscriptionReport"
)

type File struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Links struct {
		ContentURL string `json:"contentUrl"`
	} `json:"links"`
}

// Client talks to the speech-to-text batch transcription REST API.
type Client struct {
	Endpoint   string
	APIVersion string
	Key        string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	body := map[string]any{
		"contentUrls": req.ContentURLs,
		"locale":      req.Locale,
		"displayName": req.DisplayName,
	}
	if req.ModelURL != "" {
		body["model"] = map[string]string{"self": req.ModelURL}
	}

	props := map[string]any{
		"wordLevelTimestampsEnabled": req.WordTimestamps,
		"timeToLiveHours":            int(jobTimeToLive.Hours()),
	}
	if req.Diarization.Enabled {
		props["diarization"] = req.Diarization
	}
	body["properties"] = props

	var job Job
	if err := c.do(ctx, http.MethodPost, "transcriptions:submit", body, &job); err != nil {
		return Job{}, fmt.Errorf("%w: %w", ErrSubmit, err)
	}
	if job.ID() == "" {
		return Job{}, fmt.Errorf("%w: response has no self link", ErrSubmit)
	}
	return job, nil
}

func (c *Client) Get(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "transcriptions/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (c *Client) ListFiles(ctx context.Context, id string) ([]File, error) {
	var resp struct {
		Values []File `json:"values"`
	}
	if err := c.do(ctx, http.MethodGet, "transcriptions/"+url.PathEscape(id)+"/files", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// BaseModels returns the raw model listing so it can be saved unchanged.
func (c *Client) BaseModels(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "models/base", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) url(resource string) string {
	version := c.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	base := strings.TrimRight(c.Endpoint, "/")
	return fmt.Sprintf("%s/speechtotext/%s?api-version=%s", base, resource, url.QueryEscape(version))
}

func (c *Client) do(ctx context.Context, method, resource string, in, out any) error {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Minute}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(resource), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.Key)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		logger.Warn("speech request failed", zap.String("method", method), zap.String("resource", resource), zap.Error(err))
		return fmt.Errorf("%s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("speech request rejected",
			zap.String("method", method),
			zap.String("resource", resource),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(content)),
		)
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(content)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}
