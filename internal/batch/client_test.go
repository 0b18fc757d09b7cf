package batch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method  string
	path    string
	version string
	key     string
	body    map[string]any
}

func newSpeechServer(t *testing.T, status int, response string) (*Client, <-chan capturedRequest) {
	t.Helper()

	requests := make(chan capturedRequest, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{
			method:  r.Method,
			path:    r.URL.Path,
			version: r.URL.Query().Get("api-version"),
			key:     r.Header.Get("Ocp-Apim-Subscription-Key"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req.body)
		}
		requests <- req
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)

	return &Client{Endpoint: server.URL + "/", Key: "speech-key"}, requests
}

func TestClientSubmit(t *testing.T) {
	t.Parallel()

	client, requests := newSpeechServer(t, http.StatusCreated,
		`{"self":"https://example.cognitive.microsoft.com/speechtotext/transcriptions/5b0c1a2e?api-version=2024-11-15","status":"NotStarted"}`)

	job, err := client.Submit(context.Background(), SubmitRequest{
		ContentURLs:    []string{"https://blob/uploads/a.wav?sig=x"},
		Locale:         "en-AU",
		ModelURL:       "https://example/models/base/1",
		DisplayName:    "Transcription of a.wav",
		WordTimestamps: true,
		Diarization:    Diarization{Enabled: true, MaxSpeakers: 3},
	})
	require.NoError(t, err)
	require.Equal(t, "5b0c1a2e", job.ID())
	require.Equal(t, StatusNotStarted, job.Status)

	req := <-requests
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "/speechtotext/transcriptions:submit", req.path)
	require.Equal(t, DefaultAPIVersion, req.version)
	require.Equal(t, "speech-key", req.key)
	require.Equal(t, "en-AU", req.body["locale"])
	require.Equal(t, "Transcription of a.wav", req.body["displayName"])
	require.Equal(t, []any{"https://blob/uploads/a.wav?sig=x"}, req.body["contentUrls"])
	require.Equal(t, map[string]any{"self": "https://example/models/base/1"}, req.body["model"])

	props := req.body["properties"].(map[string]any)
	require.Equal(t, true, props["wordLevelTimestampsEnabled"])
	require.EqualValues(t, 48, props["timeToLiveHours"])
	require.Equal(t, map[string]any{"enabled": true, "maxSpeakers": float64(3)}, props["diarization"])
}

func TestClientSubmitRejected(t *testing.T) {
	t.Parallel()

	client, _ := newSpeechServer(t, http.StatusUnauthorized, `{"code":"Unauthorized"}`)

	_, err := client.Submit(context.Background(), SubmitRequest{Locale: "en-AU"})
	require.ErrorIs(t, err, ErrSubmit)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "Unauthorized")
}

func TestClientSubmitWithoutSelfLink(t *testing.T) {
	t.Parallel()

	client, _ := newSpeechServer(t, http.StatusCreated, `{"status":"NotStarted"}`)

	_, err := client.Submit(context.Background(), SubmitRequest{})
	require.ErrorIs(t, err, ErrSubmit)
}

func TestClientGetKeepsErrorPayload(t *testing.T) {
	t.Parallel()

	client, requests := newSpeechServer(t, http.StatusOK,
		`{"self":"https://x/speechtotext/transcriptions/abc","status":"Failed","properties":{"error":{"code":"InvalidData","message":"bad audio"}}}`)
	client.APIVersion = "2024-05-15-preview"

	job, err := client.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.JSONEq(t, `{"code":"InvalidData","message":"bad audio"}`, string(job.Properties.Error))

	req := <-requests
	require.Equal(t, "/speechtotext/transcriptions/abc", req.path)
	require.Equal(t, "2024-05-15-preview", req.version)
}

func TestClientListFiles(t *testing.T) {
	t.Parallel()

	client, requests := newSpeechServer(t, http.StatusOK, `{"values":[
		{"name":"contenturl_0.json","kind":"Transcription","links":{"contentUrl":"https://files/0"}},
		{"name":"report.json","kind":"TranscriptionReport","links":{"contentUrl":"https://files/report"}}
	]}`)

	files, err := client.ListFiles(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, FileKindTranscription, files[0].Kind)
	require.Equal(t, "https://files/0", files[0].Links.ContentURL)
	require.Equal(t, FileKindTranscriptionReport, files[1].Kind)

	req := <-requests
	require.Equal(t, "/speechtotext/transcriptions/abc/files", req.path)
}

func TestClientBaseModels(t *testing.T) {
	t.Parallel()

	client, requests := newSpeechServer(t, http.StatusOK, `{"values":[{"displayName":"20240614 Batch Transcription","locale":"en-AU"}]}`)

	raw, err := client.BaseModels(context.Background())
	require.NoError(t, err)
	require.Contains(t, string(raw), "20240614 Batch Transcription")

	req := <-requests
	require.Equal(t, "/speechtotext/models/base", req.path)
}

func TestJobID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Job{}.ID())
	require.Equal(t, "abc", Job{Self: "https://x/speechtotext/v3.2/transcriptions/abc"}.ID())
	require.Equal(t, "abc", Job{Self: "https://x/speechtotext/transcriptions/abc?api-version=2024-11-15"}.ID())
}
