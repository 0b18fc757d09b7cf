package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fmueller/chunkscribe/internal/audio"
	"github.com/stretchr/testify/require"
)

func completionBody(finishReason, content string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-audio-preview",` +
		`"choices":[{"index":0,"finish_reason":"` + finishReason + `","message":{"role":"assistant","content":"` + content + `"}}]}`
}

func newTestChatClient(t *testing.T, handler http.HandlerFunc) *ChatClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewChatClient(Endpoint{URL: server.URL, APIKey: "test-key", Deployment: "gpt-4o-audio-preview"}, 0, nil)
	require.NoError(t, err)
	return client
}

func TestChatClientInterpretsFinishReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want Result
	}{
		{name: "stop with text", body: completionBody("stop", "hello there"), want: Completed("hello there")},
		{name: "length cap", body: completionBody("length", "partial"), want: Incomplete("length")},
		{name: "content filter", body: completionBody("content_filter", ""), want: Incomplete("content_filter")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestChatClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})

			got := client.Transcribe(context.Background(), audio.Payload{Format: "wav", Data: "AAAA"}, DefaultSystemPrompt, DefaultUserPrompt)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestChatClientMissingChoicesIsFailed(t *testing.T) {
	t.Parallel()

	client := newTestChatClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-odd","object":"chat.completion"}`)
	})

	got := client.Transcribe(context.Background(), audio.Payload{Format: "wav", Data: "AAAA"}, "sys", "user")
	require.Equal(t, KindFailed, got.Kind)
	require.Contains(t, got.Detail, "chatcmpl-odd")
}

func TestChatClientStopWithoutTextIsFailed(t *testing.T) {
	t.Parallel()

	client := newTestChatClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("stop", ""))
	})

	got := client.Transcribe(context.Background(), audio.Payload{Format: "wav", Data: "AAAA"}, "sys", "user")
	require.Equal(t, KindFailed, got.Kind)
}

func TestChatClientHTTPErrorIsFailedWithoutRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestChatClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	got := client.Transcribe(context.Background(), audio.Payload{Format: "mp3", Data: "AAAA"}, "sys", "user")
	require.Equal(t, KindFailed, got.Kind)
	require.Contains(t, got.Detail, ErrNetwork.Error())
	require.Contains(t, got.Detail, "500")
	require.EqualValues(t, 1, calls.Load())
}

func TestChatClientIndentedFailuresStayOnOneLine(t *testing.T) {
	t.Parallel()

	bodies := []struct {
		status int
		body   string
	}{
		{status: http.StatusOK, body: "{\n  \"id\": \"chatcmpl-odd\",\n  \"object\": \"chat.completion\",\n  \"choices\": []\n}\n"},
		{status: http.StatusBadRequest, body: "{\n  \"error\": {\n    \"message\": \"bad\\naudio\",\n    \"code\": \"invalid_value\"\n  }\n}\n"},
		{status: http.StatusOK, body: completionBody("stop", "ok")},
	}

	var results []Result
	for _, b := range bodies {
		client := newTestChatClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(b.status)
			_, _ = io.WriteString(w, b.body)
		})
		results = append(results, client.Transcribe(context.Background(), audio.Payload{Format: "wav", Data: "AAAA"}, "sys", "user"))
	}

	require.Equal(t, KindFailed, results[0].Kind)
	require.Contains(t, results[0].Detail, `"id":"chatcmpl-odd"`)
	require.Equal(t, KindFailed, results[1].Kind)
	require.Contains(t, results[1].Detail, "400")
	require.Equal(t, Completed("ok"), results[2])

	transcript := Assemble(results)
	require.Len(t, transcript.Lines(), len(results))
	require.Equal(t, len(results), strings.Count(transcript.String(), "\n"))
	for _, line := range transcript.Lines() {
		require.NotContains(t, line, "\n")
	}
}

func TestFailedFoldsDetailOntoOneLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, `{"a":1,"b":[2,3]}`, Failed("{\n  \"a\": 1,\n  \"b\": [2, 3]\n}").Detail)
	require.Equal(t, "network error: status 502: upstream gone", Failed("network error: status 502:\n  upstream\r\n  gone").Detail)
}

func TestChatClientRequestShape(t *testing.T) {
	t.Parallel()

	type request struct {
		path string
		body map[string]any
	}
	requests := make(chan request, 1)
	client := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests <- request{path: r.URL.Path, body: body}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("stop", "ok"))
	})

	got := client.Transcribe(context.Background(), audio.Payload{Format: "mp3", Data: "QUJD"}, "be faithful", "Transcribe this audio file into text.")
	require.Equal(t, KindCompleted, got.Kind)

	req := <-requests
	path, captured := req.path, req.body

	require.True(t, strings.HasSuffix(path, "/chat/completions"), path)
	require.Equal(t, "gpt-4o-audio-preview", captured["model"])
	require.EqualValues(t, 0, captured["temperature"])
	require.EqualValues(t, DefaultMaxTokens, captured["max_tokens"])
	require.Equal(t, []any{"text"}, captured["modalities"])

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)

	system := messages[0].(map[string]any)
	require.Equal(t, "system", system["role"])
	require.Equal(t, "be faithful", system["content"])

	user := messages[1].(map[string]any)
	require.Equal(t, "user", user["role"])
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, "text", parts[0].(map[string]any)["type"])
	require.Equal(t, "Transcribe this audio file into text.", parts[0].(map[string]any)["text"])

	audioPart := parts[1].(map[string]any)
	require.Equal(t, "input_audio", audioPart["type"])
	inputAudio := audioPart["input_audio"].(map[string]any)
	require.Equal(t, "QUJD", inputAudio["data"])
	require.Equal(t, "mp3", inputAudio["format"])
}

func TestChatClientAzureRouting(t *testing.T) {
	t.Parallel()

	urls := make(chan *url.URL, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urls <- r.URL
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("stop", "routed"))
	}))
	defer server.Close()

	client, err := NewChatClient(Endpoint{
		URL:        server.URL,
		APIVersion: "2025-01-01-preview",
		APIKey:     "azure-key",
		Deployment: "gpt-4o-audio-preview",
	}, 0, nil)
	require.NoError(t, err)

	got := client.Transcribe(context.Background(), audio.Payload{Format: "wav", Data: "AAAA"}, "sys", "user")
	require.Equal(t, Completed("routed"), got)

	u := <-urls
	require.Equal(t, "/openai/deployments/gpt-4o-audio-preview/chat/completions", u.Path)
	require.Equal(t, "2025-01-01-preview", u.Query().Get("api-version"))
}

func TestNewChatClientValidatesEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewChatClient(Endpoint{APIKey: "k", Deployment: "d"}, 0, nil)
	require.Error(t, err)
	_, err = NewChatClient(Endpoint{URL: "http://localhost", Deployment: "d"}, 0, nil)
	require.Error(t, err)
	_, err = NewChatClient(Endpoint{URL: "http://localhost", APIKey: "k"}, 0, nil)
	require.Error(t, err)
}

func TestInterpretNil(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindFailed, Interpret(nil).Kind)
}
