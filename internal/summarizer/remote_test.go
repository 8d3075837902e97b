package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/memo-notes/internal/models"
	"go.uber.org/zap"
)

var longText = strings.Repeat("This sentence is long enough to matter. ", 10)

func anthropicServer(t *testing.T, handler http.HandlerFunc) (*Remote, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	r := NewAnthropic(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL}, time.Second, DefaultMaxInputChars, zap.NewNop())
	return r, &hits
}

func TestAnthropicSummarizeNote(t *testing.T) {
	var got messagesRequest
	r, hits := anthropicServer(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/v1/messages", req.URL.Path)
		assert.Equal(t, "test-key", req.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"  A concise summary.  "}]}`)
	})

	summary := r.SummarizeNote(context.Background(), "<p>"+longText+"</p>")
	assert.Equal(t, "A concise summary.", summary)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, DefaultAnthropicModel, got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content, notePrompt))
	assert.NotContains(t, got.Messages[0].Content, "<p>")
}

func TestRemoteSkipsShortText(t *testing.T) {
	r, hits := anthropicServer(t, func(w http.ResponseWriter, req *http.Request) {
		t.Error("unexpected request")
	})

	assert.Equal(t, "tiny note", r.SummarizeNote(context.Background(), "<b>tiny</b> note"))
	assert.Equal(t, EmptyFolder, r.SummarizeFolder(context.Background(), nil))
	assert.Equal(t, int32(0), hits.Load())
}

func TestRemoteFallsBackToLocal(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
		},
		"malformed body": func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"content":`)
		},
		"no text": func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"content":[]}`)
		},
	}

	ctx := context.Background()
	notes := []*models.Note{{Title: "one", Content: longText}}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			r, _ := anthropicServer(t, handler)
			assert.Equal(t, NewLocal().SummarizeNote(ctx, longText), r.SummarizeNote(ctx, longText))
			assert.Equal(t, NewLocal().SummarizeFolder(ctx, notes), r.SummarizeFolder(ctx, notes))
		})
	}
}

func TestRemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-req.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	r := NewAnthropic(AnthropicConfig{APIKey: "k", BaseURL: srv.URL}, 50*time.Millisecond, DefaultMaxInputChars, zap.NewNop())
	start := time.Now()
	assert.Equal(t, NewLocal().SummarizeNote(context.Background(), longText), r.SummarizeNote(context.Background(), longText))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFolderPromptIsBounded(t *testing.T) {
	var prompt string
	r, _ := anthropicServer(t, func(w http.ResponseWriter, req *http.Request) {
		var body messagesRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		prompt = body.Messages[0].Content
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"Themes."}]}`)
	})

	var notes []*models.Note
	for i := 1; i <= 12; i++ {
		notes = append(notes, &models.Note{Title: fmt.Sprintf("note-%02d", i), Content: strings.Repeat("x", 800)})
	}

	assert.Equal(t, "Themes.", r.SummarizeFolder(context.Background(), notes))
	assert.True(t, strings.HasPrefix(prompt, folderPrompt))
	assert.Contains(t, prompt, "Title: note-10\n")
	assert.NotContains(t, prompt, "note-11")
	assert.Contains(t, prompt, "(and 2 more notes)")
	assert.NotContains(t, prompt, strings.Repeat("x", 501))
}

func TestOpenAISummarizeNote(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		auth = req.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Short summary."},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)

	r := NewOpenAI(OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", MaxTokens: 100, BaseURL: srv.URL + "/v1"},
		time.Second, DefaultMaxInputChars, zap.NewNop())

	assert.Equal(t, "Short summary.", r.SummarizeNote(context.Background(), longText))
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestOpenAIEmptyChoicesFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
	}))
	t.Cleanup(srv.Close)

	r := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, time.Second, DefaultMaxInputChars, zap.NewNop())
	assert.Equal(t, NewLocal().SummarizeNote(context.Background(), longText), r.SummarizeNote(context.Background(), longText))
}

func TestNewSelectsBackendOnce(t *testing.T) {
	logger := zap.NewNop()

	s, err := New(Config{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = New(Config{Provider: ProviderOpenAI}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = New(Config{Provider: ProviderAnthropic, Anthropic: AnthropicConfig{APIKey: "k"}}, logger)
	require.NoError(t, err)
	require.IsType(t, &Remote{}, s)
	assert.Equal(t, DefaultTimeout, s.(*Remote).timeout)
	assert.Equal(t, DefaultMaxInputChars, s.(*Remote).maxInput)

	_, err = New(Config{Provider: "huggingface"}, logger)
	assert.Error(t, err)
}
