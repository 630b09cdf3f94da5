package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikirag/internal/domain"
)

func TestGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "Who designed Go?", req.Prompt)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "Robert Griesemer, Rob Pike and Ken Thompson.", Done: true})
	}))
	defer srv.Close()

	g := NewGenerator(Config{BaseURL: srv.URL})
	out, err := g.Generate(context.Background(), "Who designed Go?")
	require.NoError(t, err)
	assert.Equal(t, "Robert Griesemer, Rob Pike and Ken Thompson.", out)
	assert.Equal(t, DefaultModel, g.Model())
}

func TestGenerator_ErrorsAreGenerationErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"error field", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"out of memory"}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewGenerator(Config{BaseURL: srv.URL, Model: "m"}).Generate(context.Background(), "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrGeneration)
			var ge *domain.GenerationError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, "m", ge.Model)
		})
	}
}

func TestGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGenerator(Config{BaseURL: url}).Generate(context.Background(), "q")
	assert.ErrorIs(t, err, domain.ErrGeneration)
}
