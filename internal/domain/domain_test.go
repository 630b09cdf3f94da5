package domain

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want FlexString
	}{
		{`{"identifier":"Q90"}`, "Q90"},
		{`{"identifier":12345}`, "12345"},
		{`{"identifier":null}`, ""},
		{`{}`, ""},
		{`{"identifier":1.50}`, "1.50"},
		{`{"identifier":false}`, "false"},
	}
	for _, tt := range tests {
		var a RawArticle
		require.NoError(t, json.Unmarshal([]byte(tt.in), &a), tt.in)
		assert.Equal(t, tt.want, a.Identifier, tt.in)
	}

	var a RawArticle
	assert.Error(t, json.Unmarshal([]byte(`{"identifier":[1]}`), &a))
}

func TestContextBundle(t *testing.T) {
	var empty ContextBundle
	assert.True(t, empty.Empty())
	assert.Equal(t, "", empty.Text())

	b := ContextBundle{Passages: []ScoredHit{
		{Hit: RetrievalHit{Text: "first."}, Score: 1},
		{Hit: RetrievalHit{Text: "second."}, Score: 0.9},
	}}
	assert.False(t, b.Empty())
	assert.Equal(t, "first. second.", b.Text())
}

func TestTypedErrors(t *testing.T) {
	var err error = &AuthError{StatusCode: 401, Err: io.EOF}
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "status 401")

	err = &FetchError{ID: "Go", Attempts: 5, Err: io.EOF}
	assert.ErrorIs(t, err, ErrFetch)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "5 attempt(s)")

	err = &GenerationError{Model: "llama3.1:8b", Err: io.EOF}
	assert.ErrorIs(t, err, ErrGeneration)
	var ge *GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "llama3.1:8b", ge.Model)

	err = CollectionNotFound("docs")
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.Contains(t, err.Error(), `"docs"`)
}
