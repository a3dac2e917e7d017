package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectInput(t *testing.T) {
	inputFile := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(inputFile, []byte(`{"query":"golang","count":3}`), 0o644))

	input, err := collectInput(inputFile, []string{
		"count=5",
		"tags=[\"news\",\"dev\"]",
		"note=plain text",
		"ratio=0.5",
	})
	require.NoError(t, err)

	// Flags win over the file; JSON-parseable values keep their type.
	assert.Equal(t, "golang", input["query"])
	assert.Equal(t, float64(5), input["count"])
	assert.Equal(t, []any{"news", "dev"}, input["tags"])
	assert.Equal(t, "plain text", input["note"])
	assert.Equal(t, 0.5, input["ratio"])
}

func TestCollectInputNoFile(t *testing.T) {
	input, err := collectInput("", []string{"query=golang"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "golang"}, input)
}

func TestCollectInputRejectsMalformedVar(t *testing.T) {
	_, err := collectInput("", []string{"missing-equals"})
	assert.Error(t, err)

	_, err = collectInput("", []string{"=value"})
	assert.Error(t, err)
}

func TestCollectInputBadFile(t *testing.T) {
	badFile := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(badFile, []byte("not json"), 0o644))

	_, err := collectInput(badFile, nil)
	assert.Error(t, err)
}
