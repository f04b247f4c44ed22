package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-forge/forge-rag/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search a collection", searchCmd.Short)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "5", flag.DefValue)
}

func TestSearchCmd_HasCollectionFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("collection")
	require.NotNil(t, flag, "collection flag should exist")
	assert.Equal(t, "c", flag.Shorthand)
}

func TestSearchCmd_ExecutesWithQuery(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "similar texts"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Results:")
	assert.Contains(t, buf.String(), "seed/notes.md")
}

func TestSearchCmd_ExecutesWithLimitFlag(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "-n", "1", "similar texts"})
	defer func() {
		rootCmd.SetArgs(nil)
		searchLimit = 5
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[1]")
	assert.NotContains(t, buf.String(), "[2]")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"search", "--json", "similar texts"})
	defer func() {
		rootCmd.SetArgs(nil)
		searchJSON = false
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "\"Chunk\"")
	assert.Contains(t, buf.String(), "\"Score\"")
}

func TestSearchCmd_UnknownCollection(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"search", "-c", "ghost", "anything"})
	defer func() {
		rootCmd.SetArgs(nil)
		searchCollection = ""
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")
}

func TestOutputSearchTable_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchTable(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No results found")
}

func TestOutputSearchJSON_EmptyResults(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	err := outputSearchJSON(rootCmd, []domain.SearchResult{})

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[]")
}

func TestOutputSearchTable_FormatsResult(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)

	results := []domain.SearchResult{
		{
			Chunk: domain.Chunk{
				DocumentPath: "docs/guide.md",
				Index:        3,
				Content:      "first line of the chunk\nsecond line never shown",
			},
			Score: 0.8765,
		},
	}

	err := outputSearchTable(rootCmd, results)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "[1] docs/guide.md #3 (0.8765)")
	assert.Contains(t, buf.String(), "first line of the chunk")
	assert.NotContains(t, buf.String(), "second line never shown")
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{"short passthrough", "hello", 10, "hello"},
		{"first line only", "hello\nworld", 10, "hello"},
		{"truncated with ellipsis", "abcdefghij", 5, "abcde..."},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snippet(tt.content, tt.max))
		})
	}
}
