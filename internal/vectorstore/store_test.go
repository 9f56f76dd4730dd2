package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/clove/internal/ragerr"
)

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultLimit},
		{-4, DefaultLimit},
		{1, 3},
		{3, 3},
		{10, 10},
		{15, 15},
		{100, 15},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClampLimit(tc.in), "ClampLimit(%d)", tc.in)
	}
}

func TestBuildPoints(t *testing.T) {
	chunks, vectors := makeChunks("repo-a", "one", "two")

	points, err := BuildPoints(chunks, vectors, 64)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "repo-a-1", points[1].ID)
	assert.Equal(t, "two", points[1].Payload[KeyText])
	assert.Equal(t, "repo-a", points[1].Payload[KeyRepositoryID])
	assert.Equal(t, "pkg/file1.go", points[1].Payload[KeyFilePath])
	assert.Equal(t, "code", points[1].Payload[KeyType])
	assert.Equal(t, 1, points[1].Payload[KeyChunkIndex])
}

func TestBuildPoints_Rejects(t *testing.T) {
	chunks, vectors := makeChunks("repo-a", "one", "two", "three")

	_, err := BuildPoints(chunks, vectors[:2], 64)
	assert.True(t, ragerr.IsValidation(err))
	assert.Contains(t, err.Error(), "3 chunks but 2 vectors")

	_, err = BuildPoints(chunks, vectors, 32)
	assert.True(t, ragerr.IsValidation(err))

	vectors[1] = nil
	_, err = BuildPoints(chunks, vectors, 0)
	assert.True(t, ragerr.IsValidation(err))

	chunks[0].ID = ""
	_, err = BuildPoints(chunks[:1], vectors[:1], 0)
	assert.True(t, ragerr.IsValidation(err))
}

func TestFilterConditions(t *testing.T) {
	assert.Empty(t, Filter{}.Conditions())
	assert.Equal(t,
		map[string]string{KeyRepositoryID: "r", KeyType: "module"},
		Filter{RepositoryID: "r", Type: "module"}.Conditions())
}

func TestMetaHelpers(t *testing.T) {
	m := map[string]any{"a": 3, "b": float64(4), "c": "5", "d": "x", "e": 1.5}
	assert.Equal(t, 3, MetaInt(m, "a"))
	assert.Equal(t, 4, MetaInt(m, "b"))
	assert.Equal(t, 5, MetaInt(m, "c"))
	assert.Equal(t, 0, MetaInt(m, "missing"))
	assert.Equal(t, "x", MetaString(m, "d"))
	assert.Equal(t, "3", MetaString(m, "a"))
	assert.Equal(t, "", MetaString(m, "missing"))
}
