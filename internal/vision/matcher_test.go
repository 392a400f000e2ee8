package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchEmptyGallery(t *testing.T) {
	_, _, ok := Match([]float32{1, 0}, nil)
	assert.False(t, ok)
}

func TestMatchPicksBestSampleAcrossUsers(t *testing.T) {
	gallery := []Sample{
		{UserID: 1, Embedding: []float32{1, 0, 0}},
		{UserID: 1, Embedding: []float32{0.9, 0.43, 0}},
		{UserID: 2, Embedding: []float32{0, 1, 0}},
		{UserID: 3, Embedding: []float32{0, 0, 1}},
	}

	id, score, ok := Match([]float32{0, 0.99, 0.14}, gallery)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.InDelta(t, 0.99, score, 0.01)
}

func TestMatchUsesBestOfMultipleSamples(t *testing.T) {
	// The second sample of user 7 is closer than the first; the match
	// score must reflect the best one, not the first.
	gallery := []Sample{
		{UserID: 7, Embedding: []float32{1, 0}},
		{UserID: 7, Embedding: []float32{0.7071, 0.7071}},
	}

	id, score, ok := Match([]float32{0.6, 0.8}, gallery)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.InDelta(t, 0.6*0.7071+0.8*0.7071, float64(score), 0.001)
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 0}))
}
