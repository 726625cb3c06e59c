package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/ingestproc/internal/errkind"
)

type fakeEmbedder struct {
	dim        int
	oomAtSizes map[int]int // size -> remaining OOMs before success
	calls      [][]string
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if remaining, ok := f.oomAtSizes[len(texts)]; ok && remaining > 0 {
		f.oomAtSizes[len(texts)]--
		return nil, errkind.New("oom", "out of memory", errkind.ResourceExhaustion)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func TestAdaptiveBatcherHalvesOnOOM(t *testing.T) {
	inner := &fakeEmbedder{dim: 3, oomAtSizes: map[int]int{4: 1}}
	batcher := NewAdaptiveBatcher(inner, 4)

	texts := []string{"a", "b", "c", "d"}
	vectors, err := batcher.EncodeBatch(context.Background(), texts)

	require.NoError(t, err)
	assert.Len(t, vectors, 4)
	require.Len(t, inner.calls, 3, "one failed size-4 attempt then two size-2 sub-batches")
	assert.Len(t, inner.calls[0], 4)
	assert.Len(t, inner.calls[1], 2)
	assert.Len(t, inner.calls[2], 2)
}

func TestAdaptiveBatcherFailsAtSizeOne(t *testing.T) {
	inner := &fakeEmbedder{dim: 3, oomAtSizes: map[int]int{1: 1000}}
	batcher := NewAdaptiveBatcher(inner, 1)

	_, err := batcher.EncodeBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, errkind.ResourceExhaustion, errkind.Classify(err))
}
