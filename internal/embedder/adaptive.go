package embedder

import (
	"context"

	"github.com/docforge/ingestproc/internal/errkind"
)

// AdaptiveBatcher wraps an Embedder and halves its effective batch size on
// resource exhaustion, recovering toward the original size once a reduced
// batch succeeds. A batch that still OOMs at size 1 is reported as failed.
type AdaptiveBatcher struct {
	inner        Embedder
	originalSize int
	currentSize  int
}

func NewAdaptiveBatcher(inner Embedder, batchSize int) *AdaptiveBatcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &AdaptiveBatcher{inner: inner, originalSize: batchSize, currentSize: batchSize}
}

func (a *AdaptiveBatcher) Dimension() int { return a.inner.Dimension() }

// EncodeBatch splits texts into sub-batches of the current effective size,
// halving on OOM and retrying that sub-batch, recovering size on success.
// It returns vectors in input order, or an error once a size-1 sub-batch
// still OOMs.
func (a *AdaptiveBatcher) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32

	for start := 0; start < len(texts); {
		size := a.currentSize
		if size > len(texts)-start {
			size = len(texts) - start
		}
		sub := texts[start : start+size]

		vectors, err := a.inner.Encode(ctx, sub)
		if err == nil {
			out = append(out, vectors...)
			start += size
			a.recover()
			continue
		}

		if errkind.Classify(err) != errkind.ResourceExhaustion {
			return nil, err
		}

		if size == 1 {
			return nil, err
		}

		a.currentSize = size / 2
		if a.currentSize < 1 {
			a.currentSize = 1
		}
	}

	return out, nil
}

// recover attempts to move the effective batch size back toward original
// after a successful sub-batch, one doubling step at a time.
func (a *AdaptiveBatcher) recover() {
	if a.currentSize >= a.originalSize {
		return
	}
	next := a.currentSize * 2
	if next > a.originalSize {
		next = a.originalSize
	}
	a.currentSize = next
}
