package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aman-CERP/hybridstore/internal/embedder"
)

// BatchOptions controls how EmbedAdaptive splits texts into embed_batch
// calls.
type BatchOptions struct {
	// Auto enables length-bucketed adaptive sizing; when false, texts are
	// embedded in fixed-size chunks of FixedSize.
	Auto bool
	// FixedSize is the batch size used when Auto is false.
	FixedSize int
	// InitialSize is the starting batch size for an adaptive bucket.
	InitialSize int
	// MinSize is the floor adaptive halving will not go below.
	MinSize int
	// MaxInputTokens is the embedder's reported max input length, used to
	// scale the initial batch size down for buckets of long texts.
	MaxInputTokens int
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.FixedSize <= 0 {
		o.FixedSize = 32
	}
	if o.InitialSize <= 0 {
		o.InitialSize = 32
	}
	if o.MinSize <= 0 {
		o.MinSize = 1
	}
	if o.MaxInputTokens <= 0 {
		o.MaxInputTokens = 8192
	}
	return o
}

// EmbedAdaptive embeds texts, preserving their original order in the
// returned slice regardless of the internal batching strategy.
//
// When opts.Auto is false, texts are embedded in fixed-size batches.
//
// When opts.Auto is true, texts are sorted by character length ascending
// and grouped into buckets whose length spread stays within 1/4 of
// MaxInputTokens; each bucket picks an initial batch size scaled down for
// long texts, and on a provider failure the batch is halved (down to
// MinSize) and retried before giving up.
func EmbedAdaptive(ctx context.Context, e embedder.Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	opts = opts.withDefaults()

	if !opts.Auto {
		return embedFixed(ctx, e, texts, opts.FixedSize)
	}
	return embedAutoBatched(ctx, e, texts, opts)
}

func embedFixed(ctx context.Context, e embedder.Embedder, texts []string, size int) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d,%d): %w", start, end, err)
		}
		copy(out[start:end], vecs)
	}
	return out, nil
}

type indexedText struct {
	idx  int
	text string
}

func embedAutoBatched(ctx context.Context, e embedder.Embedder, texts []string, opts BatchOptions) ([][]float32, error) {
	indexed := make([]indexedText, len(texts))
	for i, t := range texts {
		indexed[i] = indexedText{idx: i, text: t}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return len(indexed[i].text) < len(indexed[j].text)
	})

	spread := opts.MaxInputTokens / 4
	if spread <= 0 {
		spread = 1
	}

	out := make([][]float32, len(texts))
	i := 0
	for i < len(indexed) {
		j := i + 1
		baseLen := len(indexed[i].text)
		for j < len(indexed) && len(indexed[j].text)-baseLen <= spread {
			j++
		}
		bucket := indexed[i:j]

		bsz := adaptiveBatchSize(baseLen, opts)
		if err := embedBucket(ctx, e, bucket, bsz, opts.MinSize, out); err != nil {
			return nil, err
		}
		i = j
	}
	return out, nil
}

// adaptiveBatchSize implements bsz = clamp(round(initial / max(len/L, 0.1)), min, initial).
func adaptiveBatchSize(length int, opts BatchOptions) int {
	ratio := float64(length) / float64(opts.MaxInputTokens)
	if ratio < 0.1 {
		ratio = 0.1
	}
	bsz := int(float64(opts.InitialSize)/ratio + 0.5)
	if bsz > opts.InitialSize {
		bsz = opts.InitialSize
	}
	if bsz < opts.MinSize {
		bsz = opts.MinSize
	}
	return bsz
}

// embedBucket embeds one length bucket at the given starting batch size,
// halving on failure down to minSize; if minSize itself fails, the error
// is wrapped and returned.
func embedBucket(ctx context.Context, e embedder.Embedder, bucket []indexedText, bsz, minSize int, out [][]float32) error {
	for start := 0; start < len(bucket); {
		size := bsz
		if start+size > len(bucket) {
			size = len(bucket) - start
		}

		slice := bucket[start : start+size]
		texts := make([]string, len(slice))
		for k, it := range slice {
			texts[k] = it.text
		}

		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			if size > minSize {
				bsz = size / 2
				if bsz < minSize {
					bsz = minSize
				}
				continue
			}
			return fmt.Errorf("auto-batch failed at minimum: %w", err)
		}

		for k, it := range slice {
			out[it.idx] = vecs[k]
		}
		start += size
	}
	return nil
}
