package orchestrator

import (
	"sort"

	"github.com/Aman-CERP/hybridstore/internal/chunkmodel"
)

// FusionWeights controls the hybrid fusion formula: combined = w_text *
// textScore + w_vec * vecScore. Setting w_text=1, w_vec=0 reproduces a
// lexical-only search exactly; w_text=0, w_vec=1 reproduces a vector-only
// search exactly.
type FusionWeights struct {
	Text   float64
	Vector float64
}

// scored tracks per-id score accumulation during fusion.
type scored struct {
	id    string
	score float64
}

// Fuse combines lexical and vector matches into a single ranked id list,
// truncated to topK. Unlike a reciprocal-rank-fusion scheme, the combined
// score is a direct weighted sum of each source's already-normalised
// [0,1) score, not a function of rank position.
func Fuse(text []chunkmodel.TextMatch, vector []chunkmodel.TextMatch, weights FusionWeights, topK int) []scored {
	acc := make(map[string]float64, len(text)+len(vector))

	if weights.Text != 0 {
		for _, m := range text {
			acc[m.ChunkID] += weights.Text * m.Score
		}
	}
	if weights.Vector != 0 {
		for _, m := range vector {
			acc[m.ChunkID] += weights.Vector * m.Score
		}
	}

	results := make([]scored, 0, len(acc))
	for id, s := range acc {
		results = append(results, scored{id: id, score: s})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].id < results[j].id
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
