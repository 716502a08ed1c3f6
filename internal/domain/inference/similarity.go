package inference

import (
	"math"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

// RankOptions tunes similarity ranking behavior.
type RankOptions struct {
	// IncludeBaseline keeps the baseline post in the result set (it scores
	// 1.0 against itself and passes any threshold below that). This matches
	// the historical behavior; callers can opt out.
	IncludeBaseline bool
}

// Cosine computes the cosine similarity dot(a,b)/(|a|*|b|). Vectors of
// different lengths fail with dimension_mismatch; a zero-norm vector makes
// the similarity undefined and fails with invalid_input.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.Wrap("dimension_mismatch", "embedding lengths differ", nil)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, apperrors.Wrap("invalid_input", "cosine similarity undefined for zero-norm embedding", nil)
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Rank compares every post's answer embedding for question against the
// baseline post's and returns the posts whose similarity strictly exceeds
// threshold. Posts are visited in the artifact's deterministic id order so
// repeated calls produce identical results.
func Rank(artifact Artifact, question, basePostID string, threshold float64, opts RankOptions) (map[string]Relation, error) {
	questionInd := artifact.QuestionIndex(question)
	if questionInd < 0 {
		return nil, apperrors.Wrap("unknown_question", "question was not part of the inference batch", nil)
	}
	baseAnswers, ok := artifact.Inferences[basePostID]
	if !ok {
		return nil, apperrors.Wrap("unknown_post", "baseline post id not present in artifact", nil)
	}
	baseEmbedding := baseAnswers[questionInd].AnswerEmbedding

	relations := make(map[string]Relation)
	for _, postID := range artifact.PostIDs() {
		if postID == basePostID && !opts.IncludeBaseline {
			continue
		}
		answers := artifact.Inferences[postID]
		similarity, err := Cosine(baseEmbedding, answers[questionInd].AnswerEmbedding)
		if err != nil {
			return nil, err
		}
		if similarity > threshold {
			relations[postID] = Relation{PostID: postID, Similarity: similarity}
		}
	}
	return relations, nil
}
