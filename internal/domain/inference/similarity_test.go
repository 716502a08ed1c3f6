package inference

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

func TestCosineSymmetric(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-2, 0.5, 4}

	ab, err := Cosine(a, b)
	require.NoError(t, err)
	ba, err := Cosine(b, a)
	require.NoError(t, err)
	require.InDelta(t, ab, ba, 1e-12)
}

func TestCosineSelfIsOne(t *testing.T) {
	a := []float32{0.25, -1.5, 3, 0.75}
	got, err := Cosine(a, a)
	require.NoError(t, err)
	require.InDelta(t, 1.0, got, 1e-9)
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "dimension_mismatch"))
}

func TestCosineZeroNorm(t *testing.T) {
	_, err := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func rankFixture() Artifact {
	return Artifact{
		Questions: []string{"What color is the sky?"},
		Inferences: map[string][]AnswerRecord{
			"1": {{Answer: "blue", AnswerEmbedding: []float32{1, 0, 0}}},
			"2": {{Answer: "blue", AnswerEmbedding: []float32{1, 0, 0}}},
			"3": {{Answer: "green", AnswerEmbedding: []float32{0.2, 0.9, 0}}},
		},
	}
}

func TestRankIdenticalEmbeddings(t *testing.T) {
	artifact := rankFixture()

	relations, err := Rank(artifact, "What color is the sky?", "1", 0.99, RankOptions{IncludeBaseline: true})
	require.NoError(t, err)
	require.Contains(t, relations, "2")
	require.InDelta(t, 1.0, relations["2"].Similarity, 1e-9)
	require.NotContains(t, relations, "3")
}

func TestRankIncludesBaselineByDefaultOption(t *testing.T) {
	artifact := rankFixture()

	relations, err := Rank(artifact, "What color is the sky?", "1", 0.5, RankOptions{IncludeBaseline: true})
	require.NoError(t, err)
	require.Contains(t, relations, "1")
	require.InDelta(t, 1.0, relations["1"].Similarity, 1e-9)
}

func TestRankExcludesBaselineWhenOptedOut(t *testing.T) {
	artifact := rankFixture()

	relations, err := Rank(artifact, "What color is the sky?", "1", 0.5, RankOptions{IncludeBaseline: false})
	require.NoError(t, err)
	require.NotContains(t, relations, "1")
	require.Contains(t, relations, "2")
}

func TestRankStrictThreshold(t *testing.T) {
	artifact := rankFixture()

	// Identical vectors score exactly 1.0, which does not strictly exceed 1.0.
	relations, err := Rank(artifact, "What color is the sky?", "1", 1.0, RankOptions{IncludeBaseline: true})
	require.NoError(t, err)
	require.Empty(t, relations)
}

func TestRankThresholdMonotonic(t *testing.T) {
	artifact := rankFixture()

	var prev int
	first := true
	for _, threshold := range []float64{-1, 0, 0.2, 0.5, 0.9, 0.999} {
		relations, err := Rank(artifact, "What color is the sky?", "1", threshold, RankOptions{IncludeBaseline: true})
		require.NoError(t, err)
		if !first {
			require.LessOrEqual(t, len(relations), prev, "raising threshold must never grow the result set")
		}
		prev = len(relations)
		first = false
	}
}

func TestRankUnknownQuestion(t *testing.T) {
	artifact := rankFixture()

	_, err := Rank(artifact, "Who wrote this?", "1", 0.5, RankOptions{IncludeBaseline: true})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "unknown_question"))
}

func TestRankUnknownPost(t *testing.T) {
	artifact := rankFixture()

	_, err := Rank(artifact, "What color is the sky?", "42", 0.5, RankOptions{IncludeBaseline: true})
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "unknown_post"))
}

func TestArtifactPostIDsNumericOrder(t *testing.T) {
	artifact := Artifact{
		Inferences: map[string][]AnswerRecord{
			"10": nil, "2": nil, "1": nil, "30": nil,
		},
	}
	require.Equal(t, []string{"1", "2", "10", "30"}, artifact.PostIDs())
}
