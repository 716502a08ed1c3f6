package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

func TestLexicalExtractPicksBestSentence(t *testing.T) {
	passage := "I went hiking yesterday. The sky was a deep blue all afternoon. We got home late."

	answer, err := NewLexicalExtractor().Extract(context.Background(), "What color was the sky?", passage)
	require.NoError(t, err)
	require.Equal(t, "The sky was a deep blue all afternoon.", answer.Text)
	require.Equal(t, passage[answer.Start:answer.End], answer.Text)
}

func TestLexicalExtractOffsetsExclusive(t *testing.T) {
	passage := "Hello world."

	answer, err := NewLexicalExtractor().Extract(context.Background(), "anything", passage)
	require.NoError(t, err)
	require.Equal(t, 0, answer.Start)
	require.Equal(t, len(passage), answer.End)
	require.Equal(t, passage, answer.Text)
}

func TestLexicalExtractEmptyPassage(t *testing.T) {
	_, err := NewLexicalExtractor().Extract(context.Background(), "question", "   ")
	require.Error(t, err)
	require.True(t, apperrors.IsCode(err, "invalid_input"))
}

func TestLexicalExtractNoTerminator(t *testing.T) {
	passage := "a single fragment with no punctuation"

	answer, err := NewLexicalExtractor().Extract(context.Background(), "fragment", passage)
	require.NoError(t, err)
	require.Equal(t, passage, answer.Text)
}
