package inference

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Forum is one uploaded discussion dump. It owns its source blob and at most
// one inference artifact.
type Forum struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Post is a single top-level forum entry derived from the source blob.
// Posts are never persisted on their own.
type Post struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	UserFullName string `json:"user_full_name"`
	Message      string `json:"message"`
}

// AnswerRecord holds the extracted answer for one (post, question) pair along
// with its embedding. StartInd/EndInd are character offsets into the
// normalized post message, EndInd exclusive.
type AnswerRecord struct {
	Answer          string    `json:"answer"`
	StartInd        int       `json:"start_ind"`
	EndInd          int       `json:"end_ind"`
	AnswerEmbedding []float32 `json:"answer_embedding"`
}

// Artifact is the complete inference batch for one forum. The JSON shape is a
// durable contract: previously written artifacts must stay readable. For every
// post id key, the answer slice is aligned index-for-index with Questions.
type Artifact struct {
	Questions  []string                  `json:"questions"`
	Inferences map[string][]AnswerRecord `json:"inferences"`
}

// PostIDs returns the artifact's post ids in a deterministic order: numeric
// ids ascending, then any non-numeric ids lexically. Build writes posts in
// source order with numeric ids, so this reconstructs that order after a
// round trip through JSON.
func (a Artifact) PostIDs() []string {
	ids := make([]string, 0, len(a.Inferences))
	for id := range a.Inferences {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, errI := strconv.ParseInt(ids[i], 10, 64)
		nj, errJ := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// QuestionIndex returns the position of question in Questions, or -1.
func (a Artifact) QuestionIndex(question string) int {
	for i, q := range a.Questions {
		if q == question {
			return i
		}
	}
	return -1
}

// Relation is one similarity result relative to the baseline post.
type Relation struct {
	PostID     string  `json:"post_id"`
	Similarity float64 `json:"similarity"`
}
