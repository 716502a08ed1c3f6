package corpus

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

// requiredColumns are the export columns the loader depends on. parent marks
// reply rows: zero means top-level, anything else is a comment and dropped.
var requiredColumns = []string{"id", "userid", "userfullname", "message", "parent"}

// CSVLoader parses Moodle-style forum CSV exports into ordered top-level
// posts. Loading is deterministic for identical input bytes.
type CSVLoader struct{}

// NewCSVLoader constructs the loader.
func NewCSVLoader() *CSVLoader {
	return &CSVLoader{}
}

// Load reads the export, drops reply rows, normalizes message whitespace, and
// preserves source row order.
func (l *CSVLoader) Load(r io.Reader) ([]domain.Post, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Wrap("malformed_input", "forum export has no header row", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, apperrors.Wrap("malformed_input", "forum export missing required column "+name, nil)
		}
	}

	var posts []domain.Post
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap("malformed_input", "failed to parse forum export row", err)
		}
		if !isTopLevel(field(row, columns["parent"])) {
			continue
		}
		id, err := strconv.ParseInt(field(row, columns["id"]), 10, 64)
		if err != nil {
			return nil, apperrors.Wrap("malformed_input", "forum export row has non-numeric id", err)
		}
		userID, err := strconv.ParseInt(field(row, columns["userid"]), 10, 64)
		if err != nil {
			return nil, apperrors.Wrap("malformed_input", "forum export row has non-numeric userid", err)
		}
		posts = append(posts, domain.Post{
			ID:           id,
			UserID:       userID,
			UserFullName: field(row, columns["userfullname"]),
			Message:      Normalize(field(row, columns["message"])),
		})
	}
	return posts, nil
}

// Normalize collapses every whitespace run into a single space and strips
// leading/trailing whitespace. Normalize is idempotent.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isTopLevel reports whether the parent cell marks a top-level post. Reply
// rows carry the parent post id; exports sometimes render it as a float.
func isTopLevel(parent string) bool {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		return false
	}
	value, err := strconv.ParseFloat(parent, 64)
	if err != nil {
		return false
	}
	return value == 0
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

var _ domain.CorpusLoader = (*CSVLoader)(nil)
