package metrics

// BuildStats captures the cost of one inference build batch.
type BuildStats struct {
	Posts      int   `json:"posts"`
	Questions  int   `json:"questions"`
	Pairs      int   `json:"pairs"`
	DurationMs int64 `json:"durationMs"`
}

// IsZero reports whether stats data is absent.
func (s BuildStats) IsZero() bool {
	return s.Posts == 0 && s.Questions == 0 && s.Pairs == 0 && s.DurationMs == 0
}
