// Package events produces the judge's outbound Kafka event stream.
package events

type SubmissionJudgedEvent struct {
	SubmissionID string   `json:"submission_id"`
	UserID       string   `json:"user_id"`
	ProblemID    string   `json:"problem_id"`
	ContestIDs   []string `json:"contest_ids"`
	Verdict      string   `json:"verdict"`
	Points       int      `json:"points"`
	Kind         string   `json:"kind,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
	Timestamp    string   `json:"timestamp"`
}

type LeaderboardUpdatedEvent struct {
	ContestID string `json:"contest_id"`
	UserID    string `json:"user_id"`
	Score     int    `json:"score"`
	Timestamp string `json:"timestamp"`
}

type ContestLifecycleEvent struct {
	ContestID string `json:"contest_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	At        string `json:"at"`
	Timestamp string `json:"timestamp"`
}
