package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Cell is the scoring state of one (participant, problem) pair.
type Cell struct {
	Verdict  Verdict    `json:"verdict"`
	Attempts int        `json:"attempts"`
	SolvedAt *time.Time `json:"solved_at,omitempty"`
}

// Cells maps a problem to its cell. It is encoded as a list of
// {problem_id, verdict, attempts, solved_at} entries ordered by problem id.
type Cells map[uuid.UUID]Cell

// CellEntry is the wire form of one cell.
type CellEntry struct {
	ProblemID uuid.UUID  `json:"problem_id"`
	Verdict   Verdict    `json:"verdict"`
	Attempts  int        `json:"attempts"`
	SolvedAt  *time.Time `json:"solved_at,omitempty"`
}

// Entries returns the cells ordered by problem id.
func (c Cells) Entries() []CellEntry {
	out := make([]CellEntry, 0, len(c))
	for id, cell := range c {
		out = append(out, CellEntry{ProblemID: id, Verdict: cell.Verdict, Attempts: cell.Attempts, SolvedAt: cell.SolvedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].ProblemID[:], out[j].ProblemID[:]) < 0
	})
	return out
}

func (c Cells) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Entries())
}

func (c *Cells) UnmarshalJSON(data []byte) error {
	var entries []CellEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := make(Cells, len(entries))
	for _, e := range entries {
		if _, dup := out[e.ProblemID]; dup {
			return fmt.Errorf("duplicate cell for problem %s", e.ProblemID)
		}
		out[e.ProblemID] = Cell{Verdict: e.Verdict, Attempts: e.Attempts, SolvedAt: e.SolvedAt}
	}
	*c = out
	return nil
}

// ContestParticipant is a user's registration and running score in a contest.
type ContestParticipant struct {
	ContestID    uuid.UUID  `json:"contest_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Score        int        `json:"score"`
	FinishTime   *time.Time `json:"finish_time,omitempty"`
	Problems     Cells      `json:"problems"`
	Version      int64      `json:"-"`
	RegisteredAt time.Time  `json:"registered_at"`
}

// Clone returns a deep copy safe to mutate.
func (p *ContestParticipant) Clone() *ContestParticipant {
	cp := *p
	cp.Problems = make(Cells, len(p.Problems))
	for id, cell := range p.Problems {
		if cell.SolvedAt != nil {
			t := *cell.SolvedAt
			cell.SolvedAt = &t
		}
		cp.Problems[id] = cell
	}
	if p.FinishTime != nil {
		t := *p.FinishTime
		cp.FinishTime = &t
	}
	return &cp
}

// ParticipantUpdate is broadcast after every scoring change. It always
// carries the full participant record so receivers can apply updates in any order.
type ParticipantUpdate struct {
	ContestID   uuid.UUID           `json:"contest_id"`
	UserID      uuid.UUID           `json:"user_id"`
	Score       int                 `json:"score"`
	Participant *ContestParticipant `json:"participant"`
}

// LeaderboardEntry is one ranked row of a contest leaderboard.
type LeaderboardEntry struct {
	Rank        int        `json:"rank"`
	UserID      uuid.UUID  `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Score       int        `json:"score"`
	FinishTime  *time.Time `json:"finish_time,omitempty"`
	Problems    Cells      `json:"problems"`
}
