package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellsEncodeAsOrderedPairs(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	solved := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cells := Cells{
		b: {Verdict: VerdictRejected, Attempts: 2},
		a: {Verdict: VerdictAccepted, Attempts: 1, SolvedAt: &solved},
	}

	raw, err := json.Marshal(cells)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"problem_id":"00000000-0000-0000-0000-00000000000a","verdict":"accepted","attempts":1,"solved_at":"2026-03-01T10:00:00Z"},
		{"problem_id":"00000000-0000-0000-0000-00000000000b","verdict":"rejected","attempts":2}
	]`, string(raw))

	var back Cells
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, cells, back)
}

func TestCellsRejectDuplicateProblem(t *testing.T) {
	raw := `[{"problem_id":"00000000-0000-0000-0000-00000000000a","verdict":"pending","attempts":0},
	         {"problem_id":"00000000-0000-0000-0000-00000000000a","verdict":"accepted","attempts":1}]`
	var cells Cells
	assert.Error(t, json.Unmarshal([]byte(raw), &cells))
}

func TestEmptyCellsEncodeAsEmptyList(t *testing.T) {
	p := ContestParticipant{}
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"problems":[]`)
}

func TestCloneIsDeep(t *testing.T) {
	id := uuid.New()
	now := time.Now()
	p := &ContestParticipant{Score: 5, FinishTime: &now, Problems: Cells{id: {Verdict: VerdictAccepted, Attempts: 1, SolvedAt: &now}}}

	cp := p.Clone()
	cp.Score = 9
	cell := cp.Problems[id]
	cell.Attempts = 7
	cp.Problems[id] = cell
	*cp.FinishTime = now.Add(time.Hour)

	assert.Equal(t, 5, p.Score)
	assert.Equal(t, 1, p.Problems[id].Attempts)
	assert.Equal(t, now, *p.FinishTime)
}

func TestContestWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := &Contest{Status: ContestStatusActive, StartTime: start, EndTime: start.Add(2 * time.Hour)}

	assert.True(t, c.IsLive(start))
	assert.True(t, c.IsLive(start.Add(2*time.Hour)))
	assert.False(t, c.IsLive(start.Add(-time.Second)))
	assert.False(t, c.IsLive(start.Add(2*time.Hour+time.Second)))

	c.Status = ContestStatusEnded
	assert.False(t, c.IsLive(start.Add(time.Hour)))

	assert.Equal(t, ContestStatusUpcoming, c.StatusAt(start.Add(-time.Minute)))
	assert.Equal(t, ContestStatusActive, c.StatusAt(start.Add(time.Minute)))
	assert.Equal(t, ContestStatusEnded, c.StatusAt(start.Add(3*time.Hour)))
}
