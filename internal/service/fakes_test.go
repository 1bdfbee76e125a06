package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veriloglab/judge-backend/internal/events"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/scoring"
	"github.com/veriloglab/judge-backend/internal/scoring/scoringtest"
)

type fakeJudge struct {
	mu     sync.Mutex
	result *sandbox.Result
	calls  []sandbox.Request
}

func (j *fakeJudge) Run(_ context.Context, req sandbox.Request) *sandbox.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, req)
	return j.result
}

type fakeProblems struct {
	problems map[uuid.UUID]*model.Problem
	attempts map[uuid.UUID]int
	solved   map[uuid.UUID]int
}

func newFakeProblems(ps ...*model.Problem) *fakeProblems {
	f := &fakeProblems{
		problems: make(map[uuid.UUID]*model.Problem),
		attempts: make(map[uuid.UUID]int),
		solved:   make(map[uuid.UUID]int),
	}
	for _, p := range ps {
		f.problems[p.ID] = p
	}
	return f
}

func (f *fakeProblems) GetByID(_ context.Context, id uuid.UUID) (*model.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (f *fakeProblems) IncrementCounters(_ context.Context, id uuid.UUID, solved bool) error {
	f.attempts[id]++
	if solved {
		f.solved[id]++
	}
	return nil
}

type fakeStages map[uuid.UUID]*model.Stage

func (f fakeStages) GetByID(_ context.Context, id uuid.UUID) (*model.Stage, error) {
	s, ok := f[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

type fakeSubmissions struct {
	rows map[uuid.UUID]*model.Submission
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{rows: make(map[uuid.UUID]*model.Submission)}
}

func (f *fakeSubmissions) CreatePending(_ context.Context, s *model.Submission) error {
	s.ID = uuid.New()
	s.Verdict = model.VerdictPending
	s.CreatedAt = time.Now()
	cp := *s
	f.rows[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) Finalize(_ context.Context, id uuid.UUID, v model.Verdict, points int, raw string, at time.Time) (bool, error) {
	s, ok := f.rows[id]
	if !ok || s.Verdict != model.VerdictPending {
		return false, nil
	}
	s.Verdict, s.PointsEarned, s.RawOutput, s.JudgedAt = v, points, raw, &at
	return true, nil
}

func (f *fakeSubmissions) DiscardPending(_ context.Context, id uuid.UUID) error {
	if s, ok := f.rows[id]; ok && s.Verdict == model.VerdictPending {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeSubmissions) Review(_ context.Context, id, reviewerID uuid.UUID, v model.Verdict, points int, notes string, at time.Time) (*model.Submission, error) {
	s, ok := f.rows[id]
	if !ok || s.ReviewerID != nil || s.Verdict == model.VerdictPending {
		return nil, pgx.ErrNoRows
	}
	s.Verdict, s.PointsEarned = v, points
	s.ReviewerID, s.ReviewNotes, s.ReviewedAt = &reviewerID, &notes, &at
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id uuid.UUID) (*model.Submission, error) {
	s, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) ListByAuthor(_ context.Context, authorID uuid.UUID, _, _ int) ([]model.Submission, int64, error) {
	var out []model.Submission
	for _, s := range f.rows {
		if s.AuthorID == authorID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSubmissions) HasOtherAccepted(_ context.Context, authorID, problemID, exclude uuid.UUID) (bool, error) {
	for _, s := range f.rows {
		if s.ID != exclude && s.AuthorID == authorID && s.ProblemID == problemID && s.Verdict == model.VerdictAccepted {
			return true, nil
		}
	}
	return false, nil
}

type fakeUsers struct {
	names  map[uuid.UUID]string
	points map[uuid.UUID]int
	solved map[uuid.UUID]map[uuid.UUID]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		names:  make(map[uuid.UUID]string),
		points: make(map[uuid.UUID]int),
		solved: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (f *fakeUsers) Ensure(_ context.Context, id uuid.UUID, username string) error {
	if _, ok := f.names[id]; !ok {
		f.names[id] = username
	}
	return nil
}

func (f *fakeUsers) AwardOnce(_ context.Context, userID, problemID uuid.UUID, points int) (bool, error) {
	if f.solved[userID] == nil {
		f.solved[userID] = make(map[uuid.UUID]bool)
	}
	if f.solved[userID][problemID] {
		return false, nil
	}
	f.solved[userID][problemID] = true
	f.points[userID] += points
	return true, nil
}

func (f *fakeUsers) RevokeOnce(_ context.Context, userID, problemID uuid.UUID, points int) (bool, error) {
	if !f.solved[userID][problemID] {
		return false, nil
	}
	delete(f.solved[userID], problemID)
	f.points[userID] = max(0, f.points[userID]-points)
	return true, nil
}

func (f *fakeUsers) Top(context.Context, int) ([]model.UserStanding, error) {
	var out []model.UserStanding
	for id, p := range f.points {
		out = append(out, model.UserStanding{UserID: id, Username: f.names[id], TotalPoints: p})
	}
	return out, nil
}

type fakeScores struct {
	updated []*model.ContestParticipant
	err     error
	calls   int
	at      time.Time
}

func (f *fakeScores) Record(_ context.Context, _, _ uuid.UUID, _ model.Verdict, at time.Time) ([]*model.ContestParticipant, error) {
	f.calls++
	f.at = at
	return f.updated, f.err
}

type fakeQueue struct {
	jobs []model.ScoringJob
}

func (q *fakeQueue) Enqueue(_ context.Context, job model.ScoringJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeJudgedPublisher struct {
	events []events.SubmissionJudgedEvent
}

func (p *fakeJudgedPublisher) PublishJudged(_ context.Context, ev events.SubmissionJudgedEvent) error {
	p.events = append(p.events, ev)
	return nil
}

type fakeContests struct {
	contests map[uuid.UUID]*model.Contest
}

func (f *fakeContests) Create(_ context.Context, c *model.Contest) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	f.contests[c.ID] = c
	return nil
}

func (f *fakeContests) GetByID(_ context.Context, id uuid.UUID) (*model.Contest, error) {
	c, ok := f.contests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeContests) List(context.Context, int, int) ([]model.Contest, int64, error) {
	var out []model.Contest
	for _, c := range f.contests {
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

type fakeParticipants struct {
	store *scoringtest.MemoryStore
}

func (f *fakeParticipants) Register(_ context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error) {
	return f.store.Register(contestID, userID, time.Now())
}

func (f *fakeParticipants) Get(_ context.Context, contestID, userID uuid.UUID) (*model.ContestParticipant, error) {
	p, ok := f.store.Get(contestID, userID)
	if !ok {
		return nil, scoring.ErrNotRegistered
	}
	return p, nil
}

func (f *fakeParticipants) Leaderboard(_ context.Context, contestID uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	var out []model.LeaderboardEntry
	for i, p := range f.store.Standings(contestID) {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, model.LeaderboardEntry{Rank: i + 1, UserID: p.UserID, Score: p.Score, FinishTime: p.FinishTime, Problems: p.Problems})
	}
	return out, nil
}
