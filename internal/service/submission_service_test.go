package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/sandbox"
	"github.com/veriloglab/judge-backend/internal/scoring"
	"github.com/veriloglab/judge-backend/internal/verdict"
)

type submissionFixture struct {
	svc         *SubmissionService
	judge       *fakeJudge
	problems    *fakeProblems
	submissions *fakeSubmissions
	users       *fakeUsers
	scores      *fakeScores
	queue       *fakeQueue
	published   *fakeJudgedPublisher
	problem     *model.Problem
}

func newSubmissionFixture(t *testing.T, res *sandbox.Result) *submissionFixture {
	t.Helper()
	f := &submissionFixture{
		judge:       &fakeJudge{result: res},
		submissions: newFakeSubmissions(),
		users:       newFakeUsers(),
		scores:      &fakeScores{},
		queue:       &fakeQueue{},
		published:   &fakeJudgedPublisher{},
		problem:     &model.Problem{ID: uuid.New(), Title: "Half adder", Testbench: "module tb; endmodule", Points: 30},
	}
	f.problems = newFakeProblems(f.problem)
	f.svc = NewSubmissionService(SubmissionDeps{
		Judge:       f.judge,
		Classifier:  verdict.New(""),
		Problems:    f.problems,
		Submissions: f.submissions,
		Users:       f.users,
		Scores:      f.scores,
		Reconcile:   f.queue,
		Publisher:   f.published,
	}, zerolog.Nop())
	return f
}

func passing() *sandbox.Result {
	return &sandbox.Result{OK: true, Output: "all checks passed\n", Duration: 40 * time.Millisecond}
}

func TestSubmitAccepted(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	user := uuid.New()

	resp, err := f.svc.Submit(context.Background(), user, "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "module dut; endmodule"})
	require.NoError(t, err)

	assert.Equal(t, model.VerdictAccepted, resp.Verdict)
	assert.Equal(t, 30, resp.PointsEarned)
	assert.Equal(t, "all checks passed\n", resp.RawOutput)

	row := f.submissions.rows[resp.SubmissionID]
	require.NotNil(t, row)
	assert.Equal(t, model.VerdictAccepted, row.Verdict)
	assert.NotNil(t, row.JudgedAt)

	assert.Equal(t, 30, f.users.points[user])
	assert.Equal(t, 1, f.problems.attempts[f.problem.ID])
	assert.Equal(t, 1, f.problems.solved[f.problem.ID])

	assert.Equal(t, 1, f.scores.calls)
	assert.Equal(t, row.CreatedAt, f.scores.at)
	assert.Empty(t, f.queue.jobs)

	require.Len(t, f.published.events, 1)
	assert.Equal(t, "accepted", f.published.events[0].Verdict)

	require.Len(t, f.judge.calls, 1)
	assert.Equal(t, f.problem.Testbench, f.judge.calls[0].Testbench)
	assert.False(t, f.judge.calls[0].WantTrace)
}

func TestSubmitRejectedByMarker(t *testing.T) {
	f := newSubmissionFixture(t, &sandbox.Result{OK: true, Output: "FAIL: sum mismatch\n"})
	user := uuid.New()

	resp, err := f.svc.Submit(context.Background(), user, "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRejected, resp.Verdict)
	assert.Zero(t, resp.PointsEarned)
	assert.Zero(t, f.users.points[user])
	assert.Zero(t, f.problems.solved[f.problem.ID])
}

func TestSubmitRejectedByMarkerPastTruncation(t *testing.T) {
	f := newSubmissionFixture(t, &sandbox.Result{OK: true, Output: "xxxx\n... output truncated", MarkerSeen: true})
	user := uuid.New()

	resp, err := f.svc.Submit(context.Background(), user, "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRejected, resp.Verdict)
	assert.Zero(t, f.users.points[user])
}

func TestSubmitBusyJudgeChargesNothing(t *testing.T) {
	f := newSubmissionFixture(t, &sandbox.Result{Kind: sandbox.KindSystemError, Output: "System Error:\njudge queue is full", Busy: true})
	user := uuid.New()

	resp, err := f.svc.Submit(context.Background(), user, "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	assert.ErrorIs(t, err, ErrJudgeBusy)
	assert.Nil(t, resp)

	assert.Empty(t, f.submissions.rows)
	assert.Zero(t, f.problems.attempts[f.problem.ID])
	assert.Zero(t, f.scores.calls)
	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.published.events)
}

func TestSubmitRejectsCompileError(t *testing.T) {
	f := newSubmissionFixture(t, &sandbox.Result{Output: "Compilation Error:\ndut.v:1: syntax error", Kind: sandbox.KindCompileError})

	resp, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictRejected, resp.Verdict)
	assert.Contains(t, resp.RawOutput, "Compilation Error")
}

func TestSubmitMissingTestbenchWritesNothing(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	f.problem.Testbench = "  \n"

	_, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	assert.ErrorIs(t, err, ErrMissingTestbench)
	assert.Empty(t, f.submissions.rows)
	assert.Empty(t, f.judge.calls)
}

func TestSubmitUnknownProblem(t *testing.T) {
	f := newSubmissionFixture(t, passing())

	_, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: uuid.New(), SourceCode: "x"})
	assert.ErrorIs(t, err, ErrProblemNotFound)
}

func TestSubmitQueuesFailedContests(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	failed := uuid.New()
	f.scores.err = &scoring.RecordError{Failed: []uuid.UUID{failed}, Err: scoring.ErrConflict}

	resp, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictAccepted, resp.Verdict)

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, resp.SubmissionID, job.SubmissionID)
	assert.Equal(t, []uuid.UUID{failed}, job.ContestIDs)
	assert.Equal(t, model.VerdictAccepted, job.Verdict)
	assert.NotEmpty(t, job.LastError)
}

func TestSubmitQueuesWholeRecordOnLookupFailure(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	f.scores.err = errors.New("find live contests: connection reset")

	_, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	require.Len(t, f.queue.jobs, 1)
	assert.Empty(t, f.queue.jobs[0].ContestIDs)
}

func TestSubmitReportsUpdatedContests(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	contestID := uuid.New()
	f.scores.updated = []*model.ContestParticipant{{ContestID: contestID}}

	_, err := f.svc.Submit(context.Background(), uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	require.Len(t, f.published.events, 1)
	assert.Equal(t, []string{contestID.String()}, f.published.events[0].ContestIDs)
}

func TestSubmitSurvivesCancelledRequest(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.svc.Submit(ctx, uuid.New(), "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictAccepted, f.submissions.rows[resp.SubmissionID].Verdict)
}

func judgedSubmission(t *testing.T, f *submissionFixture, user uuid.UUID) uuid.UUID {
	t.Helper()
	resp, err := f.svc.Submit(context.Background(), user, "ada", model.SubmitRequest{ProblemID: f.problem.ID, SourceCode: "x"})
	require.NoError(t, err)
	return resp.SubmissionID
}

func TestReviewOverridesOnce(t *testing.T) {
	f := newSubmissionFixture(t, &sandbox.Result{OK: true, Output: "FAIL\n"})
	user := uuid.New()
	id := judgedSubmission(t, f, user)

	sub, err := f.svc.Review(context.Background(), uuid.New(), id, model.ReviewRequest{Verdict: model.VerdictAccepted, Notes: "marker printed by a debug line"})
	require.NoError(t, err)
	assert.Equal(t, model.VerdictAccepted, sub.Verdict)
	assert.Equal(t, 30, sub.PointsEarned)
	assert.Equal(t, 30, f.users.points[user])

	_, err = f.svc.Review(context.Background(), uuid.New(), id, model.ReviewRequest{Verdict: model.VerdictRejected})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Equal(t, 30, f.users.points[user])
}

func TestReviewRevokesOnlyWithoutOtherAcceptance(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	user := uuid.New()
	first := judgedSubmission(t, f, user)
	second := judgedSubmission(t, f, user)
	require.Equal(t, 30, f.users.points[user])

	_, err := f.svc.Review(context.Background(), uuid.New(), first, model.ReviewRequest{Verdict: model.VerdictRejected})
	require.NoError(t, err)
	assert.Equal(t, 30, f.users.points[user], "second submission still accepted")

	_, err = f.svc.Review(context.Background(), uuid.New(), second, model.ReviewRequest{Verdict: model.VerdictRejected})
	require.NoError(t, err)
	assert.Zero(t, f.users.points[user])
}

func TestReviewGuards(t *testing.T) {
	f := newSubmissionFixture(t, passing())

	_, err := f.svc.Review(context.Background(), uuid.New(), uuid.New(), model.ReviewRequest{Verdict: model.VerdictAccepted})
	assert.ErrorIs(t, err, ErrSubmissionNotFound)

	pending := &model.Submission{AuthorID: uuid.New(), ProblemID: f.problem.ID}
	require.NoError(t, f.submissions.CreatePending(context.Background(), pending))
	_, err = f.svc.Review(context.Background(), uuid.New(), pending.ID, model.ReviewRequest{Verdict: model.VerdictAccepted})
	assert.ErrorIs(t, err, ErrNotJudged)
}

func TestHistory(t *testing.T) {
	f := newSubmissionFixture(t, passing())
	user := uuid.New()
	judgedSubmission(t, f, user)
	judgedSubmission(t, f, uuid.New())

	subs, total, err := f.svc.History(context.Background(), user, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, subs, 1)
	assert.Equal(t, user, subs[0].AuthorID)
}
