// Package scoringtest provides an in-memory participant store for exercising
// the scoring engine without Postgres.
package scoringtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/scoring"
)

type participantKey struct {
	contestID uuid.UUID
	userID    uuid.UUID
}

type memEntry struct {
	mu sync.Mutex
	p  *model.ContestParticipant
}

// MemoryStore is a scoring.ParticipantStore with one lock per participant.
type MemoryStore struct {
	entries *xsync.MapOf[participantKey, *memEntry]
}

var _ scoring.ParticipantStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: xsync.NewMapOf[participantKey, *memEntry]()}
}

// Register adds an empty participant record.
func (s *MemoryStore) Register(contestID, userID uuid.UUID, at time.Time) (*model.ContestParticipant, error) {
	p := &model.ContestParticipant{
		ContestID:    contestID,
		UserID:       userID,
		Problems:     make(model.Cells),
		RegisteredAt: at,
	}
	_, loaded := s.entries.LoadOrStore(participantKey{contestID, userID}, &memEntry{p: p})
	if loaded {
		return nil, scoring.ErrAlreadyRegistered
	}
	return p.Clone(), nil
}

// Get returns a copy of the participant record.
func (s *MemoryStore) Get(contestID, userID uuid.UUID) (*model.ContestParticipant, bool) {
	e, ok := s.entries.Load(participantKey{contestID, userID})
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Clone(), true
}

func (s *MemoryStore) Mutate(_ context.Context, contestID, userID uuid.UUID, fn scoring.MutateFunc) (*model.ContestParticipant, bool, error) {
	e, ok := s.entries.Load(participantKey{contestID, userID})
	if !ok {
		return nil, false, scoring.ErrNotRegistered
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.p.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return e.p.Clone(), false, nil
	}
	next.Version++
	e.p = next
	return next.Clone(), true, nil
}

// Standings returns the contest's participants ordered by score descending,
// then earlier finish time. Participants without a finish time sort last,
// matching the leaderboard query.
func (s *MemoryStore) Standings(contestID uuid.UUID) []*model.ContestParticipant {
	var out []*model.ContestParticipant
	s.entries.Range(func(k participantKey, e *memEntry) bool {
		if k.contestID == contestID {
			e.mu.Lock()
			out = append(out, e.p.Clone())
			e.mu.Unlock()
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.FinishTime == nil && b.FinishTime == nil:
			return a.UserID.String() < b.UserID.String()
		case a.FinishTime == nil:
			return false
		case b.FinishTime == nil:
			return true
		case !a.FinishTime.Equal(*b.FinishTime):
			return a.FinishTime.Before(*b.FinishTime)
		}
		return a.UserID.String() < b.UserID.String()
	})
	return out
}
