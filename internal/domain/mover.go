package domain

import (
	"context"
	"fmt"
	"math"
	"time"
)

// QuestState is the lifecycle phase of a mover.
type QuestState string

const (
	QuestStateResting   QuestState = "resting"
	QuestStateLoading   QuestState = "loading"
	QuestStateOnMission QuestState = "on-mission"
)

// Valid reports whether s is a known quest state.
func (s QuestState) Valid() bool {
	switch s {
	case QuestStateResting, QuestStateLoading, QuestStateOnMission:
		return true
	}
	return false
}

// Mover is a cargo-carrying unit. LoadedItems holds item ids in load order.
// Version increments on every committed update and guards concurrent writers.
type Mover struct {
	ID          string
	WeightLimit float64
	QuestState  QuestState
	LoadedItems []string
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MoverRepository captures persistence operations for movers.
type MoverRepository interface {
	CreateMover(ctx context.Context, mover Mover) error
	// ListMovers returns every mover, newest first.
	ListMovers(ctx context.Context) ([]Mover, error)
	// GetMover returns nil, nil when the mover does not exist.
	GetMover(ctx context.Context, id string) (*Mover, error)
	// UpdateMover persists quest state, loaded items and UpdatedAt if the stored
	// version still equals expectedVersion, bumping it by one. Otherwise it
	// returns ErrVersionConflict and leaves the record untouched.
	UpdateMover(ctx context.Context, mover Mover, expectedVersion int64) error
}

// CreateMoverInput captures the payload from the API layer.
type CreateMoverInput struct {
	WeightLimit float64
}

// Validate checks the weight limit.
func (in CreateMoverInput) Validate() error {
	if math.IsNaN(in.WeightLimit) || math.IsInf(in.WeightLimit, 0) {
		return fmt.Errorf("%w: weight_limit must be a finite number", ErrValidation)
	}
	if in.WeightLimit < 0 {
		return fmt.Errorf("%w: weight_limit must be >= 0", ErrValidation)
	}
	return nil
}

func (m Mover) clone() Mover {
	out := m
	out.LoadedItems = append([]string(nil), m.LoadedItems...)
	return out
}

func (m Mover) canLoad() error {
	if m.QuestState == QuestStateOnMission {
		return fmt.Errorf("%w: cannot load items while on mission", ErrInvalidState)
	}
	return nil
}

func (m Mover) canStartMission() error {
	if m.QuestState == QuestStateOnMission {
		return fmt.Errorf("%w: already on mission", ErrInvalidState)
	}
	return nil
}

// canEndMission only rejects resting movers; ending from loading is allowed.
func (m Mover) canEndMission() error {
	if m.QuestState == QuestStateResting {
		return fmt.Errorf("%w: no mission to end", ErrInvalidState)
	}
	return nil
}

// unionItemIDs keeps current in order and appends each requested id not seen yet.
func unionItemIDs(current, requested []string) []string {
	seen := make(map[string]struct{}, len(current)+len(requested))
	out := make([]string, 0, len(current)+len(requested))
	for _, ids := range [][]string{current, requested} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
