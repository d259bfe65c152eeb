// Package domain defines the mover lifecycle, item catalogue and mission leaderboard.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"example.com/transporter/internal/observability"
)

const (
	defaultMaxAttempts      = 5
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	defaultAppendTimeout    = 5 * time.Second
)

// WarningActivityLogUnavailable is attached to a transition result when the
// mover update committed but its activity log entry could not be appended.
const WarningActivityLogUnavailable = "activity log entry could not be recorded"

// LoadedMover is a mover whose loaded item ids are resolved to full items.
type LoadedMover struct {
	Mover
	Items []Item
	// Warnings carries non-fatal problems that happened after the commit.
	Warnings []string
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger used to report post-commit warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxAttempts bounds how many times a transition is retried after losing
// a version race before ErrVersionConflict is returned.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLeaderboardLimits overrides the default and maximum leaderboard size.
func WithLeaderboardLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates item, mover and mission workflows.
type Service struct {
	items         ItemRepository
	movers        MoverRepository
	activity      ActivityLog
	logger        *slog.Logger
	maxAttempts   int
	defaultLimit  int
	maxLimit      int
	appendTimeout time.Duration
	now           func() time.Time
}

// NewService constructs a Service.
func NewService(items ItemRepository, movers MoverRepository, activity ActivityLog, opts ...Option) *Service {
	s := &Service{
		items:         items,
		movers:        movers,
		activity:      activity,
		logger:        slog.Default(),
		maxAttempts:   defaultMaxAttempts,
		defaultLimit:  defaultLeaderboardLimit,
		maxLimit:      maxLeaderboardLimit,
		appendTimeout: defaultAppendTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItem validates and stores a new item.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (*Item, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	item := Item{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Weight:    input.Weight,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns all items, newest first.
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.items.ListItems(ctx)
}

// CreateMover validates and stores a new resting mover.
func (s *Service) CreateMover(ctx context.Context, input CreateMoverInput) (*Mover, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	mover := Mover{
		ID:          uuid.NewString(),
		WeightLimit: input.WeightLimit,
		QuestState:  QuestStateResting,
		LoadedItems: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.movers.CreateMover(ctx, mover); err != nil {
		return nil, err
	}
	return &mover, nil
}

// ListMovers returns all movers, newest first.
func (s *Service) ListMovers(ctx context.Context) ([]Mover, error) {
	return s.movers.ListMovers(ctx)
}

// LoadItems adds itemIDs to the mover's cargo and moves it to loading.
// Loading is additive: ids already on board are ignored. The weight limit is
// checked against the whole resulting set before anything is written.
func (s *Service) LoadItems(ctx context.Context, moverID string, itemIDs []string) (*LoadedMover, error) {
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: item_ids must not be empty", ErrValidation)
	}
	for _, id := range itemIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: invalid item id %q", ErrValidation, id)
		}
	}

	var resolved []Item
	mover, err := s.transition(ctx, moverID, ActivityLoading, func(m *Mover) error {
		if err := m.canLoad(); err != nil {
			return err
		}
		union := unionItemIDs(m.LoadedItems, itemIDs)
		items, err := s.resolveItems(ctx, union)
		if err != nil {
			return err
		}
		if total := totalWeight(items); total > m.WeightLimit {
			return fmt.Errorf("%w: %g exceeds limit %g", ErrWeightLimitExceeded, total, m.WeightLimit)
		}
		m.LoadedItems = union
		m.QuestState = QuestStateLoading
		resolved = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &LoadedMover{Mover: *mover, Items: resolved}
	s.appendActivity(ctx, result, ActivityLoading, mover.LoadedItems)
	return result, nil
}

// StartMission sends the mover out with whatever it currently carries.
func (s *Service) StartMission(ctx context.Context, moverID string) (*LoadedMover, error) {
	var resolved []Item
	mover, err := s.transition(ctx, moverID, ActivityStartMission, func(m *Mover) error {
		if err := m.canStartMission(); err != nil {
			return err
		}
		items, err := s.resolveItems(ctx, m.LoadedItems)
		if err != nil {
			return err
		}
		m.QuestState = QuestStateOnMission
		resolved = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &LoadedMover{Mover: *mover, Items: resolved}
	s.appendActivity(ctx, result, ActivityStartMission, mover.LoadedItems)
	return result, nil
}

// EndMission returns the mover to resting and unloads it. The log entry is
// written with the post-unload snapshot, which is always empty.
func (s *Service) EndMission(ctx context.Context, moverID string) (*LoadedMover, error) {
	mover, err := s.transition(ctx, moverID, ActivityEndMission, func(m *Mover) error {
		if err := m.canEndMission(); err != nil {
			return err
		}
		m.QuestState = QuestStateResting
		m.LoadedItems = []string{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &LoadedMover{Mover: *mover, Items: []Item{}}
	s.appendActivity(ctx, result, ActivityEndMission, mover.LoadedItems)
	return result, nil
}

// Leaderboard ranks movers by completed missions. A non-positive limit uses
// the default; larger limits are clamped.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return s.activity.Leaderboard(ctx, limit)
}

// transition runs apply against a fresh copy of the mover and commits it with
// a compare-and-swap on Version, re-reading and re-applying on conflict.
func (s *Service) transition(ctx context.Context, moverID string, kind ActivityType, apply func(*Mover) error) (*Mover, error) {
	if _, err := uuid.Parse(moverID); err != nil {
		return nil, ErrMoverNotFound
	}

	for attempt := 1; ; attempt++ {
		current, err := s.movers.GetMover(ctx, moverID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrMoverNotFound
		}

		next := current.clone()
		if err := apply(&next); err != nil {
			observability.RecordTransitionRejected(string(kind), rejectionReason(err))
			return nil, err
		}
		next.UpdatedAt = s.now()

		err = s.movers.UpdateMover(ctx, next, current.Version)
		if err == nil {
			next.Version = current.Version + 1
			observability.RecordTransition(string(kind))
			return &next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		observability.RecordVersionConflict(string(kind))
		if attempt >= s.maxAttempts {
			return nil, fmt.Errorf("%s after %d attempts: %w", kind, attempt, err)
		}
	}
}

// appendActivity records the committed transition. Failure is reported as a
// warning on result; the mover update is never undone.
func (s *Service) appendActivity(ctx context.Context, result *LoadedMover, kind ActivityType, snapshot []string) {
	entry := ActivityLogEntry{
		ID:            uuid.NewString(),
		MoverID:       result.ID,
		Type:          kind,
		ItemsSnapshot: append([]string{}, snapshot...),
		CreatedAt:     s.now(),
	}
	// The mover change is already committed; a caller going away must not
	// drop its log entry.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.appendTimeout)
	defer cancel()
	if err := s.activity.Append(appendCtx, entry); err != nil {
		s.logger.WarnContext(ctx, "activity log append failed",
			"mover_id", result.ID,
			"activity_type", string(kind),
			"error", err,
		)
		observability.RecordActivityLogFailure(string(kind))
		result.Warnings = append(result.Warnings, WarningActivityLogUnavailable)
		return
	}
	observability.RecordActivityLogged(entry.CreatedAt)
}

// resolveItems loads ids and returns them in the same order. Missing ids fail
// with ErrItemNotFound.
func (s *Service) resolveItems(ctx context.Context, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return []Item{}, nil
	}
	found, err := s.items.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		out = append(out, item)
	}
	return out, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrWeightLimitExceeded):
		return "weight_limit"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
