// Package memory provides a map-backed store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/transporter/internal/domain"
)

// Store implements the item, mover and activity log repositories in memory.
// Slices preserve insertion order so listings stay deterministic when
// timestamps collide.
type Store struct {
	mu         sync.RWMutex
	items      map[string]domain.Item
	itemOrder  []string
	movers     map[string]domain.Mover
	moverOrder []string
	activity   []domain.ActivityLogEntry
	// AppendErr, when set, is returned by Append without recording the entry.
	AppendErr error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		items:  make(map[string]domain.Item),
		movers: make(map[string]domain.Mover),
	}
}

// CreateItem implements domain.ItemRepository.
func (s *Store) CreateItem(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; !exists {
		s.itemOrder = append(s.itemOrder, item.ID)
	}
	s.items[item.ID] = item
	return nil
}

// ListItems implements domain.ItemRepository.
func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Item, 0, len(s.itemOrder))
	for i := len(s.itemOrder) - 1; i >= 0; i-- {
		out = append(out, s.items[s.itemOrder[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetItems implements domain.ItemRepository.
func (s *Store) GetItems(ctx context.Context, ids []string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// CreateMover implements domain.MoverRepository.
func (s *Store) CreateMover(ctx context.Context, mover domain.Mover) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.movers[mover.ID]; !exists {
		s.moverOrder = append(s.moverOrder, mover.ID)
	}
	s.movers[mover.ID] = cloneMover(mover)
	return nil
}

// ListMovers implements domain.MoverRepository.
func (s *Store) ListMovers(ctx context.Context) ([]domain.Mover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mover, 0, len(s.moverOrder))
	for i := len(s.moverOrder) - 1; i >= 0; i-- {
		out = append(out, cloneMover(s.movers[s.moverOrder[i]]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetMover implements domain.MoverRepository.
func (s *Store) GetMover(ctx context.Context, id string) (*domain.Mover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mover, ok := s.movers[id]
	if !ok {
		return nil, nil
	}
	out := cloneMover(mover)
	return &out, nil
}

// UpdateMover implements domain.MoverRepository.
func (s *Store) UpdateMover(ctx context.Context, mover domain.Mover, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.movers[mover.ID]
	if !ok || stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	stored.QuestState = mover.QuestState
	stored.LoadedItems = append([]string{}, mover.LoadedItems...)
	stored.UpdatedAt = mover.UpdatedAt
	stored.Version = expectedVersion + 1
	s.movers[mover.ID] = stored
	return nil
}

// Append implements domain.ActivityLog.
func (s *Store) Append(ctx context.Context, entry domain.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AppendErr != nil {
		return s.AppendErr
	}
	entry.ItemsSnapshot = append([]string{}, entry.ItemsSnapshot...)
	s.activity = append(s.activity, entry)
	return nil
}

// Entries returns a copy of the activity log in append order.
func (s *Store) Entries() []domain.ActivityLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityLogEntry, len(s.activity))
	for i, entry := range s.activity {
		entry.ItemsSnapshot = append([]string{}, entry.ItemsSnapshot...)
		out[i] = entry
	}
	return out
}

// Leaderboard implements domain.ActivityLog.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, entry := range s.activity {
		if entry.Type == domain.ActivityEndMission {
			counts[entry.MoverID]++
		}
	}

	out := make([]domain.LeaderboardEntry, 0, len(counts))
	for moverID, count := range counts {
		mover, ok := s.movers[moverID]
		if !ok {
			continue
		}
		out = append(out, domain.LeaderboardEntry{
			MoverID:           moverID,
			WeightLimit:       mover.WeightLimit,
			MissionsCompleted: count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MissionsCompleted != out[j].MissionsCompleted {
			return out[i].MissionsCompleted > out[j].MissionsCompleted
		}
		return out[i].MoverID < out[j].MoverID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneMover(m domain.Mover) domain.Mover {
	out := m
	out.LoadedItems = append([]string{}, m.LoadedItems...)
	return out
}
