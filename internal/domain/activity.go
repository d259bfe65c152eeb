package domain

import (
	"context"
	"time"
)

// ActivityType names the transition recorded by a log entry.
type ActivityType string

const (
	ActivityLoading      ActivityType = "loading"
	ActivityStartMission ActivityType = "start-mission"
	ActivityEndMission   ActivityType = "end-mission"
)

// ActivityLogEntry is the immutable audit record of one committed transition.
type ActivityLogEntry struct {
	ID            string
	MoverID       string
	Type          ActivityType
	ItemsSnapshot []string
	CreatedAt     time.Time
}

// LeaderboardEntry ranks a mover by completed missions.
type LeaderboardEntry struct {
	MoverID           string
	WeightLimit       float64
	MissionsCompleted int64
}

// ActivityLog is the append-only transition log and the leaderboard's only source.
type ActivityLog interface {
	Append(ctx context.Context, entry ActivityLogEntry) error
	// Leaderboard counts end-mission entries per existing mover, ordered by
	// count descending then mover id ascending, returning at most limit rows.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}
