package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store reads and writes room activity counters.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Increment bumps one counter for room, creating the row on first use.
func (s *Store) Increment(ctx context.Context, room string, kind ActivityKind) error {
	if room == "" {
		return fmt.Errorf("increment activity: empty room")
	}
	row := RoomActivity{Room: room}
	switch kind {
	case ActivityJoin:
		row.Joins = 1
	case ActivityLeave:
		row.Leaves = 1
	case ActivityRelay:
		row.Relayed = 1
	default:
		return fmt.Errorf("increment activity: unknown kind %d", kind)
	}

	col := kind.column()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room"}},
		DoUpdates: clause.Assignments(map[string]any{
			col:          gorm.Expr(col + " + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("increment %s for %s: %w", col, room, err)
	}
	return nil
}

// FindByRoom returns the counters for one room.
func (s *Store) FindByRoom(ctx context.Context, room string) (RoomActivity, bool, error) {
	row, err := gorm.G[RoomActivity](s.db).Where("room = ?", room).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RoomActivity{}, false, nil
		}
		return RoomActivity{}, false, fmt.Errorf("find activity for %s: %w", room, err)
	}
	return row, true, nil
}

// List returns all rooms ordered by name.
func (s *Store) List(ctx context.Context) ([]RoomActivity, error) {
	var rows []RoomActivity
	if err := s.db.WithContext(ctx).Order("room").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return rows, nil
}
