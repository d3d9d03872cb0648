package database

import "time"

// RoomActivity holds aggregate counters for one room. It deliberately has
// no column for usernames, ids, keys or message content.
type RoomActivity struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Room      string    `gorm:"uniqueIndex;not null" json:"room"`
	Joins     int64     `gorm:"not null;default:0" json:"joins"`
	Leaves    int64     `gorm:"not null;default:0" json:"leaves"`
	Relayed   int64     `gorm:"not null;default:0" json:"relayed"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActivityKind selects which counter an event increments.
type ActivityKind int

const (
	ActivityJoin ActivityKind = iota
	ActivityLeave
	ActivityRelay
)

func (k ActivityKind) column() string {
	switch k {
	case ActivityJoin:
		return "joins"
	case ActivityLeave:
		return "leaves"
	default:
		return "relayed"
	}
}

func (k ActivityKind) String() string {
	return k.column()
}
