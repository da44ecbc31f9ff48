package models

import (
	"time"

	"github.com/google/uuid"
)

// Event carries its own point budget. PointsAwarded never exceeds
// PointsAllocated and only grows through event transactions.
type Event struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null"`
	Description     string    `gorm:"column:description;not null"`
	Location        string    `gorm:"column:location;not null"`
	StartTime       time.Time `gorm:"column:start_time;not null"`
	EndTime         time.Time `gorm:"column:end_time;not null"`
	Capacity        *int      `gorm:"column:capacity"`
	PointsAllocated int       `gorm:"column:points_allocated;not null;default:0"`
	PointsAwarded   int       `gorm:"column:points_awarded;not null;default:0"`
	Published       bool      `gorm:"column:published;not null;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (e Event) PointsRemaining() int { return e.PointsAllocated - e.PointsAwarded }

func (e Event) Started(now time.Time) bool { return !now.Before(e.StartTime) }

func (e Event) Ended(now time.Time) bool { return !now.Before(e.EndTime) }

// HasRoomFor reports whether guestCount is still below capacity.
func (e Event) HasRoomFor(guestCount int64) bool {
	return e.Capacity == nil || guestCount < int64(*e.Capacity)
}

type EventOrganizer struct {
	EventID   uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EventOrganizer) TableName() string { return "event_organizers" }

type EventGuest struct {
	EventID   uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EventGuest) TableName() string { return "event_guests" }
