package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// PersonDTO is the compact user reference used in organizer and guest lists.
type PersonDTO struct {
	ID     uuid.UUID `json:"id"`
	Utorid string    `json:"utorid"`
	Name   string    `json:"name"`
}

// EventDTO is the API shape. Budget and guest fields are only filled for
// managers and organizers.
type EventDTO struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Location      string      `json:"location"`
	StartTime     time.Time   `json:"startTime"`
	EndTime       time.Time   `json:"endTime"`
	Capacity      *int        `json:"capacity"`
	PointsRemain  *int        `json:"pointsRemain,omitempty"`
	PointsAwarded *int        `json:"pointsAwarded,omitempty"`
	Published     *bool       `json:"published,omitempty"`
	Organizers    []PersonDTO `json:"organizers"`
	Guests        []PersonDTO `json:"guests,omitempty"`
	NumGuests     int64       `json:"numGuests"`
}

// GuestAddedDTO answers a guest addition or RSVP.
type GuestAddedDTO struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	GuestAdded PersonDTO `json:"guestAdded"`
	NumGuests  int64     `json:"numGuests"`
}

// OrganizersDTO answers an organizer addition.
type OrganizersDTO struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Location   string      `json:"location"`
	Organizers []PersonDTO `json:"organizers"`
}

type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

func (v Viewer) isManager() bool { return v.Role.AtLeast(enums.RoleManager) }

type CreateInput struct {
	Name        string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	Capacity    *int
	Points      int
}

// UpdateInput is a partial patch. UnsetCapacity asks for an unlimited event.
type UpdateInput struct {
	Name          *string
	Description   *string
	Location      *string
	StartTime     *time.Time
	EndTime       *time.Time
	Capacity      *int
	UnsetCapacity bool
	Points        *int
	Published     *bool
}

type ListFilter struct {
	Name      string
	Location  string
	Started   *bool
	Ended     *bool
	ShowFull  *bool
	Published *bool
	Page      int
	Limit     int
}

func publicView(e *models.Event, organizers []PersonDTO, numGuests int64) EventDTO {
	if organizers == nil {
		organizers = []PersonDTO{}
	}
	return EventDTO{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Location:    e.Location,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Capacity:    e.Capacity,
		Organizers:  organizers,
		NumGuests:   numGuests,
	}
}

func fullView(e *models.Event, organizers, guests []PersonDTO, numGuests int64) EventDTO {
	dto := publicView(e, organizers, numGuests)
	remain := e.PointsRemaining()
	awarded := e.PointsAwarded
	published := e.Published
	dto.PointsRemain = &remain
	dto.PointsAwarded = &awarded
	dto.Published = &published
	dto.Guests = guests
	return dto
}
