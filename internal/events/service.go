package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/pkg/db"
	"github.com/angelmondragon/campus-loyalty/pkg/db/models"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

// ErrBudgetExceeded is returned when an award would push an event past its
// allocation.
var ErrBudgetExceeded = pkgerrors.New(pkgerrors.CodeValidation, "not enough points remaining in event budget")

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Event, error)
	IsOrganizer(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	IsOrganizerWithTx(tx *gorm.DB, eventID, userID uuid.UUID) (bool, error)
	IsGuestWithTx(tx *gorm.DB, eventID, userID uuid.UUID) (bool, error)
	CountGuests(ctx context.Context, eventID uuid.UUID) (int64, error)
	CountGuestsWithTx(tx *gorm.DB, eventID uuid.UUID) (int64, error)
	ListGuestIDs(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	UpdatesWithTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddOrganizerWithTx(tx *gorm.DB, eventID, userID uuid.UUID) error
	AddGuestWithTx(tx *gorm.DB, eventID, userID uuid.UUID) error
	RemoveOrganizer(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	RemoveGuest(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	ListOrganizers(ctx context.Context, eventID uuid.UUID) ([]PersonDTO, error)
	ListGuests(ctx context.Context, eventID uuid.UUID) ([]PersonDTO, error)
	OrganizersFor(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID][]PersonDTO, error)
	GuestCountsFor(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	List(ctx context.Context, filter ListFilter, onlyPublished bool, now time.Time) ([]models.Event, int64, error)
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUtorid(ctx context.Context, utorid string) (*models.User, error)
}

// Service manages events, their organizers and guest lists. Point awards
// against the budget go through the transaction engine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*EventDTO, error)
	Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*EventDTO, error)
	List(ctx context.Context, filter ListFilter, viewer Viewer) (pagination.Page[EventDTO], error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput, viewer Viewer) (map[string]any, error)
	Delete(ctx context.Context, id uuid.UUID) error
	AddOrganizer(ctx context.Context, id uuid.UUID, utorid string) (*OrganizersDTO, error)
	RemoveOrganizer(ctx context.Context, id, userID uuid.UUID) error
	AddGuest(ctx context.Context, id uuid.UUID, utorid string, viewer Viewer) (*GuestAddedDTO, error)
	RemoveGuest(ctx context.Context, id, userID uuid.UUID) error
	RSVP(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*GuestAddedDTO, error)
	CancelRSVP(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
}

type ServiceParams struct {
	Events     eventRepository
	Users      userLookup
	UnitOfWork db.UnitOfWork
	Sink       notifications.Sink
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	events eventRepository
	users  userLookup
	uow    db.UnitOfWork
	sink   notifications.Sink
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.UnitOfWork == nil {
		return nil, fmt.Errorf("unit of work required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	sink := params.Sink
	if sink == nil {
		sink = notifications.NopSink{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{events: params.Events, users: params.Users, uow: params.UnitOfWork, sink: sink, logg: params.Logger, now: now}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*EventDTO, error) {
	now := s.now().UTC()
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Description) == "" || strings.TrimSpace(input.Location) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name, description and location are required")
	}
	if input.StartTime.Before(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start time is in the past")
	}
	if !input.EndTime.After(input.StartTime) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}
	if input.Capacity != nil && *input.Capacity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be positive")
	}
	if input.Points < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be non-negative")
	}

	event := &models.Event{
		ID:              uuid.New(),
		Name:            strings.TrimSpace(input.Name),
		Description:     strings.TrimSpace(input.Description),
		Location:        strings.TrimSpace(input.Location),
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		Capacity:        input.Capacity,
		PointsAllocated: input.Points,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create event")
	}
	dto := fullView(event, nil, []PersonDTO{}, 0)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*EventDTO, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	privileged, err := s.privileged(ctx, event.ID, viewer)
	if err != nil {
		return nil, err
	}
	if !privileged && !event.Published {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}

	organizers, err := s.events.ListOrganizers(ctx, event.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizers")
	}
	if !privileged {
		count, err := s.events.CountGuests(ctx, event.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count guests")
		}
		dto := publicView(event, organizers, count)
		return &dto, nil
	}
	guests, err := s.events.ListGuests(ctx, event.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list guests")
	}
	dto := fullView(event, organizers, guests, int64(len(guests)))
	return &dto, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, viewer Viewer) (pagination.Page[EventDTO], error) {
	if filter.Started != nil && filter.Ended != nil {
		return pagination.Page[EventDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "cannot filter by both started and ended")
	}
	manager := viewer.isManager()
	if !manager {
		filter.Published = nil
	}
	rows, count, err := s.events.List(ctx, filter, !manager, s.now().UTC())
	if err != nil {
		return pagination.Page[EventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list events")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	organizers, err := s.events.OrganizersFor(ctx, ids)
	if err != nil {
		return pagination.Page[EventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizers")
	}
	counts, err := s.events.GuestCountsFor(ctx, ids)
	if err != nil {
		return pagination.Page[EventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count guests")
	}

	page := pagination.Page[EventDTO]{Count: count, Results: make([]EventDTO, 0, len(rows))}
	for i := range rows {
		row := &rows[i]
		var dto EventDTO
		if manager {
			dto = fullView(row, organizers[row.ID], nil, counts[row.ID])
		} else {
			dto = publicView(row, organizers[row.ID], counts[row.ID])
		}
		page.Results = append(page.Results, dto)
	}
	return page, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput, viewer Viewer) (map[string]any, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	manager := viewer.isManager()
	if !manager {
		organizer, err := s.events.IsOrganizer(ctx, event.ID, viewer.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organizer")
		}
		if !organizer {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only managers and organizers can update an event")
		}
		if input.Points != nil || input.Published != nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only managers can change points or publish an event")
		}
	}
	if input.Published != nil && !*input.Published {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "published can only be set to true")
	}

	var fields map[string]any
	var response map[string]any
	err = s.uow.RunSteps(ctx, db.Step{
		Name: "update event",
		Check: func(tx *gorm.DB) error {
			locked, err := s.events.LockByIDWithTx(tx, event.ID)
			if err != nil {
				return err
			}
			guests, err := s.events.CountGuestsWithTx(tx, event.ID)
			if err != nil {
				return err
			}
			fields, response, err = s.buildPatch(locked, input, guests)
			return err
		},
		Apply: func(tx *gorm.DB) error {
			return s.events.UpdatesWithTx(tx, event.ID, fields)
		},
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update event")
	}

	if event.Published || (input.Published != nil && *input.Published) {
		s.notifyGuests(ctx, event.ID, fmt.Sprintf("Event %q was updated", response["name"]))
	}
	return response, nil
}

type freezable struct {
	name string
	set  bool
}

// buildPatch validates input against the locked event and returns both the
// column updates and the response body.
func (s *service) buildPatch(event *models.Event, input UpdateInput, guests int64) (map[string]any, map[string]any, error) {
	now := s.now().UTC()
	fields := map[string]any{}
	response := map[string]any{"id": event.ID, "name": event.Name, "location": event.Location}

	if event.Started(now) {
		frozen := []freezable{
			{"name", input.Name != nil},
			{"description", input.Description != nil},
			{"location", input.Location != nil},
			{"startTime", input.StartTime != nil},
			{"capacity", input.Capacity != nil || input.UnsetCapacity},
		}
		for _, f := range frozen {
			if f.set {
				return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot update %s after the event has started", f.name))
			}
		}
	}
	if event.Ended(now) && input.EndTime != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot update endTime after the event has ended")
	}

	start, end := event.StartTime, event.EndTime
	if input.StartTime != nil {
		if input.StartTime.Before(now) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "start time is in the past")
		}
		start = input.StartTime.UTC()
		fields["start_time"] = start
		response["startTime"] = start
	}
	if input.EndTime != nil {
		if input.EndTime.Before(now) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "end time is in the past")
		}
		end = input.EndTime.UTC()
		fields["end_time"] = end
		response["endTime"] = end
	}
	if !end.After(start) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		fields["name"] = name
		response["name"] = name
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "description cannot be empty")
		}
		fields["description"] = description
		response["description"] = description
	}
	if input.Location != nil {
		location := strings.TrimSpace(*input.Location)
		if location == "" {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "location cannot be empty")
		}
		fields["location"] = location
		response["location"] = location
	}

	switch {
	case input.UnsetCapacity:
		if event.Capacity != nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "a limited event cannot become unlimited")
		}
	case input.Capacity != nil:
		capacity := *input.Capacity
		if capacity <= 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity must be positive")
		}
		if int64(capacity) < guests {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "capacity is below the current number of guests")
		}
		fields["capacity"] = capacity
		response["capacity"] = capacity
	}

	if input.Points != nil {
		if *input.Points < event.PointsAwarded {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "points cannot go below what has already been awarded")
		}
		fields["points_allocated"] = *input.Points
		response["pointsRemain"] = *input.Points - event.PointsAwarded
	}
	if input.Published != nil {
		fields["published"] = true
		response["published"] = true
	}

	if len(fields) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	return fields, response, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	event, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if event.Published {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot delete a published event")
	}
	if err := s.events.Delete(ctx, event.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete event")
	}
	return nil
}

func (s *service) AddOrganizer(ctx context.Context, id uuid.UUID, utorid string) (*OrganizersDTO, error) {
	user, err := s.loadUser(ctx, utorid)
	if err != nil {
		return nil, err
	}
	var event *models.Event
	err = s.uow.RunSteps(ctx, db.Step{
		Name: "add organizer",
		Check: func(tx *gorm.DB) error {
			var err error
			if event, err = s.events.LockByIDWithTx(tx, id); err != nil {
				return err
			}
			if event.Ended(s.now().UTC()) {
				return pkgerrors.New(pkgerrors.CodeGone, "event has ended")
			}
			guest, err := s.events.IsGuestWithTx(tx, id, user.ID)
			if err != nil {
				return err
			}
			if guest {
				return pkgerrors.New(pkgerrors.CodeValidation, "user is a guest of this event; remove them first")
			}
			organizer, err := s.events.IsOrganizerWithTx(tx, id, user.ID)
			if err != nil {
				return err
			}
			if organizer {
				return pkgerrors.New(pkgerrors.CodeValidation, "user is already an organizer")
			}
			return nil
		},
		Apply: func(tx *gorm.DB) error { return s.events.AddOrganizerWithTx(tx, id, user.ID) },
	})
	if err != nil {
		return nil, s.mapStepError(err, "add organizer", "user is already an organizer")
	}

	organizers, err := s.events.ListOrganizers(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizers")
	}
	return &OrganizersDTO{ID: event.ID, Name: event.Name, Location: event.Location, Organizers: organizers}, nil
}

func (s *service) RemoveOrganizer(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	removed, err := s.events.RemoveOrganizer(ctx, id, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove organizer")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "organizer not found")
	}
	return nil
}

func (s *service) AddGuest(ctx context.Context, id uuid.UUID, utorid string, viewer Viewer) (*GuestAddedDTO, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	manager := viewer.isManager()
	if !manager {
		organizer, err := s.events.IsOrganizer(ctx, id, viewer.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organizer")
		}
		if !organizer {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only managers and organizers can add guests")
		}
		if !event.Published {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
	}
	user, err := s.loadUser(ctx, utorid)
	if err != nil {
		return nil, err
	}
	return s.addGuest(ctx, id, user)
}

func (s *service) RSVP(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*GuestAddedDTO, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !event.Published {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return s.addGuest(ctx, id, user)
}

// addGuest holds the event lock while checking capacity so concurrent
// additions cannot overfill it.
func (s *service) addGuest(ctx context.Context, id uuid.UUID, user *models.User) (*GuestAddedDTO, error) {
	var event *models.Event
	var count int64
	err := s.uow.RunSteps(ctx, db.Step{
		Name: "add guest",
		Check: func(tx *gorm.DB) error {
			var err error
			if event, err = s.events.LockByIDWithTx(tx, id); err != nil {
				return err
			}
			if event.Ended(s.now().UTC()) {
				return pkgerrors.New(pkgerrors.CodeGone, "event has ended")
			}
			if count, err = s.events.CountGuestsWithTx(tx, id); err != nil {
				return err
			}
			if !event.HasRoomFor(count) {
				return pkgerrors.New(pkgerrors.CodeGone, "event is full")
			}
			organizer, err := s.events.IsOrganizerWithTx(tx, id, user.ID)
			if err != nil {
				return err
			}
			if organizer {
				return pkgerrors.New(pkgerrors.CodeValidation, "organizers cannot be guests of their own event")
			}
			guest, err := s.events.IsGuestWithTx(tx, id, user.ID)
			if err != nil {
				return err
			}
			if guest {
				return pkgerrors.New(pkgerrors.CodeValidation, "user is already a guest")
			}
			return nil
		},
		Apply: func(tx *gorm.DB) error { return s.events.AddGuestWithTx(tx, id, user.ID) },
	})
	if err != nil {
		return nil, s.mapStepError(err, "add guest", "user is already a guest")
	}
	return &GuestAddedDTO{
		ID:         event.ID,
		Name:       event.Name,
		Location:   event.Location,
		GuestAdded: PersonDTO{ID: user.ID, Utorid: user.Utorid, Name: user.Name},
		NumGuests:  count + 1,
	}, nil
}

func (s *service) RemoveGuest(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	removed, err := s.events.RemoveGuest(ctx, id, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove guest")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "guest not found")
	}
	return nil
}

func (s *service) CancelRSVP(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	event, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if event.Ended(s.now().UTC()) {
		return pkgerrors.New(pkgerrors.CodeGone, "event has ended")
	}
	removed, err := s.events.RemoveGuest(ctx, id, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel rsvp")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "you are not a guest of this event")
	}
	return nil
}

func (s *service) privileged(ctx context.Context, eventID uuid.UUID, viewer Viewer) (bool, error) {
	if viewer.isManager() {
		return true, nil
	}
	organizer, err := s.events.IsOrganizer(ctx, eventID, viewer.UserID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check organizer")
	}
	return organizer, nil
}

func (s *service) notifyGuests(ctx context.Context, eventID uuid.UUID, message string) {
	guests, err := s.events.ListGuestIDs(ctx, eventID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_id", eventID.String()), "list guests to notify", err)
		return
	}
	for _, guest := range guests {
		s.sink.Notify(ctx, guest, enums.NotificationEvent, message)
	}
}

func (s *service) mapStepError(err error, op, duplicate string) error {
	switch {
	case pkgerrors.As(err) != nil:
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, duplicate)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
	}
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	return event, nil
}

func (s *service) loadUser(ctx context.Context, utorid string) (*models.User, error) {
	user, err := s.users.FindByUtorid(ctx, strings.TrimSpace(utorid))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
