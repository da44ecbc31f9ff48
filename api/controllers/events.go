package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/campus-loyalty/api/responses"
	"github.com/angelmondragon/campus-loyalty/api/validators"
	"github.com/angelmondragon/campus-loyalty/internal/events"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

type createEventRequest struct {
	Name        string    `json:"name" validate:"required,max=100"`
	Description string    `json:"description" validate:"required,max=1000"`
	Location    string    `json:"location" validate:"required,max=200"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required"`
	Capacity    *int      `json:"capacity" validate:"omitempty,gt=0"`
	Points      int       `json:"points" validate:"gte=0"`
}

type updateEventRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string    `json:"description" validate:"omitempty,min=1,max=1000"`
	Location    *string    `json:"location" validate:"omitempty,min=1,max=200"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gt=0"`
	Points      *int       `json:"points" validate:"omitempty,gte=0"`
	Published   *bool      `json:"published"`
}

type utoridRequest struct {
	Utorid string `json:"utorid" validate:"required"`
}

func eventViewer(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (events.Viewer, bool) {
	identity, ok := requireIdentity(w, r, logg)
	if !ok {
		return events.Viewer{}, false
	}
	return events.Viewer{UserID: identity.UserID, Role: identity.Role}, true
}

func EventCreate(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}

		var body createEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), events.CreateInput{
			Name:        strings.TrimSpace(body.Name),
			Description: strings.TrimSpace(body.Description),
			Location:    strings.TrimSpace(body.Location),
			StartTime:   body.StartTime,
			EndTime:     body.EndTime,
			Capacity:    body.Capacity,
			Points:      body.Points,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func EventList(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		viewer, ok := eventViewer(w, r, logg)
		if !ok {
			return
		}

		page, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := events.ListFilter{
			Name:     strings.TrimSpace(r.URL.Query().Get("name")),
			Location: strings.TrimSpace(r.URL.Query().Get("location")),
			Page:     page.Page,
			Limit:    page.Limit,
		}
		for key, dest := range map[string]**bool{
			"started":   &filter.Started,
			"ended":     &filter.Ended,
			"showFull":  &filter.ShowFull,
			"published": &filter.Published,
		} {
			value, err := validators.ParseQueryBool(r, key)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			*dest = value
		}

		result, err := svc.List(r.Context(), filter, viewer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func EventGet(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		viewer, ok := eventViewer(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Get(r.Context(), eventID, viewer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// EventUpdate patches an event. An explicit "capacity": null asks for an
// unlimited event, which a missing key does not.
func EventUpdate(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		viewer, ok := eventViewer(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		var body updateEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := events.UpdateInput{
			Name:        body.Name,
			Description: body.Description,
			Location:    body.Location,
			StartTime:   body.StartTime,
			EndTime:     body.EndTime,
			Capacity:    body.Capacity,
			Points:      body.Points,
			Published:   body.Published,
		}
		if body.Capacity == nil {
			input.UnsetCapacity = explicitNull(raw, "capacity")
		}

		changed, err := svc.Update(r.Context(), eventID, input, viewer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, changed)
	}
}

func explicitNull(raw []byte, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	value, ok := fields[key]
	return ok && string(bytes.TrimSpace(value)) == "null"
}

// EventDelete removes an unpublished event.
func EventDelete(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), eventID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func EventAddOrganizer(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body utoridRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddOrganizer(r.Context(), eventID, strings.ToLower(strings.TrimSpace(body.Utorid)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func EventRemoveOrganizer(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveOrganizer(r.Context(), eventID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// EventAddGuest lets a manager or an organizer put a user on the guest list.
func EventAddGuest(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		viewer, ok := eventViewer(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body utoridRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AddGuest(r.Context(), eventID, strings.ToLower(strings.TrimSpace(body.Utorid)), viewer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func EventRemoveGuest(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := validators.PathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveGuest(r.Context(), eventID, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// EventRSVP adds the caller to the guest list.
func EventRSVP(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RSVP(r.Context(), eventID, identity.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func EventCancelRSVP(svc events.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "event service")
			return
		}
		identity, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		eventID, err := validators.PathUUID(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.CancelRSVP(r.Context(), eventID, identity.UserID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
