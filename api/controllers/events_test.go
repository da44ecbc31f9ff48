package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/internal/events"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
)

type fakeEvents struct {
	events.Service
	updateFn   func(ctx context.Context, id uuid.UUID, input events.UpdateInput, viewer events.Viewer) (map[string]any, error)
	addGuestFn func(ctx context.Context, id uuid.UUID, utorid string, viewer events.Viewer) (*events.GuestAddedDTO, error)
	rsvpFn     func(ctx context.Context, id, userID uuid.UUID) (*events.GuestAddedDTO, error)
	deleteFn   func(ctx context.Context, id uuid.UUID) error
}

func (f fakeEvents) Update(ctx context.Context, id uuid.UUID, input events.UpdateInput, viewer events.Viewer) (map[string]any, error) {
	return f.updateFn(ctx, id, input, viewer)
}

func (f fakeEvents) AddGuest(ctx context.Context, id uuid.UUID, utorid string, viewer events.Viewer) (*events.GuestAddedDTO, error) {
	return f.addGuestFn(ctx, id, utorid, viewer)
}

func (f fakeEvents) RSVP(ctx context.Context, id, userID uuid.UUID) (*events.GuestAddedDTO, error) {
	return f.rsvpFn(ctx, id, userID)
}

func (f fakeEvents) Delete(ctx context.Context, id uuid.UUID) error {
	return f.deleteFn(ctx, id)
}

func TestEventUpdateCapacityNullVersusMissing(t *testing.T) {
	eventID := uuid.New()
	cases := []struct {
		name      string
		body      string
		wantUnset bool
	}{
		{"explicit null", `{"capacity":null}`, true},
		{"missing key", `{"name":"Trivia Night"}`, false},
		{"set value", `{"capacity":40}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got events.UpdateInput
			svc := fakeEvents{updateFn: func(_ context.Context, id uuid.UUID, input events.UpdateInput, viewer events.Viewer) (map[string]any, error) {
				if id != eventID || viewer.Role != enums.RoleManager {
					t.Fatalf("unexpected id or viewer")
				}
				got = input
				return map[string]any{"id": id}, nil
			}}
			resp := serve(EventUpdate(svc, testLogger()), testRequest{
				method:   http.MethodPatch,
				target:   "/events/" + eventID.String(),
				body:     tc.body,
				identity: identityFor(enums.RoleManager),
				params:   map[string]string{"eventId": eventID.String()},
			})
			if resp.Code != http.StatusOK {
				t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
			}
			if got.UnsetCapacity != tc.wantUnset {
				t.Fatalf("expected unset=%v got %v", tc.wantUnset, got.UnsetCapacity)
			}
		})
	}
}

func TestEventAddGuestPassesViewer(t *testing.T) {
	eventID := uuid.New()
	caller := identityFor(enums.RoleRegular)
	svc := fakeEvents{addGuestFn: func(_ context.Context, _ uuid.UUID, utorid string, viewer events.Viewer) (*events.GuestAddedDTO, error) {
		if utorid != "guest001" {
			t.Fatalf("expected lowercased utorid got %q", utorid)
		}
		if viewer.UserID != caller.UserID {
			t.Fatalf("expected caller as viewer")
		}
		return &events.GuestAddedDTO{ID: eventID, NumGuests: 1}, nil
	}}
	resp := serve(EventAddGuest(svc, testLogger()), testRequest{
		method:   http.MethodPost,
		target:   "/events/" + eventID.String() + "/guests",
		body:     `{"utorid":"GUEST001"}`,
		identity: caller,
		params:   map[string]string{"eventId": eventID.String()},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestEventRSVPFullEventIsGone(t *testing.T) {
	eventID := uuid.New()
	svc := fakeEvents{rsvpFn: func(context.Context, uuid.UUID, uuid.UUID) (*events.GuestAddedDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeGone, "event is full")
	}}
	resp := serve(EventRSVP(svc, testLogger()), testRequest{
		method:   http.MethodPost,
		target:   "/events/" + eventID.String() + "/guests/me",
		identity: identityFor(enums.RoleRegular),
		params:   map[string]string{"eventId": eventID.String()},
	})
	if resp.Code != http.StatusGone {
		t.Fatalf("expected 410 got %d", resp.Code)
	}
}

func TestEventDeleteNoContent(t *testing.T) {
	eventID := uuid.New()
	svc := fakeEvents{deleteFn: func(_ context.Context, id uuid.UUID) error {
		if id != eventID {
			t.Fatalf("unexpected id")
		}
		return nil
	}}
	resp := serve(EventDelete(svc, testLogger()), testRequest{
		method:   http.MethodDelete,
		target:   "/events/" + eventID.String(),
		identity: identityFor(enums.RoleManager),
		params:   map[string]string{"eventId": eventID.String()},
	})
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
}
