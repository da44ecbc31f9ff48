package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/internal/notifications"
	"github.com/angelmondragon/campus-loyalty/pkg/enums"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/pagination"
)

type fakeNotifications struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (pagination.Page[notifications.NotificationDTO], error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
}

func (f fakeNotifications) List(ctx context.Context, params notifications.ListParams) (pagination.Page[notifications.NotificationDTO], error) {
	return f.listFn(ctx, params)
}

func (f fakeNotifications) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return f.markReadFn(ctx, userID, notificationID)
}

func (f fakeNotifications) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f.markAllReadFn(ctx, userID)
}

func TestListNotificationsParsesQuery(t *testing.T) {
	caller := identityFor(enums.RoleRegular)
	svc := fakeNotifications{listFn: func(_ context.Context, params notifications.ListParams) (pagination.Page[notifications.NotificationDTO], error) {
		if params.UserID != caller.UserID || params.Page != 2 || params.Limit != 5 || !params.UnreadOnly {
			t.Fatalf("unexpected params %+v", params)
		}
		return pagination.Page[notifications.NotificationDTO]{Count: 1, Results: []notifications.NotificationDTO{{ID: uuid.New(), Message: "hi"}}}, nil
	}}
	resp := serve(ListNotifications(svc, testLogger()), testRequest{
		method:   http.MethodGet,
		target:   "/notifications?page=2&limit=5&unreadOnly=true",
		identity: caller,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var page pagination.Page[notifications.NotificationDTO]
	decodeData(t, resp, &page)
	if page.Count != 1 || len(page.Results) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListNotificationsRejectsBadFlag(t *testing.T) {
	resp := serve(ListNotifications(fakeNotifications{}, testLogger()), testRequest{
		method:   http.MethodGet,
		target:   "/notifications?unreadOnly=yes",
		identity: identityFor(enums.RoleRegular),
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkNotificationReadOtherUsersIsNotFound(t *testing.T) {
	id := uuid.New()
	svc := fakeNotifications{markReadFn: func(context.Context, uuid.UUID, uuid.UUID) error {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}}
	resp := serve(MarkNotificationRead(svc, testLogger()), testRequest{
		method:   http.MethodPatch,
		target:   "/notifications/" + id.String() + "/read",
		identity: identityFor(enums.RoleRegular),
		params:   map[string]string{"notificationId": id.String()},
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := fakeNotifications{markAllReadFn: func(context.Context, uuid.UUID) (int64, error) {
		return 3, nil
	}}
	resp := serve(MarkAllNotificationsRead(svc, testLogger()), testRequest{
		method:   http.MethodPatch,
		target:   "/notifications/read-all",
		identity: identityFor(enums.RoleRegular),
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var out map[string]int64
	decodeData(t, resp, &out)
	if out["updated"] != 3 {
		t.Fatalf("expected 3 updated got %v", out)
	}
}
