package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/campus-loyalty/pkg/enums"
)

// Sink accepts user-facing notifications. Implementations must not block the
// caller on delivery and never report delivery failures back.
type Sink interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationKind, message string)
}

// NopSink discards every notification.
type NopSink struct{}

func (NopSink) Notify(context.Context, uuid.UUID, enums.NotificationKind, string) {}
