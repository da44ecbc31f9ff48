package enums

// NotificationKind classifies ledger notifications delivered to users.
type NotificationKind string

const (
	NotificationPurchase   NotificationKind = "purchase"
	NotificationAdjustment NotificationKind = "adjustment"
	NotificationTransfer   NotificationKind = "transfer"
	NotificationRedemption NotificationKind = "redemption"
	NotificationEvent      NotificationKind = "event"
	NotificationSuspicious NotificationKind = "suspicious"
)

var validNotificationKinds = []NotificationKind{
	NotificationPurchase,
	NotificationAdjustment,
	NotificationTransfer,
	NotificationRedemption,
	NotificationEvent,
	NotificationSuspicious,
}

// IsValid reports whether the inbox accepts the kind.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}
